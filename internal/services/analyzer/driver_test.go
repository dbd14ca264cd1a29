package analyzer

import (
	"context"
	"sync"

	"github.com/ternarybob/eligo/internal/interfaces"
)

// fakeDriver is a scriptable PageDriver for pipeline tests. Unset hooks
// behave as benign no-ops.
type fakeDriver struct {
	mu         sync.Mutex
	navigated  []string
	closed     bool
	navigateFn func(url string) error
	existsFn   func(selector string) (bool, error)
	clickFn    func(selector string) error
	evaluateFn func(expression string, out interface{}) error
	htmlFn     func(selector string) (string, error)
	cookiesFn  func() ([]interfaces.Cookie, error)
}

func (f *fakeDriver) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	f.navigated = append(f.navigated, url)
	f.mu.Unlock()
	if f.navigateFn != nil {
		return f.navigateFn(url)
	}
	return nil
}

func (f *fakeDriver) Exists(ctx context.Context, selector string) (bool, error) {
	if f.existsFn != nil {
		return f.existsFn(selector)
	}
	return false, nil
}

func (f *fakeDriver) Click(ctx context.Context, selector string) error {
	if f.clickFn != nil {
		return f.clickFn(selector)
	}
	return nil
}

func (f *fakeDriver) Evaluate(ctx context.Context, expression string, out interface{}) error {
	if f.evaluateFn != nil {
		return f.evaluateFn(expression, out)
	}
	return nil
}

func (f *fakeDriver) HTML(ctx context.Context, selector string) (string, error) {
	if f.htmlFn != nil {
		return f.htmlFn(selector)
	}
	return "<body></body>", nil
}

func (f *fakeDriver) Cookies(ctx context.Context) ([]interfaces.Cookie, error) {
	if f.cookiesFn != nil {
		return f.cookiesFn()
	}
	return nil, nil
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeDriver) visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigated...)
}
