package interfaces

import "context"

// Cookie is the subset of browser cookie data the analyzers need.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// PageDriver abstracts a single automated browser page. One driver serves one
// run; implementations are not safe for concurrent use.
type PageDriver interface {
	// Navigate loads the URL and waits for the page to be ready
	Navigate(ctx context.Context, url string) error

	// Exists reports whether the CSS selector matches at least one node
	Exists(ctx context.Context, selector string) (bool, error)

	// Click clicks the first visible node matching the CSS selector
	Click(ctx context.Context, selector string) error

	// Evaluate runs a JavaScript expression in the page, decoding the
	// JSON result into out (which may be nil to discard it)
	Evaluate(ctx context.Context, expression string, out interface{}) error

	// HTML returns the outer HTML of the first node matching the selector
	HTML(ctx context.Context, selector string) (string, error)

	// Cookies returns the cookies visible to the current page
	Cookies(ctx context.Context) ([]Cookie, error)

	// Close shuts down the page and its browser resources
	Close() error
}

// DriverFactory launches a fresh driver bound to the given profile directory.
type DriverFactory func(ctx context.Context, profileDir string) (PageDriver, error)
