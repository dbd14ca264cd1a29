package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
)

// Poll is a bounded retry combinator for page-readiness checks. The same
// policy drives load-more detection, login detection, and follow-list search
// confirmation, parameterized by (max attempts, delay, predicate).
type Poll struct {
	MaxAttempts int
	Delay       time.Duration
	Multiplier  float64 // backoff multiplier per attempt, <= 1 means fixed delay
}

// ErrExhausted is returned when the predicate never succeeded within the
// attempt budget.
var ErrExhausted = fmt.Errorf("poll attempts exhausted")

// Until invokes fn until it reports done, the attempt budget runs out, or the
// context is cancelled. Errors from fn end the poll immediately.
func (p Poll) Until(ctx context.Context, logger arbor.ILogger, name string, fn func(ctx context.Context) (bool, error)) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	delay := p.Delay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		done, err := fn(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if done {
			return nil
		}

		if attempt == p.MaxAttempts {
			break
		}

		logger.Debug().
			Str("check", name).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Dur("delay", delay).
			Msg("Condition not met, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if p.Multiplier > 1 {
			delay = time.Duration(float64(delay) * p.Multiplier)
		}
	}

	return fmt.Errorf("%s: %w", name, ErrExhausted)
}
