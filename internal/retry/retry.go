// Package retry provides the fixed-delay bounded retry used around every
// network call.
package retry

import (
	"context"
	"time"

	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

// Policy is the retry budget for one logical operation.
// Delay is waited between attempts, never after the last one.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// Run invokes fn up to MaxAttempts times, logging a warning per failed
// attempt. On exhaustion it returns the error from the final attempt, not
// the first. Callers that need a result capture it in the closure.
func Run(ctx context.Context, log logx.Logger, pol Policy, op string, fn func(ctx context.Context) error) error {
	pol = pol.normalized()

	var lastErr error
	for attempt := 1; attempt <= pol.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn("attempt failed",
			logx.String("op", op),
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", pol.MaxAttempts),
			logx.Err(err),
		)
		if attempt == pol.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pol.Delay):
		}
	}
	return lastErr
}
