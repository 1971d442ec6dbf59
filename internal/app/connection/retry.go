package connection

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration // Linear: attempt N waits N*Backoff
}

// Delay returns the wait after the given 1-based failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return time.Duration(attempt) * p.Backoff
}

// Retry runs fn until it succeeds or the policy is exhausted.
// The parent context being done stops the loop immediately.
func Retry(ctx context.Context, p Policy, sleep SleepFunc, fn func(ctx context.Context, attempt int) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "retry aborted")
		}

		if attempt < p.MaxAttempts {
			delay := p.Delay(attempt)
			zlog.Warn().Err(err).Msgf("connection: attempt %d/%d failed, retrying in %s", attempt, p.MaxAttempts, delay)
			if err := sleep(ctx, delay); err != nil {
				return errors.Wrap(err, "retry aborted")
			}
		}
	}
	return errors.Wrapf(lastErr, "max attempts (%d) exceeded", p.MaxAttempts)
}
