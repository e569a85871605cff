// Package ratelimit keeps remote API calls under a calls-per-minute ceiling.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

const window = time.Minute

// Limiter tracks a sliding one-minute window of call timestamps and blocks
// callers just long enough to keep the rolling count at or under the ceiling.
//
// It is not safe for concurrent use: the pipeline issues all remote calls
// from a single control flow.
type Limiter struct {
	perMinute int
	calls     []time.Time
	total     int64
	logger    *slog.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a limiter allowing perMinute calls in any rolling minute.
func New(perMinute int, logger *slog.Logger) *Limiter {
	return &Limiter{
		perMinute: perMinute,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Wait blocks until issuing one more call keeps the rolling one-minute count
// at or under the ceiling, then records the call. It fails only when ctx is
// cancelled mid-wait.
func (l *Limiter) Wait(ctx context.Context) error {
	now := l.now()

	kept := l.calls[:0]
	for _, t := range l.calls {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	l.calls = kept

	if len(l.calls) >= l.perMinute {
		wait := window - now.Sub(l.calls[0])
		if wait > 0 {
			l.logger.Warn("Rate limit reached, sleeping", "wait", wait.String(), "window_calls", len(l.calls))
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
			now = l.now()
		}
	}

	l.calls = append(l.calls, now)
	l.total++
	return nil
}

// Total reports how many calls have passed through the limiter.
func (l *Limiter) Total() int64 { return l.total }

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
