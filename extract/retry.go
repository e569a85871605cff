package extract

import (
	"context"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"reddit-etl/reddit"
)

// failureClass partitions remote failures for the retry policy.
type failureClass int

const (
	classThrottled failureClass = iota
	classServer
	classRequest
	classOther
)

func classify(err error) failureClass {
	switch {
	case reddit.IsThrottled(err):
		return classThrottled
	case reddit.IsServerError(err):
		return classServer
	case reddit.IsRequestError(err):
		return classRequest
	default:
		return classOther
	}
}

// callWithRetry runs one remote operation under the rate governor and the
// retry policy. The governor is consulted once, not per attempt. Waits
// depend on the failure class: throttling waits a growing multiple of
// throttleUnit, server errors wait a flat serverDelay, transport errors back
// off exponentially from backoffUnit, and anything else retries immediately
// (see DESIGN.md). Exhausting every attempt is not fatal: the failure is
// logged, counted, and reported as ok=false.
func (e *Extractor) callWithRetry(ctx context.Context, op string, fn func(context.Context) error) bool {
	if err := e.governor.Wait(ctx); err != nil {
		return false
	}

	err := retry.Do(
		func() error { return fn(ctx) },
		retry.Attempts(uint(e.cfg.MaxAttempts)),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			switch classify(err) {
			case classThrottled:
				return e.throttleUnit * time.Duration(n+1)
			case classServer:
				return e.serverDelay
			case classRequest:
				return e.backoffUnit << n
			default:
				return 0
			}
		}),
		retry.OnRetry(func(n uint, err error) {
			if classify(err) == classThrottled {
				e.stats.RateLimitWaits++
				e.logger.Warn("Remote throttled the call, backing off",
					"op", op, "attempt", n+1, "error", err)
				return
			}
			e.logger.Warn("Remote call failed, retrying", "op", op, "attempt", n+1, "error", err)
		}),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return true
	}

	if classify(err) == classOther {
		e.stats.Errors++
	}
	e.logger.Error("Remote call gave up", "op", op, "attempts", e.cfg.MaxAttempts, "error", err)
	return false
}
