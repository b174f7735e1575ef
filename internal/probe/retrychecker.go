package probe

import (
	"context"
	"time"
)

// RetryChecker re-runs Inner while it reports FAILED. VALID, INVALID and
// SKIPPED are definitive and returned immediately.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, target string) Result {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last Result
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, target)
		if last.Status != StatusFailed {
			return last
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			last.Reason += " (retry aborted)"
			return last
		case <-time.After(r.Backoff):
		}
	}
	if attempts > 1 {
		last.Reason += " (after retries)"
	}
	return last
}
