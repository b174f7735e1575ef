package probe

import "context"

// Checker probes one target. *Prober implements it; decorators such as
// RetryChecker and metrics.Instrument wrap it.
type Checker interface {
	Check(ctx context.Context, target string) Result
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(ctx context.Context, target string) Result

func (f CheckerFunc) Check(ctx context.Context, target string) Result { return f(ctx, target) }
