package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/tlsprober/internal/domain"
	"github.com/hamed0406/tlsprober/internal/probe"
	"github.com/hamed0406/tlsprober/internal/repo"
)

type Rechecker struct {
	Logger      *zap.Logger
	Targets     repo.TargetStore
	Results     repo.ResultStore
	Checker     probe.Checker
	Interval    time.Duration
	Timeout     time.Duration
	Concurrency int
}

func NewRechecker(
	logger *zap.Logger,
	ts repo.TargetStore,
	rs repo.ResultStore,
	checker probe.Checker,
	interval time.Duration,
	timeout time.Duration,
	concurrency int,
) *Rechecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if interval < 0 {
		interval = 0
	}
	if timeout <= 0 {
		timeout = probe.DefaultTimeout
	}
	return &Rechecker{
		Logger:      logger,
		Targets:     ts,
		Results:     rs,
		Checker:     checker,
		Interval:    interval,
		Timeout:     timeout,
		Concurrency: concurrency,
	}
}

// Run does an immediate pass, then one per tick, until ctx is cancelled.
// A zero Interval disables the loop.
func (r *Rechecker) Run(ctx context.Context) {
	if r.Interval == 0 {
		r.Logger.Info("rechecker_disabled")
		return
	}
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	r.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("rechecker_stopped")
			return
		case <-t.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce probes every stored target with at most Concurrency probes in
// flight and appends one record per target.
func (r *Rechecker) RunOnce(ctx context.Context) {
	ts, err := r.Targets.List(ctx)
	if err != nil {
		r.Logger.Warn("rechecker_list_error", zap.Error(err))
		return
	}
	if len(ts) == 0 {
		return
	}

	sem := make(chan struct{}, r.Concurrency)
	var wg sync.WaitGroup

	for _, t := range ts {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		t := t
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()
			r.check(ctx, t)
		}()
	}

	wg.Wait()
}

func (r *Rechecker) check(ctx context.Context, t *domain.Target) {
	cctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	out := r.Checker.Check(cctx, t.Raw)
	rec := domain.NewProbeRecord(t.ID, out, time.Now())

	if err := r.Results.Append(ctx, rec); err != nil {
		r.Logger.Warn("rechecker_append_error",
			zap.String("target_id", string(t.ID)),
			zap.String("target", t.Raw),
			zap.Error(err),
		)
		return
	}
	r.Logger.Debug("rechecker_checked",
		zap.String("target_id", string(t.ID)),
		zap.String("target", t.Raw),
		zap.String("status", string(out.Status)),
		zap.String("expires", out.Expiry()),
		zap.Float64("latency_ms", out.LatencyMS),
		zap.String("reason", out.Reason),
	)
}
