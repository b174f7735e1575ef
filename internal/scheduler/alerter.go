package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/tlsprober/internal/notify"
	"github.com/hamed0406/tlsprober/internal/probe"
	"github.com/hamed0406/tlsprober/internal/repo"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
	PollInterval    time.Duration
}

// Alerter watches the latest probe per target and notifies when a target
// moves between VALID and anything else.
type Alerter struct {
	log      *zap.Logger
	results  repo.ResultStore
	alertDB  repo.AlertStore
	notifier notify.Notifier
	cfg      AlerterConfig
	now      func() time.Time
}

func NewAlerter(
	logger *zap.Logger,
	results repo.ResultStore,
	alertDB repo.AlertStore,
	notifier notify.Notifier,
	cfg AlerterConfig,
) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Alerter{
		log:      logger,
		results:  results,
		alertDB:  alertDB,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (a *Alerter) Run(ctx context.Context) error {
	t := time.NewTicker(a.cfg.PollInterval)
	defer t.Stop()

	a.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			a.scan(ctx)
		}
	}
}

func (a *Alerter) scan(ctx context.Context) {
	if err := a.scanOnce(ctx); err != nil {
		a.log.Warn("alerter_scan_error", zap.Error(err))
	}
}

func (a *Alerter) scanOnce(ctx context.Context) error {
	rows, err := a.results.Latest(ctx)
	if err != nil {
		return err
	}

	now := a.now()

	for _, r := range rows {
		// Nothing was checked, so there is no state to alert on or record.
		if r.Skipped() {
			continue
		}
		rec, err := a.alertDB.Get(ctx, r.TargetID)
		if err != nil {
			a.log.Warn("alerter_state_error", zap.String("target_id", r.TargetID), zap.Error(err))
			continue
		}
		valid := r.Valid()

		// A target seen for the first time counts as a change unless it is VALID.
		stateChanged := (rec == nil && !valid) || (rec != nil && rec.LastValid != valid)

		cooled := true
		if rec != nil && rec.LastSentAt != nil {
			cooled = now.Sub(*rec.LastSentAt) >= a.cfg.Cooldown
		}

		badAlert := stateChanged && !valid && cooled
		recoveryAlert := stateChanged && valid && a.cfg.AlertOnRecovery // bypasses cooldown

		if badAlert || recoveryAlert {
			title, text := alertMessage(r)
			if err := a.notifier.Send(ctx, title, text); err != nil {
				a.log.Warn("alerter_send_error", zap.String("target_id", r.TargetID), zap.Error(err))
			}
			if err := a.alertDB.Set(ctx, r.TargetID, valid, now); err != nil {
				a.log.Warn("alerter_state_error", zap.String("target_id", r.TargetID), zap.Error(err))
			}
			continue
		}

		// Record the new state but keep the last send time (cooldown or recovery off).
		if rec == nil || stateChanged {
			var sentAt time.Time
			if rec != nil && rec.LastSentAt != nil {
				sentAt = *rec.LastSentAt
			}
			if err := a.alertDB.Set(ctx, r.TargetID, valid, sentAt); err != nil {
				a.log.Warn("alerter_state_error", zap.String("target_id", r.TargetID), zap.Error(err))
			}
		}
	}

	return nil
}

func alertMessage(r repo.LatestRow) (title, text string) {
	title = "🔴 Certificate " + r.Status
	if r.Valid() {
		title = "🟢 Certificate VALID again"
	}

	expires := "n/a"
	if r.NotAfter != nil {
		expires = r.NotAfter.UTC().Format(probe.ExpiryLayout)
	}
	reason := r.Reason
	if reason == "" {
		reason = "-"
	}

	text = fmt.Sprintf(
		"Target: %s\nHost: %s\nStatus: %s\nExpires: %s\nReason: %s\nChecked: %s",
		r.Target, r.Host, r.Status, expires, reason, r.CheckedAt.Format(time.RFC3339),
	)
	return title, text
}
