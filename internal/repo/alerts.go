package repo

import (
	"context"
	"time"
)

// AlertRecord holds the last-known verdict for a target and the last time a
// notification was sent for it. LastValid is the last VALID/not-VALID state
// seen; LastSentAt drives the cooldown.
type AlertRecord struct {
	TargetID   string
	LastValid  bool
	LastSentAt *time.Time
}

// AlertStore is implemented by a persistence layer to store alert state.
type AlertStore interface {
	// Get returns nil, nil if there's no record yet.
	Get(ctx context.Context, targetID string) (*AlertRecord, error)
	// Set upserts the record. If sentAt.IsZero() we store NULL for last_sent_at.
	Set(ctx context.Context, targetID string, lastValid bool, sentAt time.Time) error
}
