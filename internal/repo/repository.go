package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/tlsprober/internal/domain"
)

// ErrDuplicate is returned by TargetStore.Add when the normalized host:port
// is already registered.
var ErrDuplicate = errors.New("target already exists")

// Ports (interfaces): memory and postgres implement them.
type TargetStore interface {
	Add(ctx context.Context, t *domain.Target) error
	List(ctx context.Context) ([]*domain.Target, error)
}

type ResultStore interface {
	Append(ctx context.Context, r *domain.ProbeRecord) error
	Latest(ctx context.Context) ([]LatestRow, error)
}

// LatestRow is the most recent probe of one target, joined with the target.
type LatestRow struct {
	TargetID  string     `json:"target_id"`
	Target    string     `json:"target"`
	Host      string     `json:"host"`
	Status    string     `json:"status"`
	NotAfter  *time.Time `json:"not_after,omitempty"`
	LatencyMS *float64   `json:"latency_ms,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	CheckedAt time.Time  `json:"checked_at"`
}

// Valid reports whether the row's status is VALID.
func (r LatestRow) Valid() bool { return r.Status == "VALID" }

// Skipped reports a loopback target that was never dialed.
func (r LatestRow) Skipped() bool { return r.Status == "SKIPPED" }

// NewID returns a time-ordered identifier: 20060102Thhmmss.nnnnnnnnn
func NewID() domain.TargetID {
	return domain.TargetID(time.Now().UTC().Format("20060102T150405.000000000"))
}
