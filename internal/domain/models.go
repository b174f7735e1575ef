package domain

import "time"

type TargetID string

// Target is a host (URL, host or host:port) registered for periodic probing.
type Target struct {
	ID        TargetID  `json:"id"`
	Raw       string    `json:"target"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	CreatedAt time.Time `json:"created_at"`
}

// ProbeRecord is one stored probe outcome for a Target.
type ProbeRecord struct {
	TargetID  TargetID   `json:"target_id"`
	Status    string     `json:"status"`
	NotBefore *time.Time `json:"not_before,omitempty"`
	NotAfter  *time.Time `json:"not_after,omitempty"`
	LatencyMS float64    `json:"latency_ms"`
	Reason    string     `json:"reason,omitempty"`
	CheckedAt time.Time  `json:"checked_at"`
}

// Valid reports whether the record's status is VALID.
func (r ProbeRecord) Valid() bool { return r.Status == "VALID" }
