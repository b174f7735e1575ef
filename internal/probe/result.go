package probe

import (
	"fmt"
	"time"
)

// Status is the outcome bucket of a single probe.
type Status string

const (
	StatusValid   Status = "VALID"
	StatusInvalid Status = "INVALID"
	StatusSkipped Status = "SKIPPED"
	StatusFailed  Status = "FAILED"
)

// ExpiryLayout renders certificate timestamps in log lines (always UTC).
const ExpiryLayout = "2006-01-02 15:04:05"

// Result is the outcome of one probe. NotBefore/NotAfter are set only for
// VALID and INVALID; Reason is set for SKIPPED and FAILED.
type Result struct {
	Status    Status    `json:"status"`
	Host      string    `json:"host"`
	Port      int       `json:"port,omitempty"`
	NotBefore time.Time `json:"not_before,omitzero"`
	NotAfter  time.Time `json:"not_after,omitzero"`
	Reason    string    `json:"reason,omitempty"`
	LatencyMS float64   `json:"latency_ms"`
	Err       error     `json:"-"`
}

// IsValid reports whether the certificate was current and verified.
func (r Result) IsValid() bool { return r.Status == StatusValid }

// HasWindow reports whether the result carries certificate timestamps.
func (r Result) HasWindow() bool {
	return r.Status == StatusValid || r.Status == StatusInvalid
}

// Expiry returns NotAfter formatted with ExpiryLayout, or "" when the result
// has no certificate window.
func (r Result) Expiry() string {
	if !r.HasWindow() {
		return ""
	}
	return r.NotAfter.UTC().Format(ExpiryLayout)
}

// LogLine is the human-readable status line handed to the injected Logger.
func (r Result) LogLine() string {
	switch r.Status {
	case StatusValid, StatusInvalid:
		return fmt.Sprintf("tls check: %s for %s (expires: %s)", r.Status, r.Host, r.Expiry())
	default:
		return fmt.Sprintf("tls check: %s for %s (%s)", r.Status, r.Host, r.Reason)
	}
}

// InWindow reports notBefore <= now < notAfter.
func InWindow(now, notBefore, notAfter time.Time) bool {
	return !now.Before(notBefore) && now.Before(notAfter)
}
