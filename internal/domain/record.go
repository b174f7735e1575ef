package domain

import (
	"time"

	"github.com/hamed0406/tlsprober/internal/probe"
)

// NewProbeRecord converts a probe result into its stored form.
func NewProbeRecord(id TargetID, r probe.Result, at time.Time) *ProbeRecord {
	rec := &ProbeRecord{
		TargetID:  id,
		Status:    string(r.Status),
		LatencyMS: r.LatencyMS,
		Reason:    r.Reason,
		CheckedAt: at.UTC(),
	}
	if r.HasWindow() {
		nb, na := r.NotBefore, r.NotAfter
		rec.NotBefore = &nb
		rec.NotAfter = &na
	}
	return rec
}
