package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamed0406/tlsprober/internal/probe"
)

// Metrics holds the prober's collectors on one registry.
type Metrics struct {
	reg *prometheus.Registry

	probes   *prometheus.CounterVec
	duration prometheus.Histogram
	notAfter *prometheus.GaugeVec
	valid    *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tlsprober_probes_total",
				Help: "Total number of TLS probes by result status",
			},
			[]string{"status"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tlsprober_probe_duration_seconds",
				Help:    "Wall time of a TLS probe including retries",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		notAfter: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tlsprober_cert_not_after_seconds",
				Help: "Leaf certificate notAfter as a unix timestamp",
			},
			[]string{"host"},
		),
		valid: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tlsprober_cert_valid",
				Help: "Last probe result was VALID (1) or not (0)",
			},
			[]string{"host"},
		),
	}
	m.reg.MustRegister(
		m.probes,
		m.duration,
		m.notAfter,
		m.valid,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves this registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Observe records one finished probe in the status counter and the latency
// histogram. Neither carries a host label, so arbitrary client input cannot
// grow the series count.
func (m *Metrics) Observe(res probe.Result, took time.Duration) {
	m.probes.WithLabelValues(string(res.Status)).Inc()
	m.duration.Observe(took.Seconds())
}

// ObserveHost updates the per-host gauges. Call it only for hosts the
// service tracks; invalid targets and SKIPPED results are ignored.
func (m *Metrics) ObserveHost(res probe.Result) {
	if res.Host == "" || res.Status == probe.StatusSkipped || errors.Is(res.Err, probe.ErrInvalidTarget) {
		return
	}
	// FAILED carries no certificate; keep the last known window.
	if !res.HasWindow() {
		if res.Status == probe.StatusFailed {
			m.valid.WithLabelValues(res.Host).Set(0)
		}
		return
	}
	m.notAfter.WithLabelValues(res.Host).Set(float64(res.NotAfter.Unix()))
	if res.IsValid() {
		m.valid.WithLabelValues(res.Host).Set(1)
	} else {
		m.valid.WithLabelValues(res.Host).Set(0)
	}
}

// Instrument wraps c so every Check is counted and timed.
func (m *Metrics) Instrument(c probe.Checker) probe.Checker {
	return probe.CheckerFunc(func(ctx context.Context, target string) probe.Result {
		start := time.Now()
		res := c.Check(ctx, target)
		m.Observe(res, time.Since(start))
		return res
	})
}

// TrackHosts wraps c so every result also feeds the per-host gauges. Wrap
// only checkers driven by stored targets, never ad-hoc API requests.
func (m *Metrics) TrackHosts(c probe.Checker) probe.Checker {
	return probe.CheckerFunc(func(ctx context.Context, target string) probe.Result {
		res := c.Check(ctx, target)
		m.ObserveHost(res)
		return res
	})
}
