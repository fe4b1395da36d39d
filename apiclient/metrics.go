package apiclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeStale   = "stale"
)

// Metrics counts refresh-protocol activity. A nil *Metrics records nothing.
type Metrics struct {
	Refreshes       *prometheus.CounterVec
	Waiters         prometheus.Counter
	Replays         prometheus.Counter
	RefreshDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutorhub",
			Subsystem: "client",
			Name:      "refresh_total",
			Help:      "Access token refresh calls by outcome.",
		}, []string{"outcome"}),
		Waiters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tutorhub",
			Subsystem: "client",
			Name:      "refresh_waiters_total",
			Help:      "Requests that waited on a refresh, including the one that started it.",
		}),
		Replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tutorhub",
			Subsystem: "client",
			Name:      "replays_total",
			Help:      "Requests retried with a new access token.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tutorhub",
			Subsystem: "client",
			Name:      "refresh_duration_seconds",
			Help:      "Latency of the refresh endpoint.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Refreshes, m.Waiters, m.Replays, m.RefreshDuration)
	}
	return m
}

func (m *Metrics) refreshed(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
	m.RefreshDuration.Observe(took.Seconds())
}

func (m *Metrics) waited() {
	if m == nil {
		return
	}
	m.Waiters.Inc()
}

func (m *Metrics) replayed() {
	if m == nil {
		return
	}
	m.Replays.Inc()
}
