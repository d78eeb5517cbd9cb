package generate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	SessionsStarted    prometheus.Counter
	SessionsFinished   *prometheus.CounterVec
	TriggersSuppressed *prometheus.CounterVec
	ActiveSessions     prometheus.GaugeFunc
	ThrottleWait       prometheus.Histogram
}

// NewMetrics registers the engine collectors with reg. The active-session
// gauge reads from sessions at scrape time; pass nil to skip it.
func NewMetrics(reg prometheus.Registerer, sessions func() int) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "ghostline_sessions_started_total",
			Help: "Completion sessions created",
		}),
		SessionsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ghostline_sessions_finished_total",
			Help: "Completion sessions that reached a terminal status",
		}, []string{"status"}),
		TriggersSuppressed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ghostline_triggers_suppressed_total",
			Help: "Triggers answered with no completion before any request was made",
		}, []string{"reason"}),
		ThrottleWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ghostline_throttle_wait_seconds",
			Help:    "Time sessions spent waiting for a throttle slot",
			Buckets: []float64{.001, .005, .01, .025, .05, .075, .1, .25, .5, 1},
		}),
	}
	if sessions != nil {
		m.ActiveSessions = f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ghostline_active_sessions",
			Help: "Sessions currently held in the registry",
		}, func() float64 { return float64(sessions()) })
	}
	return m
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

func (m *Metrics) sessionFinished(status Status) {
	if m == nil {
		return
	}
	m.SessionsFinished.WithLabelValues(status.String()).Inc()
}

func (m *Metrics) triggerSuppressed(reason string) {
	if m == nil {
		return
	}
	m.TriggersSuppressed.WithLabelValues(reason).Inc()
}

func (m *Metrics) throttled(d time.Duration) {
	if m == nil {
		return
	}
	m.ThrottleWait.Observe(d.Seconds())
}
