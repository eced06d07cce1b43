package background

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the optional Prometheus instrumentation for background
// agent runs, mirroring react.Metrics's nil-safe shape so a Scheduler
// built without a registry never has to branch on whether metrics are
// wired.
type Metrics struct {
	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	skippedBusy  prometheus.Counter
	runningGauge prometheus.Gauge
}

// NewMetrics registers background-run counters/histograms against reg.
// Pass a fresh *prometheus.Registry in tests to avoid collisions with the
// default global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_background_runs_total",
			Help: "Completed background-agent runs by terminal outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentcore_background_run_duration_seconds",
			Help:    "Wall-clock duration of one background-agent run, across all retry attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		skippedBusy: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "agentcore_background_skipped_busy_total",
			Help: "Scheduler ticks skipped because the agent's run-lock was already held.",
		}),
		runningGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agentcore_background_runs_in_flight",
			Help: "Number of background-agent runs currently executing.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runsTotal, m.runDuration, m.skippedBusy, m.runningGauge)
	}
	return m
}

func (m *Metrics) observeStart() {
	if m == nil {
		return
	}
	m.runningGauge.Inc()
}

func (m *Metrics) observeDone(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.runningGauge.Dec()
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(seconds)
}

func (m *Metrics) observeSkippedBusy() {
	if m == nil {
		return
	}
	m.skippedBusy.Inc()
}
