package react

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the optional Prometheus instrumentation for episode
// execution. A nil *Metrics is valid everywhere in this package; every
// recording method is a no-op on a nil receiver.
type Metrics struct {
	episodesTotal   *prometheus.CounterVec
	episodeSteps    prometheus.Histogram
	episodeTokens   prometheus.Histogram
	episodeDuration prometheus.Histogram
}

// NewMetrics registers episode counters/histograms against reg. Pass a
// fresh *prometheus.Registry in tests to avoid collisions with the
// default global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		episodesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agentcore_react_episodes_total",
			Help: "Completed ReAct episodes by terminal status.",
		}, []string{"status"}),
		episodeSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentcore_react_episode_steps",
			Help:    "Number of reasoning steps per completed episode.",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}),
		episodeTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentcore_react_episode_tokens",
			Help:    "Total tokens consumed per completed episode.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12),
		}),
		episodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentcore_react_episode_duration_seconds",
			Help:    "Wall-clock duration of a completed episode.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.episodesTotal, m.episodeSteps, m.episodeTokens, m.episodeDuration)
	}
	return m
}

func (m *Metrics) observeOutcome(out Outcome, seconds float64) {
	if m == nil {
		return
	}
	m.episodesTotal.WithLabelValues(string(out.Status)).Inc()
	m.episodeSteps.Observe(float64(out.Steps))
	m.episodeTokens.Observe(float64(out.TokensUsed))
	m.episodeDuration.Observe(seconds)
}
