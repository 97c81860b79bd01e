// Package metrics exports refresh cycle outcomes to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jdholdren/mirror/internal/mirror"
)

const namespace = "mirror"

var _ mirror.Observer = (*Metrics)(nil)

// Metrics holds the collectors for refresh cycles.
type Metrics struct {
	Cycles        *prometheus.CounterVec
	Changes       *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	LastSuccess   prometheus.Gauge
}

// New registers the collectors with reg. Tests pass their own registry to
// avoid duplicate registration against the default one.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles by outcome",
		}, []string{"outcome"}),
		Changes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_changes_total",
			Help:      "Items written by refresh cycles by kind and result",
		}, []string{"kind", "result"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_cycle_duration_seconds",
			Help:      "Wall time of a refresh cycle",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_last_success_timestamp_seconds",
			Help:      "Unix time of the last refresh cycle that completed",
		}),
	}
}

func (m *Metrics) CycleFinished(r mirror.Report, err error) {
	m.CycleDuration.Observe(r.Duration.Seconds())
	if err != nil {
		m.Cycles.WithLabelValues("aborted").Inc()
		return
	}
	m.Cycles.WithLabelValues("completed").Inc()
	m.LastSuccess.SetToCurrentTime()

	m.record("repo", r.Repos)
	m.record("document", r.Documents)
}

func (m *Metrics) record(kind string, t mirror.Tally) {
	m.Changes.WithLabelValues(kind, "upserted").Add(float64(t.Upserted))
	m.Changes.WithLabelValues(kind, "deleted").Add(float64(t.Deleted))
	m.Changes.WithLabelValues(kind, "unchanged").Add(float64(t.Unchanged))
	m.Changes.WithLabelValues(kind, "failed").Add(float64(t.Failed))
}
