package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"novacred-engine/internal/clean"
)

// FileName is the node-exporter textfile written next to the other artifacts.
const FileName = "metrics.prom"

// Metrics counts what one cleaning pass did. It owns its registry, so the
// textfile holds only these series.
type Metrics struct {
	Registry *prometheus.Registry

	// Records carrying each flag
	Flags *prometheus.CounterVec

	// Value changes by rule
	Changes *prometheus.CounterVec

	// Records removed from the clean table by reason
	Dropped *prometheus.CounterVec

	// Clean table size and review backlog
	CleanRecords  prometheus.Gauge
	ReviewPending prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Flags: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleaner_flags_total",
			Help: "Records carrying a data-quality flag, by flag",
		}, []string{"flag"}),
		Changes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleaner_changes_total",
			Help: "Value changes applied, by rule",
		}, []string{"rule"}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cleaner_records_dropped_total",
			Help: "Records removed from the clean table, by reason",
		}, []string{"reason"}),
		CleanRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "cleaner_clean_records",
			Help: "Rows in the clean table",
		}),
		ReviewPending: f.NewGauge(prometheus.GaugeOpts{
			Name: "cleaner_review_items",
			Help: "Values held for manual review",
		}),
	}
}

// Observe adds a pass result to the counters.
func (m *Metrics) Observe(res *clean.Result) {
	if m == nil || res == nil {
		return
	}
	for _, r := range res.Clean {
		for _, f := range r.Flags.Sorted() {
			m.Flags.WithLabelValues(string(f)).Inc()
		}
	}
	for _, c := range res.Changes {
		m.Changes.WithLabelValues(c.Rule).Inc()
	}
	for _, d := range res.Dropped {
		m.Dropped.WithLabelValues(d.Reason).Inc()
	}
	m.CleanRecords.Set(float64(len(res.Clean)))
	m.ReviewPending.Set(float64(len(res.Review)))
}

// WriteTextfile writes every series in the textfile collector format. The
// file is written through a temp file and renamed into place.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
