package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "entitydoc"

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	// PatchesTotal counts patches by op and result (applied, noop, rejected).
	PatchesTotal *prometheus.CounterVec

	// HistoryTotal counts undo and redo requests by direction and result.
	HistoryTotal *prometheus.CounterVec

	// SavesTotal counts entity saves by result (saved, skipped, failed).
	SavesTotal *prometheus.CounterVec

	// SaveDurationSeconds observes the duration of SaveModified passes.
	SaveDurationSeconds prometheus.Histogram

	// LoadedEntities is the number of entities held in memory.
	LoadedEntities prometheus.Gauge
}

// NewMetrics registers the service collectors on reg. A nil reg uses a
// fresh private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		PatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "entity",
				Name:      "patches_total",
				Help:      "Patch operations applied to entities by op and result",
			},
			[]string{"op", "result"},
		),
		HistoryTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "entity",
				Name:      "history_total",
				Help:      "Undo and redo requests by direction and result",
			},
			[]string{"direction", "result"},
		),
		SavesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "store",
				Name:      "saves_total",
				Help:      "Entity saves by result",
			},
			[]string{"result"},
		),
		SaveDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "store",
				Name:      "save_duration_seconds",
				Help:      "Duration of a save pass over modified entities",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		LoadedEntities: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "entity",
				Name:      "loaded",
				Help:      "Entities currently held in memory",
			},
		),
	}
}
