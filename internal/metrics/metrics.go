package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics счётчики конвейера пересборки чанков.
//
// Метрики:
// * jobs_dispatched_total{lane}: counter
// * jobs_completed_total{lane,verdict}: counter
// * stage_duration_seconds{stage}: histogram (occupancy, lighting, mesh, total)
// * queue_depth{lane}: gauge
// * inflight_jobs: gauge
// * seam_updates_total: counter
// * invariant_violations_total{kind}: counter
// * mesh_quads: histogram
type Metrics struct {
	Dispatched  *prometheus.CounterVec
	Completed   *prometheus.CounterVec
	Stage       *prometheus.HistogramVec
	QueueDepth  *prometheus.GaugeVec
	Inflight    prometheus.Gauge
	SeamUpdates prometheus.Counter
	Violations  *prometheus.CounterVec
	Quads       prometheus.Histogram
}

// New создаёт и регистрирует метрики. reg == nil означает дефолтный регистр.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dispatched_total",
			Help:      "Число заданий, отправленных воркерам.",
		}, []string{"lane"}),
		Completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Число обработанных результатов по вердикту.",
		}, []string{"lane", "verdict"}),
		Stage: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Длительность стадий задания.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}, []string{"stage"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Заданий в очереди по полосам.",
		}, []string{"lane"}),
		Inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_jobs",
			Help:      "Заданий в работе у воркеров.",
		}),
		SeamUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seam_updates_total",
			Help:      "Опубликованных изменений граней.",
		}),
		Violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invariant_violations_total",
			Help:      "Нарушения инвариантов мешера и освещения.",
		}, []string{"kind"}),
		Quads: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mesh_quads",
			Help:      "Число квадов в меше чанка.",
			Buckets:   prometheus.ExponentialBuckets(8, 2, 12),
		}),
	}
	reg.MustRegister(m.Dispatched, m.Completed, m.Stage, m.QueueDepth, m.Inflight, m.SeamUpdates, m.Violations, m.Quads)
	return m
}
