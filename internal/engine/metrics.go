package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus instruments.
type Metrics struct {
	ItemsDigested      *prometheus.CounterVec
	PaymentsRegistered prometheus.Counter
	AutopayBatches     *prometheus.CounterVec
	CycleErrors        *prometheus.CounterVec
	Tips               prometheus.Gauge
	BufferDepth        prometheus.Gauge
	TiplessPayments    prometheus.Gauge
	CycleDuration      prometheus.Histogram
}

// NewMetrics registers the engine metrics with reg. A nil reg gets a
// private registry, which keeps tests and multiple engines apart.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ItemsDigested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tipsync_items_digested_total",
			Help: "Inbox items digested, by outcome",
		}, []string{"outcome"}),
		PaymentsRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "tipsync_payments_registered_total",
			Help: "On-chain payments registered against tips",
		}),
		AutopayBatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tipsync_autopay_batches_total",
			Help: "Autopay broadcast attempts, by result",
		}, []string{"result"}),
		CycleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tipsync_cycle_errors_total",
			Help: "Failed reconciliation cycles, by error code",
		}, []string{"code"}),
		Tips: f.NewGauge(prometheus.GaugeOpts{
			Name: "tipsync_tips",
			Help: "Tips in the collection",
		}),
		BufferDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "tipsync_deferred_associations",
			Help: "Association events waiting for their tip",
		}),
		TiplessPayments: f.NewGauge(prometheus.GaugeOpts{
			Name: "tipsync_tipless_payments",
			Help: "Payments held for addresses without a tip",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tipsync_cycle_duration_seconds",
			Help:    "Duration of reconciliation cycles",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
