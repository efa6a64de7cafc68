package master

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus instrumentation for one Master. A nil
// *metrics is valid and every method becomes a no-op, so a Master built
// without EnableMetrics carries no Prometheus dependency at runtime.
type metrics struct {
	tickDuration *prometheus.HistogramVec
	tickTotal    *prometheus.CounterVec
	wkcStatus    *prometheus.GaugeVec
	inFlight     prometheus.Gauge
}

// NewMetrics registers this package's collectors against reg and returns a
// handle EnableMetrics attaches to a Master. Passing the same registry to
// two masters double-registers the collectors and panics, matching
// promauto's own behavior — callers share one registry per process.
func NewMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		tickDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ecmaster_tick_duration_seconds",
				Help: "Duration of one cyclic engine tick",
				Buckets: []float64{
					0.00005, 0.0001, 0.0002, 0.0005, 0.001, 0.002, 0.005, 0.01,
				},
			},
			[]string{"status"},
		),
		tickTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ecmaster_tick_total",
				Help: "Total number of cyclic engine ticks by outcome",
			},
			[]string{"status"},
		),
		wkcStatus: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ecmaster_domain_wkc_status",
				Help: "Working counter status per domain: 0=zero 1=incomplete 2=complete",
			},
			[]string{"domain"},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "ecmaster_frames_in_flight",
				Help: "Frame descriptors currently checked out of the pool",
			},
		),
	}
}

// EnableMetrics attaches m to the Master; subsequent Tick calls record
// duration, outcome, and per-domain working-counter status.
func (m *Master) EnableMetrics(metrics *metrics) {
	m.metrics = metrics
}

func (mm *metrics) observeTick(status TickStatus, d time.Duration) {
	if mm == nil {
		return
	}
	mm.tickDuration.WithLabelValues(status.String()).Observe(d.Seconds())
	mm.tickTotal.WithLabelValues(status.String()).Inc()
}

func (mm *metrics) observeDomain(name string, status WKCStatus) {
	if mm == nil {
		return
	}
	mm.wkcStatus.WithLabelValues(name).Set(float64(status))
}

func (mm *metrics) observeInFlight(n int) {
	if mm == nil {
		return
	}
	mm.inFlight.Set(float64(n))
}
