package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics aggregates the prometheus instruments exposed by the lending
// pool engine.
type PoolMetrics struct {
	operations  *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	flashLoaned prometheus.Counter
	paused      prometheus.Gauge
}

var (
	poolOnce     sync.Once
	poolRegistry *PoolMetrics
)

// Pool returns the process-wide pool metrics, registering them on first use.
func Pool() *PoolMetrics {
	poolOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pool_operations_total",
				Help: "Count of accepted pool operations by type.",
			}, []string{"op"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "pool_rejections_total",
				Help: "Count of rejected pool operations by type.",
			}, []string{"op"}),
			flashLoaned: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "pool_flash_loans_total",
				Help: "Count of settled flash loan assets.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "pool_paused",
				Help: "Whether the pool-wide pause flag is currently raised.",
			}),
		}
		prometheus.MustRegister(
			poolRegistry.operations,
			poolRegistry.rejections,
			poolRegistry.flashLoaned,
			poolRegistry.paused,
		)
	})
	return poolRegistry
}

// ObserveOperation records an accepted operation of the given type.
func (m *PoolMetrics) ObserveOperation(op string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op).Inc()
}

// ObserveRejection records a rejected operation of the given type.
func (m *PoolMetrics) ObserveRejection(op string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(op).Inc()
}

// ObserveFlashLoan records one settled flash loan asset.
func (m *PoolMetrics) ObserveFlashLoan() {
	if m == nil {
		return
	}
	m.flashLoaned.Inc()
}

// SetPaused publishes the pool-wide pause flag.
func (m *PoolMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}
