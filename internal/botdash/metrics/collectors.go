package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation outcomes recorded by ObserveOp.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Collectors owns botdash's Prometheus collectors and the registry they are
// registered on. Each Collectors has its own registry, so tests and
// multiple servers in one process do not clash.
type Collectors struct {
	registry *prometheus.Registry

	BotCPUPercent     *prometheus.GaugeVec
	BotMemoryBytes    *prometheus.GaugeVec
	LifecycleOps      *prometheus.CounterVec
	DeployDuration    prometheus.Histogram
	BotsTotal         *prometheus.GaugeVec
	OrphanedInstances prometheus.Gauge
	ReconcilePasses   *prometheus.CounterVec
}

// New creates and registers every collector, plus the Go runtime and
// process collectors.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),

		BotCPUPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "botdash_bot_cpu_percent",
				Help: "CPU usage of a bot instance at its last stats sample",
			},
			[]string{"bot_id"},
		),

		BotMemoryBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "botdash_bot_memory_bytes",
				Help: "Memory usage of a bot instance at its last stats sample",
			},
			[]string{"bot_id"},
		),

		LifecycleOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botdash_lifecycle_operations_total",
				Help: "Lifecycle operations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),

		DeployDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "botdash_deploy_duration_seconds",
				Help:    "Wall time of deploy attempts, successful or not",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		BotsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "botdash_bots_total",
				Help: "Stored bots by logical status",
			},
			[]string{"status"},
		),

		OrphanedInstances: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "botdash_orphaned_instances",
				Help: "Labelled instances not bound to any stored bot",
			},
		),

		ReconcilePasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botdash_reconcile_passes_total",
				Help: "Reconciliation passes by outcome",
			},
			[]string{"outcome"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.BotCPUPercent,
		c.BotMemoryBytes,
		c.LifecycleOps,
		c.DeployDuration,
		c.BotsTotal,
		c.OrphanedInstances,
		c.ReconcilePasses,
	)
	return c
}

// Registry returns the registry the collectors are registered on.
func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveOp counts one lifecycle operation. A nil Collectors is a no-op so
// callers can leave metrics unset in tests.
func (c *Collectors) ObserveOp(op string, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	c.LifecycleOps.WithLabelValues(op, outcome).Inc()
}

// ObserveStats records the latest resource sample of a bot.
func (c *Collectors) ObserveStats(botID string, v View, memoryBytes uint64) {
	if c == nil {
		return
	}
	c.BotCPUPercent.WithLabelValues(botID).Set(v.CPUPercent)
	c.BotMemoryBytes.WithLabelValues(botID).Set(float64(memoryBytes))
}

// ForgetBot drops per-bot series after the bot is deleted.
func (c *Collectors) ForgetBot(botID string) {
	if c == nil {
		return
	}
	c.BotCPUPercent.DeleteLabelValues(botID)
	c.BotMemoryBytes.DeleteLabelValues(botID)
}

// SetBotCounts replaces the per-status bot gauge.
func (c *Collectors) SetBotCounts(counts map[string]int) {
	if c == nil {
		return
	}
	c.BotsTotal.Reset()
	for status, n := range counts {
		c.BotsTotal.WithLabelValues(status).Set(float64(n))
	}
}

// SetOrphans records the number of orphaned instances seen by the last
// reconcile pass.
func (c *Collectors) SetOrphans(n int) {
	if c == nil {
		return
	}
	c.OrphanedInstances.Set(float64(n))
}

// ObserveReconcile counts one reconcile pass.
func (c *Collectors) ObserveReconcile(err error) {
	if c == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailed
	}
	c.ReconcilePasses.WithLabelValues(outcome).Inc()
}

// Timer measures the duration of one operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDeploy records the timer's duration on the deploy histogram.
func (t *Timer) ObserveDeploy(c *Collectors) {
	if c == nil {
		return
	}
	c.DeployDuration.Observe(t.Duration().Seconds())
}
