// Package metrics exposes Prometheus collectors for the index queue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbsmedya/goindexq/internal/queue"
)

const namespace = "goindexq"

// Collector groups the queue metrics. A nil *Collector records nothing.
type Collector struct {
	queueItems  *prometheus.GaugeVec
	queueRatio  *prometheus.GaugeVec
	dispatched  *prometheus.CounterVec
	itemsWorked *prometheus.CounterVec
}

// New creates the collectors and registers them on reg when reg is non-nil.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		queueItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items",
			Help:      "Index queue items by state at the last statistics refresh.",
		}, []string{"state"}),
		queueRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "items_percentage",
			Help:      "Share of index queue items per state, 0-100.",
		}, []string{"state"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Change events dispatched, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		itemsWorked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "items_total",
			Help:      "Queue items processed by workers, by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(c.queueItems, c.queueRatio, c.dispatched, c.itemsWorked)
	}
	return c
}

// ObserveDispatch counts one dispatched event.
func (c *Collector) ObserveDispatch(kind string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.dispatched.WithLabelValues(kind, outcome).Inc()
}

// ObserveIndexed counts items successfully handed to the document sink.
func (c *Collector) ObserveIndexed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.itemsWorked.WithLabelValues("indexed").Add(float64(n))
}

// ObserveFailed counts items marked failed.
func (c *Collector) ObserveFailed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.itemsWorked.WithLabelValues("failed").Add(float64(n))
}

// SetStatistic publishes a freshly computed queue statistic.
func (c *Collector) SetStatistic(stat queue.Statistic) {
	if c == nil {
		return
	}
	for _, state := range queue.States {
		c.queueItems.WithLabelValues(state.String()).Set(float64(stat.Count(state)))
		c.queueRatio.WithLabelValues(state.String()).Set(stat.Percentage(state))
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
