// Package metrics exports worker and group lifecycle as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/gpio-controller/internal/worker"
)

const namespace = "gpio_controller"

var workerStates = []worker.State{
	worker.StateCreated,
	worker.StateRunning,
	worker.StateStopRequested,
	worker.StateStopped,
	worker.StateFailed,
}

var groupStates = []worker.GroupState{
	worker.GroupIdle,
	worker.GroupRunning,
	worker.GroupDraining,
	worker.GroupDone,
}

// Collector records lifecycle transitions. It implements worker.Listener.
type Collector struct {
	registry *prometheus.Registry

	workerState *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	groupState  *prometheus.GaugeVec
	drain       *prometheus.HistogramVec

	mu          sync.Mutex
	drainStarts map[string]time.Time
}

// New creates a Collector with its own registry, which also carries the Go
// runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry:    prometheus.NewRegistry(),
		drainStarts: make(map[string]time.Time),
		workerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "state",
			Help:      "1 for the current lifecycle state of each worker, 0 otherwise.",
		}, []string{"group", "worker", "state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "transitions_total",
			Help:      "Worker state transitions by target state.",
		}, []string{"group", "worker", "state"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "failures_total",
			Help:      "Workers that exited with an error.",
		}, []string{"group", "worker"}),
		groupState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "state",
			Help:      "1 for the current lifecycle state of each group, 0 otherwise.",
		}, []string{"group", "state"}),
		drain: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "drain_duration_seconds",
			Help:      "Time from the start of a drain until every worker has exited or timed out.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"group"}),
	}
	c.registry.MustRegister(
		c.workerState,
		c.transitions,
		c.failures,
		c.groupState,
		c.drain,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry metrics are recorded in.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WorkerTransition implements worker.Listener.
func (c *Collector) WorkerTransition(t worker.WorkerTransition) {
	for _, s := range workerStates {
		v := 0.0
		if s == t.To {
			v = 1
		}
		c.workerState.WithLabelValues(t.Group, t.Worker, string(s)).Set(v)
	}
	c.transitions.WithLabelValues(t.Group, t.Worker, string(t.To)).Inc()
	if t.To == worker.StateFailed {
		c.failures.WithLabelValues(t.Group, t.Worker).Inc()
	}
}

// GroupTransition implements worker.Listener.
func (c *Collector) GroupTransition(t worker.GroupTransition) {
	for _, s := range groupStates {
		v := 0.0
		if s == t.To {
			v = 1
		}
		c.groupState.WithLabelValues(t.Group, string(s)).Set(v)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch t.To {
	case worker.GroupDraining:
		c.drainStarts[t.Group] = t.Time
	case worker.GroupDone:
		if start, ok := c.drainStarts[t.Group]; ok {
			c.drain.WithLabelValues(t.Group).Observe(t.Time.Sub(start).Seconds())
			delete(c.drainStarts, t.Group)
		}
	}
}
