package observability

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/learnworld-backend/internal/platform/envutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

const namespace = "learnworld"

// Metrics holds the Prometheus collectors. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	aiRequests *prometheus.CounterVec
	aiLatency  *prometheus.HistogramVec

	phaseDuration *prometheus.HistogramVec
	runOutcomes   *prometheus.CounterVec
	imageOutcomes *prometheus.CounterVec

	aggregateOps       *prometheus.HistogramVec
	aggregateConflicts *prometheus.CounterVec

	schedulerQueued   prometheus.Gauge
	schedulerRejected prometheus.Counter

	feedClients    prometheus.Gauge
	feedDropped    prometheus.Counter
	staleRunsSwept prometheus.Counter
}

var (
	metricsOnce sync.Once
	current     *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

// Current returns the process metrics, or nil when Init has not run or metrics are disabled.
func Current() *Metrics {
	return current
}

// Init builds the process-wide metrics once.
func Init(log *logger.Logger) *Metrics {
	metricsOnce.Do(func() {
		if !Enabled() {
			if log != nil {
				log.Info("metrics disabled")
			}
			return
		}
		current = NewMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return current
}

// NewMetrics registers a fresh collector set on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),
		aiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "ai", Name: "requests_total",
			Help: "AI gateway calls by kind (text|json|image) and outcome.",
		}, []string{"kind", "outcome"}),
		aiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "ai", Name: "request_duration_seconds",
			Help:    "AI gateway call latency.",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"kind"}),
		phaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "worldgen", Name: "phase_duration_seconds",
			Help:    "Generation phase duration by phase and outcome.",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 320},
		}, []string{"phase", "outcome"}),
		runOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worldgen", Name: "runs_total",
			Help: "Finished generation runs by terminal status.",
		}, []string{"status"}),
		imageOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worldgen", Name: "images_total",
			Help: "Module illustration attempts by outcome.",
		}, []string{"outcome"}),
		aggregateOps: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "aggregate", Name: "operation_duration_seconds",
			Help:    "Aggregate write duration by operation and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		aggregateConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "aggregate", Name: "conflicts_total",
			Help: "Aggregate writes rejected by a guard.",
		}, []string{"op"}),
		schedulerQueued: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "queued_tasks",
			Help: "Tasks waiting for a worker.",
		}),
		schedulerRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "rejected_total",
			Help: "Tasks rejected because the scheduler was full or stopped.",
		}),
		feedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "feed", Name: "clients",
			Help: "Connected change feed clients.",
		}),
		feedDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "feed", Name: "dropped_messages_total",
			Help: "Feed messages dropped because a client buffer was full.",
		}),
		staleRunsSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worldgen", Name: "stale_runs_swept_total",
			Help: "Runs moved to error by the stale run sweeper.",
		}),
	}
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	route = strings.TrimSpace(route)
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAIRequest(kind, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aiRequests.WithLabelValues(kind, outcome).Inc()
	m.aiLatency.WithLabelValues(kind).Observe(dur.Seconds())
}

func (m *Metrics) ObservePhase(phase, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, outcome).Observe(dur.Seconds())
}

func (m *Metrics) IncRunOutcome(status string) {
	if m == nil {
		return
	}
	m.runOutcomes.WithLabelValues(status).Inc()
}

func (m *Metrics) IncImageOutcome(outcome string) {
	if m == nil {
		return
	}
	m.imageOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.WithLabelValues(op, status).Observe(dur.Seconds())
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) SetSchedulerQueued(n int) {
	if m == nil {
		return
	}
	m.schedulerQueued.Set(float64(n))
}

func (m *Metrics) IncSchedulerRejected() {
	if m == nil {
		return
	}
	m.schedulerRejected.Inc()
}

func (m *Metrics) FeedClientConnected() {
	if m == nil {
		return
	}
	m.feedClients.Inc()
}

func (m *Metrics) FeedClientDisconnected() {
	if m == nil {
		return
	}
	m.feedClients.Dec()
}

func (m *Metrics) IncFeedDropped() {
	if m == nil {
		return
	}
	m.feedDropped.Inc()
}

func (m *Metrics) AddStaleRunsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.staleRunsSwept.Add(float64(n))
}
