package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opspanel/backend/internal/infrastructure/logger"
)

const namespace = "opspanel"

// Metrics owns a private registry; every process builds one and passes it
// down to the scheduler, the worker pool and the HTTP layer.
type Metrics struct {
	registry *prometheus.Registry

	SchedulerEnqueued      *prometheus.CounterVec
	SchedulerEnqueueFailed *prometheus.CounterVec
	SchedulerTicks         prometheus.Counter
	SchedulerLeader        prometheus.Gauge
	WorkerTasks            *prometheus.CounterVec
	WorkerTaskDuration     *prometheus.HistogramVec
	WorkerInFlight         prometheus.Gauge
	CleanupDeleted         *prometheus.CounterVec
	ProbeResults           *prometheus.CounterVec
	BackupsCreated         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SchedulerEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "enqueued_total",
			Help: "Scheduled invocations enqueued, by definition.",
		}, []string{"definition"}),
		SchedulerEnqueueFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "enqueue_failures_total",
			Help: "Enqueue attempts that failed and will be retried next tick.",
		}, []string{"definition"}),
		SchedulerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "ticks_total",
			Help: "Ticks evaluated while holding leadership.",
		}),
		SchedulerLeader: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "leader",
			Help: "1 when this instance holds the scheduler lock.",
		}),
		WorkerTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker", Name: "tasks_total",
			Help: "Executed invocations by task and outcome.",
		}, []string{"task", "status"}),
		WorkerTaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "worker", Name: "task_duration_seconds",
			Help:    "Task execution time.",
			Buckets: []float64{0.05, 0.25, 1, 5, 30, 120, 600, 1800},
		}, []string{"task"}),
		WorkerInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "worker", Name: "in_flight",
			Help: "Invocations currently executing.",
		}),
		CleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cleanup", Name: "rows_total",
			Help: "Rows deleted or expired by retention sweeps.",
		}, []string{"table"}),
		ProbeResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "probe", Name: "results_total",
			Help: "Probe results recorded.",
		}, []string{"scope", "kind", "success"}),
		BackupsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "backup", Name: "records_total",
			Help: "Backup records written by category and status.",
		}, []string{"category", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SchedulerEnqueued,
		m.SchedulerEnqueueFailed,
		m.SchedulerTicks,
		m.SchedulerLeader,
		m.WorkerTasks,
		m.WorkerTaskDuration,
		m.WorkerInFlight,
		m.CleanupDeleted,
		m.ProbeResults,
		m.BackupsCreated,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes the registry on its own listener until ctx is cancelled.
// The beat and worker processes use it; the API server mounts Handler instead.
func (m *Metrics) Serve(ctx context.Context, addr, path string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infow("metrics_listening", "address", addr, "path", path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics_server_failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
