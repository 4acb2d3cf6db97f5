// Package metrics holds the prometheus collectors exported by derivex workers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/derivex/internal/core/domain"
)

const namespace = "derivex"

var (
	documentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_total",
		Help:      "Documents processed, by result (succeeded, unchanged, missing, transform, fetch, write).",
	}, []string{"result"})

	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_total",
		Help:      "Task deliveries, by terminal or retry status.",
	}, []string{"status"})

	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Time spent processing one task delivery.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	batchesDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_dispatched_total",
		Help:      "Batches turned into tasks by the dispatcher.",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_pending_tasks",
		Help:      "Tasks waiting for a worker.",
	})
)

// ObserveOutcome counts the documents of one delivery by result.
func ObserveOutcome(o domain.BatchOutcome) {
	documentsTotal.WithLabelValues("succeeded").Add(float64(len(o.Succeeded)))
	documentsTotal.WithLabelValues("unchanged").Add(float64(len(o.Unchanged)))
	documentsTotal.WithLabelValues("missing").Add(float64(len(o.Missing)))
	for _, e := range o.Errors {
		documentsTotal.WithLabelValues(string(e.Kind)).Inc()
	}
}

// ObserveTask records a finished delivery.
func ObserveTask(status domain.TaskStatus, elapsed time.Duration) {
	tasksTotal.WithLabelValues(string(status)).Inc()
	taskDuration.Observe(elapsed.Seconds())
}

// BatchDispatched counts one dispatched batch.
func BatchDispatched() {
	batchesDispatched.Inc()
}

// SetQueueDepth reports the number of tasks waiting for a worker.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
