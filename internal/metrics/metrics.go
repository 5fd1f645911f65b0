package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apexmedia/cdn-sync-agent/internal/engine"
)

// Recorder exposes engine activity as Prometheus metrics. It implements
// engine.Events.
type Recorder struct {
	registry *prometheus.Registry

	opsEnqueued      *prometheus.CounterVec
	batchesDelivered prometheus.Counter
	batchesFailed    prometheus.Counter
	opsDelivered     prometheus.Counter
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		opsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_operations_enqueued_total",
			Help: "Operations accepted into the session buffer, by kind.",
		}, []string{"kind"}),
		batchesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_batches_delivered_total",
			Help: "Session batches successfully posted upstream.",
		}),
		batchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_batches_failed_total",
			Help: "Session batch delivery attempts that failed and were requeued.",
		}),
		opsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_operations_delivered_total",
			Help: "Operations confirmed delivered upstream.",
		}),
	}

	r.registry.MustRegister(r.opsEnqueued, r.batchesDelivered, r.batchesFailed, r.opsDelivered)
	return r
}

func (r *Recorder) OperationEnqueued(op engine.Operation) {
	r.opsEnqueued.WithLabelValues(string(op.Kind)).Inc()
}

func (r *Recorder) BatchDelivered(sessionID string, count int) {
	r.batchesDelivered.Inc()
	r.opsDelivered.Add(float64(count))
}

func (r *Recorder) BatchFailed(sessionID string, count int, err error) {
	r.batchesFailed.Inc()
}

// Handler serves the /metrics endpoint.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
