package executor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MustRegisterMetrics will register all executor related metrics on the given registry.
// If metrics with the same name already exist on the registry this function will panic.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(commandsTotal, storeCallDuration, documentsTotal, batchesTotal)
}

func sampleCommand(verb string, err error) {
	commandsTotal.With(prometheus.Labels{
		"verb":   verb,
		"status": status(err),
	}).Inc()
}

func sampleStoreCall(phase Phase, elapsed time.Duration, err error) {
	storeCallDuration.With(prometheus.Labels{
		"op":     string(phase),
		"status": status(err),
	}).Observe(elapsed.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var (
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mung_commands_total",
			Help: "Total of executed commands",
		},
		[]string{"verb", "status"},
	)
	storeCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "mung_store_call_duration_seconds",
			Help: "Duration of store calls",
			Buckets: []float64{
				.001, .005, .01, .025, .05, .1, .25, .5, 1,
				2, 5, 10, 30, 60,
			},
		},
		[]string{"op", "status"},
	)
	documentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mung_documents_total",
			Help: "Total of documents yielded by finds",
		},
	)
	batchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mung_batches_total",
			Help: "Total of batches fetched from cursors",
		},
	)
)
