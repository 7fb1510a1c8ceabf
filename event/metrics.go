package event

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MustRegisterMetrics will register all event related metrics on the given registry.
// If metrics with the same name already exist no the register this function will panic.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(publishMsgBodySize, publishDuration, publishCounter,
		receiveMsgBodySize, receiveCounter)
}

func samplePublish(name string, elapsed time.Duration, bodySize int, err error) {
	labels := prometheus.Labels{
		"status": status(err),
		"name":   name,
	}
	publishMsgBodySize.With(labels).Observe(float64(bodySize))
	publishDuration.With(labels).Observe(elapsed.Seconds())
	publishCounter.With(labels).Inc()
}

func sampleReceive(name string, bodySize int, err error) {
	labels := prometheus.Labels{
		"status": status(err),
		"name":   name,
	}
	receiveMsgBodySize.With(labels).Observe(float64(bodySize))
	receiveCounter.With(labels).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var (
	// GCP max message size is 10mb
	bodySizeBuckets    = prometheus.ExponentialBucketsRange(256, 1024*1024*10, 30)
	publishMsgBodySize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mung_audit_publish_msg_body_size_bytes",
			Help:    "Size in bytes of published audit event message body",
			Buckets: bodySizeBuckets,
		},
		[]string{"status", "name"},
	)
	publishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "mung_audit_publish_duration_seconds",
			Help: "Duration of audit event publish",
			// publish times measure only communication with broker.
			Buckets: []float64{
				.005, .01, .025, .05, .1, .2, .3, .4, .5, 1,
				2, 3, 4, 5, 10, 15, 20, 30,
			},
		},
		[]string{"status", "name"},
	)
	publishCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mung_audit_publish_total",
			Help: "Total of published audit events",
		},
		[]string{"status", "name"},
	)
	receiveMsgBodySize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mung_audit_receive_msg_body_size_bytes",
			Help:    "Size in bytes of received audit event message body",
			Buckets: bodySizeBuckets,
		},
		[]string{"status", "name"},
	)
	receiveCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mung_audit_receive_total",
			Help: "Total of received audit events",
		},
		[]string{"status", "name"},
	)
)
