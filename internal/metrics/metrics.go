package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SendsAdmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kuvert_sends_admitted_total",
			Help: "Sends accepted and queued for delivery",
		},
	)

	SendsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kuvert_sends_rejected_total",
			Help: "Sends rejected at admission",
		},
		[]string{"reason"},
	)

	QueuePublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kuvert_queue_publish_failures_total",
			Help: "Delivery jobs that could not be published to the queue",
		},
	)

	DeliveriesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kuvert_deliveries_sent_total",
			Help: "Deliveries completed by the worker",
		},
	)

	DeliveriesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kuvert_deliveries_failed_total",
			Help: "Deliveries that ended in a failed state",
		},
	)

	DeliveriesRequeued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kuvert_deliveries_requeued_total",
			Help: "Deliveries requeued after a retryable transport failure",
		},
	)

	DeliveriesDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kuvert_deliveries_discarded_total",
			Help: "Redelivered jobs discarded because their send record was already terminal",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		SendsAdmitted,
		SendsRejected,
		QueuePublishFailures,
		DeliveriesSent,
		DeliveriesFailed,
		DeliveriesRequeued,
		DeliveriesDiscarded,
	)
}
