package chatwatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	batchesDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatwatch",
			Name:      "batches_dispatched_total",
			Help:      "Message batches routed through the dispatcher.",
		},
	)
	messagesDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chatwatch",
			Name:      "messages_dispatched_total",
			Help:      "Message elements routed through the dispatcher.",
		},
	)
	handlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatwatch",
			Name:      "handler_failures_total",
			Help:      "Feature handler invocations that returned an error or panicked.",
		},
		[]string{"feature"},
	)
	historyEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatwatch",
			Name:      "history_evictions_total",
			Help:      "Fingerprints evicted from a bounded history.",
		},
		[]string{"history"},
	)
	alertsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatwatch",
			Name:      "alerts_delivered_total",
			Help:      "Notifications delivered, by channel.",
		},
		[]string{"channel"},
	)
	alertsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatwatch",
			Name:      "alerts_dropped_total",
			Help:      "Notifications dropped, by reason.",
		},
		[]string{"reason"},
	)
	storageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatwatch",
			Name:      "storage_errors_total",
			Help:      "Failed store operations.",
		},
		[]string{"op"},
	)
	pageFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatwatch",
			Name:      "page_fetches_total",
			Help:      "Remote page fetches by the poller, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		batchesDispatched,
		messagesDispatched,
		handlerFailures,
		historyEvictions,
		alertsDelivered,
		alertsDropped,
		storageErrors,
		pageFetches,
	)
}
