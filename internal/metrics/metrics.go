// Package metrics exposes Prometheus collectors for the core operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "karuna",
			Subsystem: "core",
			Name:      "operations_total",
			Help:      "Core operations by name and result.",
		},
		[]string{"op", "result"},
	)

	connections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "karuna",
			Name:      "connections_total",
			Help:      "EnsureConnection outcomes: a new connection or an existing one reused.",
		},
		[]string{"outcome"},
	)

	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "karuna",
			Name:      "messages_sent_total",
			Help:      "Messages appended to connection threads.",
		},
	)

	storeConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "karuna",
			Subsystem: "store",
			Name:      "conflicts_total",
			Help:      "Collection saves that lost a version race and were retried.",
		},
		[]string{"collection"},
	)
)

func init() {
	Registry.MustRegister(
		operations,
		connections,
		messagesSent,
		storeConflicts,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordOperation counts one core operation. A nil err is "ok".
func RecordOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operations.WithLabelValues(op, result).Inc()
}

// RecordConnection counts an EnsureConnection outcome.
func RecordConnection(created bool) {
	outcome := "reused"
	if created {
		outcome = "created"
	}
	connections.WithLabelValues(outcome).Inc()
}

// RecordMessageSent counts one appended message.
func RecordMessageSent() {
	messagesSent.Inc()
}

// RecordStoreConflict counts a retried collection save.
func RecordStoreConflict(collection string) {
	storeConflicts.WithLabelValues(collection).Inc()
}
