// Package metrics provides Prometheus metrics for the fern settlement service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SalesProcessedTotal tracks ProcessSale outcomes by scheme and result
	SalesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "settlement",
			Name:      "sales_processed_total",
			Help:      "Total number of sales processed by scheme and result",
		},
		[]string{"scheme", "result"},
	)

	// SettlementDuration tracks engine operation latency
	SettlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "settlement",
			Name:      "operation_duration_seconds",
			Help:      "Duration of settlement operations in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	// CommissionAmountCents tracks commission cents scheduled per scheme
	CommissionAmountCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "commission",
			Name:      "scheduled_cents_total",
			Help:      "Total commission amount scheduled, in cents",
		},
		[]string{"scheme"},
	)

	// CommissionTransitionsTotal tracks lifecycle transitions
	CommissionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "commission",
			Name:      "transitions_total",
			Help:      "Total number of commission status transitions",
		},
		[]string{"to"},
	)

	// EscrowEventsTotal tracks escrow deposits, releases and refunds
	EscrowEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "escrow",
			Name:      "records_total",
			Help:      "Total number of escrow records by event",
		},
		[]string{"event"},
	)

	// SweepRunsTotal tracks hold-maturity sweep cycles
	SweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Total number of hold maturity sweeps by result",
		},
		[]string{"result"},
	)

	// ReconciliationRequiredTotal tracks refunds blocked on paid commissions
	ReconciliationRequiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "settlement",
			Name:      "reconciliation_required_total",
			Help:      "Total number of refunds that require manual reconciliation",
		},
	)

	// KafkaMessagesTotal tracks consumed messages by type and result
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of consumed Kafka messages by type and result",
		},
		[]string{"type", "result"},
	)

	// KafkaPublishTotal tracks published messages
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of published Kafka messages by topic and status",
		},
		[]string{"topic", "status"},
	)
)

func RecordSale(scheme, result string, durationSeconds float64) {
	SalesProcessedTotal.WithLabelValues(scheme, result).Inc()
	SettlementDuration.WithLabelValues("process_sale").Observe(durationSeconds)
}

func RecordOperation(operation string, durationSeconds float64) {
	SettlementDuration.WithLabelValues(operation).Observe(durationSeconds)
}

func RecordCommissionScheduled(scheme string, cents int64) {
	CommissionAmountCents.WithLabelValues(scheme).Add(float64(cents))
	CommissionTransitionsTotal.WithLabelValues("pending").Inc()
}

func RecordCommissionTransition(to string, count int) {
	CommissionTransitionsTotal.WithLabelValues(to).Add(float64(count))
}

func RecordEscrow(event string, count int) {
	EscrowEventsTotal.WithLabelValues(event).Add(float64(count))
}

func RecordSweep(result string) {
	SweepRunsTotal.WithLabelValues(result).Inc()
}

func RecordReconciliationRequired() {
	ReconciliationRequiredTotal.Inc()
}

func RecordKafkaMessage(messageType, result string) {
	KafkaMessagesTotal.WithLabelValues(messageType, result).Inc()
}

func RecordKafkaPublish(topic, status string) {
	KafkaPublishTotal.WithLabelValues(topic, status).Inc()
}
