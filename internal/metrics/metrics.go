// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger ─────────────────────────────────────────────────────────────────

// LedgerOperations counts ledger operations by name and outcome.
var LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gascontrol",
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Ledger operations by operation and result.",
}, []string{"operation", "result"})

// LedgerTxAttempts observes how many attempts a read-decide-write unit needed.
var LedgerTxAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "gascontrol",
	Subsystem: "ledger",
	Name:      "tx_attempts",
	Help:      "Attempts per debt transaction, including the successful one.",
	Buckets:   []float64{1, 2, 3, 4, 5, 8},
})

// LedgerTxConflicts counts write conflicts that caused a retry.
var LedgerTxConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gascontrol",
	Subsystem: "ledger",
	Name:      "tx_conflicts_total",
	Help:      "Debt transactions retried after a write conflict.",
})

// LedgerOutstanding sums credit extended and payments applied since start, one
// series per kind. Outstanding debt is credit minus payment.
var LedgerOutstanding = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gascontrol",
	Subsystem: "ledger",
	Name:      "amount_total",
	Help:      "Sum of credit extended and payments applied, by kind.",
}, []string{"kind"})

// ─── Orders ─────────────────────────────────────────────────────────────────

// OrdersCreated counts created orders by payment type.
var OrdersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gascontrol",
	Subsystem: "orders",
	Name:      "created_total",
	Help:      "Orders created by payment type.",
}, []string{"payment_type"})
