package metrics

import (
	"tripledger/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Total number of applied transaction operations",
		},
		[]string{"operation", "type"},
	)

	TransactionRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transaction_retries_total",
			Help: "Atomic units re-run after a conflict or serialization failure",
		},
		[]string{"reason"},
	)

	PolicyOverridesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_policy_overrides_total",
			Help: "Policy warnings accepted with an explicit override",
		},
		[]string{"code"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_bookings_total",
			Help: "Total number of booking state changes",
		},
		[]string{"kind", "status"},
	)

	AlertsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_policy_alerts_sent_total",
			Help: "Total number of policy alert emails",
		},
		[]string{"status"},
	)

	AlertQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_policy_alert_queue_length",
			Help: "Current length of the policy alert queue",
		},
	)

	IdempotentReplaysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_idempotent_replays_total",
			Help: "Requests answered from a stored idempotent response",
		},
	)

	TillBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_till_balance",
			Help: "Current company till balance per mode",
		},
		[]string{"mode"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordTransaction(operation string, txnType domain.TxnType) {
	TransactionsTotal.WithLabelValues(operation, string(txnType)).Inc()
}

func RecordRetry(reason string) {
	TransactionRetriesTotal.WithLabelValues(reason).Inc()
}

func RecordPolicyOverrides(warnings domain.PolicyWarnings) {
	for _, w := range warnings {
		PolicyOverridesTotal.WithLabelValues(string(w.Code)).Inc()
	}
}

func RecordBooking(kind domain.BookingKind, status domain.BookingStatus) {
	BookingsTotal.WithLabelValues(string(kind), string(status)).Inc()
}

func RecordAlert(status string) {
	AlertsSentTotal.WithLabelValues(status).Inc()
}

func RecordIdempotentReplay() {
	IdempotentReplaysTotal.Inc()
}

// SetTill publishes the till balances. Only the modes passed are updated.
func SetTill(till *domain.Till, modes ...domain.TillMode) {
	if till == nil {
		return
	}
	for _, m := range modes {
		f, _ := till.Balance(m).Float64()
		TillBalance.WithLabelValues(string(m)).Set(f)
	}
}
