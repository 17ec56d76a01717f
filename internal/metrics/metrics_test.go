package metrics

import (
	"testing"

	"tripledger/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("GET", "/api/v1/transactions", "200", 0.5)

	count := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/transactions", "200"))
	assert.Equal(t, float64(1), count)

	metric := HTTPRequestDuration.WithLabelValues("GET", "/api/v1/transactions").(prometheus.Histogram)
	metric.Observe(0.5)
}

func TestRecordHTTPRequestMultiple(t *testing.T) {
	HTTPRequestsTotal.Reset()

	RecordHTTPRequest("POST", "/api/v1/transactions", "201", 0.1)
	RecordHTTPRequest("POST", "/api/v1/transactions", "201", 0.2)
	RecordHTTPRequest("POST", "/api/v1/transactions", "409", 0.05)

	created := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/transactions", "201"))
	conflict := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/transactions", "409"))

	assert.Equal(t, float64(2), created)
	assert.Equal(t, float64(1), conflict)
}

func TestRecordTransaction(t *testing.T) {
	TransactionsTotal.Reset()

	RecordTransaction("create", domain.TxnReceipt)
	RecordTransaction("create", domain.TxnReceipt)
	RecordTransaction("reverse", domain.TxnPayment)

	assert.Equal(t, float64(2), testutil.ToFloat64(TransactionsTotal.WithLabelValues("create", "receipt")))
	assert.Equal(t, float64(1), testutil.ToFloat64(TransactionsTotal.WithLabelValues("reverse", "payment")))
}

func TestRecordPolicyOverrides(t *testing.T) {
	PolicyOverridesTotal.Reset()

	RecordPolicyOverrides(domain.PolicyWarnings{
		{Code: domain.WarnNegativeWallet},
		{Code: domain.WarnNegativeTill},
		{Code: domain.WarnNegativeWallet},
	})

	assert.Equal(t, float64(2), testutil.ToFloat64(PolicyOverridesTotal.WithLabelValues("negative_wallet")))
	assert.Equal(t, float64(1), testutil.ToFloat64(PolicyOverridesTotal.WithLabelValues("negative_till")))
}

func TestRecordBooking(t *testing.T) {
	BookingsTotal.Reset()

	RecordBooking(domain.BookingTicket, domain.BookingBooked)
	RecordBooking(domain.BookingTicket, domain.BookingCancelled)
	RecordBooking(domain.BookingService, domain.BookingBooked)

	assert.Equal(t, float64(1), testutil.ToFloat64(BookingsTotal.WithLabelValues("ticket", "booked")))
	assert.Equal(t, float64(1), testutil.ToFloat64(BookingsTotal.WithLabelValues("ticket", "cancelled")))
	assert.Equal(t, float64(1), testutil.ToFloat64(BookingsTotal.WithLabelValues("service", "booked")))
}

func TestRecordRetry(t *testing.T) {
	TransactionRetriesTotal.Reset()

	RecordRetry("allocation_conflict")
	RecordRetry("transient")

	assert.Equal(t, float64(1), testutil.ToFloat64(TransactionRetriesTotal.WithLabelValues("allocation_conflict")))
}

func TestRecordAlert(t *testing.T) {
	AlertsSentTotal.Reset()

	RecordAlert("success")
	RecordAlert("failed")
	RecordAlert("success")

	assert.Equal(t, float64(2), testutil.ToFloat64(AlertsSentTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(AlertsSentTotal.WithLabelValues("failed")))
}

func TestAlertQueueLength(t *testing.T) {
	AlertQueueLength.Set(10)
	assert.Equal(t, float64(10), testutil.ToFloat64(AlertQueueLength))

	AlertQueueLength.Set(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(AlertQueueLength))
}

func TestRecordIdempotentReplay(t *testing.T) {
	testCounter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_idempotent_replays_total_test",
			Help: "Requests answered from a stored idempotent response",
		},
	)

	oldCounter := IdempotentReplaysTotal
	IdempotentReplaysTotal = testCounter
	defer func() { IdempotentReplaysTotal = oldCounter }()

	RecordIdempotentReplay()
	RecordIdempotentReplay()

	assert.Equal(t, float64(2), testutil.ToFloat64(testCounter))
}

func TestSetTill(t *testing.T) {
	TillBalance.Reset()

	till := &domain.Till{Cash: decimal.RequireFromString("1500.50"), Online: decimal.NewFromInt(-20)}
	SetTill(till, domain.TillCash)

	assert.Equal(t, 1500.5, testutil.ToFloat64(TillBalance.WithLabelValues("cash")))
	assert.Equal(t, 1, testutil.CollectAndCount(TillBalance))

	SetTill(till, domain.TillModes...)
	assert.Equal(t, float64(-20), testutil.ToFloat64(TillBalance.WithLabelValues("online")))

	SetTill(nil, domain.TillCash)
}
