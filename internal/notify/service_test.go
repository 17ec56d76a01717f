package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"tripledger/internal/domain"
	"tripledger/internal/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(rdb *redis.Client, send func(subject, body string) error) *Service {
	s := New(rdb, SMTPConfig{Host: "smtp.test.com", Port: "587", From: "ledger@test.com", To: []string{"accounts@test.com"}})
	s.retryDelay = 0
	s.send = send
	return s
}

func testAlert() domain.PolicyAlert {
	return domain.PolicyAlert{
		TransactionID: 7,
		RefNo:         "2025/P/00001",
		Operation:     "create",
		Warnings: domain.PolicyWarnings{{
			Code:     domain.WarnNegativeWallet,
			EntityID: 3,
			Balance:  decimal.NewFromInt(-200),
			Message:  "wallet of Asha (3) would be -200.00",
		}},
	}
}

func jobJSON(t *testing.T, tries int) string {
	t.Helper()
	data, err := json.Marshal(AlertJob{Alert: testAlert(), Tries: tries})
	require.NoError(t, err)
	return string(data)
}

func TestPublishAlert(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectLPush(QueueKey, `.*"ref_no":"2025/P/00001".*`).SetVal(1)

	svc := newTestService(db, nil)

	err := svc.PublishAlert(context.Background(), testAlert())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishAlertError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.Regexp().ExpectLPush(QueueKey, `.*`).SetErr(assert.AnError)

	svc := newTestService(db, nil)

	err := svc.PublishAlert(context.Background(), testAlert())
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessNext_Sends(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectBRPop(pollTimeout, QueueKey).SetVal([]string{QueueKey, jobJSON(t, 0)})
	mock.ExpectLLen(QueueKey).SetVal(0)

	var subject, body string
	svc := newTestService(db, func(s, b string) error {
		subject, body = s, b
		return nil
	})
	sent := testutil.ToFloat64(metrics.AlertsSentTotal.WithLabelValues("sent"))

	svc.processNext(context.Background())

	assert.Equal(t, "Policy override: create 2025/P/00001", subject)
	assert.Contains(t, body, "[negative_wallet] wallet of Asha (3) would be -200.00")
	assert.Equal(t, sent+1, testutil.ToFloat64(metrics.AlertsSentTotal.WithLabelValues("sent")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessNext_RequeuesFailedSend(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectBRPop(pollTimeout, QueueKey).SetVal([]string{QueueKey, jobJSON(t, 0)})
	mock.Regexp().ExpectLPush(QueueKey, `.*"tries":1.*`).SetVal(1)
	mock.ExpectLLen(QueueKey).SetVal(1)

	svc := newTestService(db, func(string, string) error { return errors.New("connection refused") })

	svc.processNext(context.Background())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AlertQueueLength))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessNext_GivesUpAfterMaxTries(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectBRPop(pollTimeout, QueueKey).SetVal([]string{QueueKey, jobJSON(t, maxTries-1)})
	mock.Regexp().ExpectLPush(FailedKey, `.*connection refused.*`).SetVal(1)
	mock.ExpectLLen(QueueKey).SetVal(0)

	svc := newTestService(db, func(string, string) error { return errors.New("connection refused") })
	failed := testutil.ToFloat64(metrics.AlertsSentTotal.WithLabelValues("failed"))

	svc.processNext(context.Background())

	assert.Equal(t, failed+1, testutil.ToFloat64(metrics.AlertsSentTotal.WithLabelValues("failed")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessNext_BadPayload(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectBRPop(pollTimeout, QueueKey).SetVal([]string{QueueKey, "{not json"})

	called := false
	svc := newTestService(db, func(string, string) error { called = true; return nil })

	svc.processNext(context.Background())

	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueLength(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectLLen(QueueKey).SetVal(5)

	svc := newTestService(db, nil)

	assert.Equal(t, int64(5), svc.QueueLength(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStart_DrainsQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	var (
		mu   sync.Mutex
		sent []string
	)
	svc := newTestService(rdb, func(subject, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, subject)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	first, second := testAlert(), testAlert()
	second.RefNo = "2025/R/00004"
	require.NoError(t, svc.PublishAlert(ctx, first))
	require.NoError(t, svc.PublishAlert(ctx, second))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sent) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Policy override: create 2025/P/00001", "Policy override: create 2025/R/00004"}, sent)
	assert.Equal(t, int64(0), svc.QueueLength(context.Background()))
}

func TestSendMail_WithoutRelayOnlyLogs(t *testing.T) {
	svc := New(nil, SMTPConfig{})

	assert.NoError(t, svc.sendMail("subject", "body"))
}
