package idempotency

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tripledger/internal/metrics"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, status int) (*gin.Engine, *miniredis.Miniredis, *int32) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	var calls int32
	r := gin.New()
	r.Use(Middleware(rdb, time.Hour))
	handler := func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(status, gin.H{"call": n})
	}
	r.POST("/transactions", handler)
	r.GET("/transactions", handler)
	return r, mr, &calls
}

func post(r *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	r, mr, calls := setup(t, http.StatusCreated)
	replays := testutil.ToFloat64(metrics.IdempotentReplaysTotal)

	first := post(r, "abc-1")
	second := post(r, "abc-1")

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.Empty(t, first.Header().Get(HeaderReplayed))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Equal(t, replays+1, testutil.ToFloat64(metrics.IdempotentReplaysTotal))

	ttl := mr.TTL(keyPrefix + "/transactions:abc-1")
	assert.Equal(t, time.Hour, ttl)
}

func TestMiddleware_DistinctKeysRunSeparately(t *testing.T) {
	r, _, calls := setup(t, http.StatusCreated)

	post(r, "a")
	post(r, "b")
	post(r, "")
	post(r, "")

	assert.Equal(t, int32(4), atomic.LoadInt32(calls))
}

func TestMiddleware_InProgressIsConflict(t *testing.T) {
	r, mr, calls := setup(t, http.StatusCreated)
	require.NoError(t, mr.Set(keyPrefix+"/transactions:busy", pending))

	w := post(r, "busy")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestMiddleware_ServerErrorsAreNotStored(t *testing.T) {
	r, mr, calls := setup(t, http.StatusInternalServerError)

	post(r, "retry-me")
	assert.False(t, mr.Exists(keyPrefix+"/transactions:retry-me"))

	post(r, "retry-me")
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestMiddleware_ClientErrorsAreReplayed(t *testing.T) {
	r, _, calls := setup(t, http.StatusConflict)

	post(r, "k")
	w := post(r, "k")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestMiddleware_IgnoresOtherMethods(t *testing.T) {
	r, _, calls := setup(t, http.StatusOK)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
		req.Header.Set(HeaderKey, "same")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestMiddleware_RedisDownPassesThrough(t *testing.T) {
	r, mr, calls := setup(t, http.StatusCreated)
	mr.Close()

	w := post(r, "abc")

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}
