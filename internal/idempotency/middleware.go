// Package idempotency replays stored responses for POST requests that carry
// an Idempotency-Key header, so a client can resend a create without
// applying it twice.
package idempotency

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tripledger/internal/api"
	"tripledger/internal/logger"
	"tripledger/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotency-Replayed"

	keyPrefix = "ledger:idem:"
	pending   = "pending"
)

type record struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// capture keeps a copy of everything the handler writes.
type capture struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capture) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capture) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware stores the first response to each key for ttl. A request that
// arrives while the first is still running gets 409. Server errors are not
// stored, so the client may retry them. When redis is unreachable requests
// pass through unprotected.
func Middleware(rdb *redis.Client, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderKey)
		if c.Request.Method != http.MethodPost || key == "" {
			c.Next()
			return
		}
		if len(key) > 255 {
			c.AbortWithStatusJSON(http.StatusBadRequest, api.ErrorResponse{Error: HeaderKey + " must be at most 255 characters"})
			return
		}

		ctx := c.Request.Context()
		redisKey := keyPrefix + c.Request.URL.Path + ":" + key

		acquired, err := rdb.SetNX(ctx, redisKey, pending, ttl).Result()
		if err != nil {
			logger.Warn("idempotency store unavailable", "error", err)
			c.Next()
			return
		}

		if !acquired {
			replay(c, rdb, redisKey)
			return
		}

		w := &capture{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError {
			rdb.Del(ctx, redisKey)
			return
		}

		data, _ := json.Marshal(record{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		})
		if err := rdb.Set(ctx, redisKey, data, ttl).Err(); err != nil {
			logger.Warn("failed to store idempotent response", "key", key, "error", err)
		}
	}
}

func replay(c *gin.Context, rdb *redis.Client, redisKey string) {
	raw, err := rdb.Get(c.Request.Context(), redisKey).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Warn("idempotency store unavailable", "error", err)
		c.Next()
		return
	}

	if err != nil || string(raw) == pending {
		c.AbortWithStatusJSON(http.StatusConflict, api.ErrorResponse{Error: "a request with this " + HeaderKey + " is in progress"})
		return
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		logger.Error("bad idempotent response record", "key", redisKey, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal error"})
		return
	}

	metrics.RecordIdempotentReplay()
	c.Header(HeaderReplayed, "true")
	c.Data(rec.Status, rec.ContentType, rec.Body)
	c.Abort()
}
