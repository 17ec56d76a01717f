package server

import (
	"context"
	"net/http"
	"time"

	"tripledger/internal/api"
	"tripledger/internal/logger"
	"tripledger/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const healthTimeout = 2 * time.Second

// Health godoc
// @Summary      Health check
// @Description  Reports the store and redis as ok or unavailable. Either one down answers 503.
// @Tags         system
// @Produce      json
// @Success      200 {object} api.HealthResponse
// @Failure      503 {object} api.HealthResponse
// @Router       /health [get]
func Health(st store.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		resp := api.HealthResponse{Status: "ok", Store: "ok", Redis: "ok"}
		if err := st.Ping(ctx); err != nil {
			logger.Warn("health: store unavailable", "error", err)
			resp.Status, resp.Store = "degraded", "unavailable"
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("health: redis unavailable", "error", err)
			resp.Status, resp.Redis = "degraded", "unavailable"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	}
}

// Metrics godoc
// @Summary      Prometheus metrics
// @Description  Exposes Prometheus metrics in text format
// @Tags         system
// @Produce      text/plain
// @Success      200 {string} string
// @Router       /metrics [get]
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
