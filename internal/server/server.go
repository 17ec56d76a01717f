package server

import (
	"context"
	"net/http"
	"time"

	"tripledger/internal/account"
	"tripledger/internal/booking"
	"tripledger/internal/config"
	"tripledger/internal/idempotency"
	"tripledger/internal/store"
	"tripledger/internal/transaction"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Store        store.Store
	Redis        *redis.Client
	Accounts     account.Service
	Transactions transaction.Service
	Bookings     booking.Service
}

type Server struct {
	router *gin.Engine
	http   *http.Server
	config *config.Config
}

func New(cfg *config.Config, deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(corsMiddleware())

	router.GET("/health", Health(deps.Store, deps.Redis))
	router.GET("/metrics", Metrics())

	accountHandler := account.NewHandler(deps.Accounts)
	txnHandler := transaction.NewHandler(deps.Transactions)
	bookingHandler := booking.NewHandler(deps.Bookings)

	api := router.Group("/")
	api.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
	api.Use(idempotency.Middleware(deps.Redis, cfg.IdempotencyTTL))
	{
		api.POST("/entities", accountHandler.CreateEntity)
		api.GET("/entities", accountHandler.ListEntities)
		api.GET("/entities/:id", accountHandler.GetEntity)
		api.PUT("/entities/:id", accountHandler.UpdateEntity)
		api.POST("/entities/:id/deactivate", accountHandler.DeactivateEntity)

		api.GET("/till", accountHandler.GetTill)
		api.GET("/till/:mode", accountHandler.GetTillMode)

		api.POST("/transactions", txnHandler.CreateTransaction)
		api.GET("/transactions", txnHandler.ListTransactions)
		api.GET("/transactions/rules", txnHandler.GetRules)
		api.GET("/transactions/:id", txnHandler.GetTransaction)
		api.PUT("/transactions/:id", txnHandler.AmendTransaction)
		api.POST("/transactions/:id/reverse", txnHandler.ReverseTransaction)
		api.DELETE("/transactions/:id", txnHandler.ReverseTransaction)

		api.POST("/bookings", bookingHandler.CreateBooking)
		api.GET("/bookings", bookingHandler.ListBookings)
		api.GET("/bookings/:id", bookingHandler.GetBooking)
		api.POST("/bookings/:id/cancel", bookingHandler.CancelBooking)
		api.PUT("/bookings/:id/cancellation", bookingHandler.EditCancellation)
		api.DELETE("/bookings/:id", bookingHandler.DeleteBooking)
	}

	return &Server{
		router: router,
		config: cfg,
		http: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Accept, Origin, Cache-Control, X-Requested-With, "+idempotency.HeaderKey)
		c.Writer.Header().Set("Access-Control-Expose-Headers", idempotency.HeaderReplayed)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
