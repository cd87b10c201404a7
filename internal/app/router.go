package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"ridecoord/internal/handler"
	"ridecoord/internal/logger"
	"ridecoord/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	SMSHandler     *handler.SMSHandler
	PaymentHandler *handler.PaymentHandler
	RideHandler    *handler.RideHandler
	TokenVerifier  middleware.TokenVerifier
	RedisClient    *redis.Client
	NewRelicApp    *newrelic.Application
	Logger         *logger.Logger
	AllowedOrigins []string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware(deps.AllowedOrigins))

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 routes. Every route requires a caller identity.
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.TokenVerifier, deps.Logger))
	v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))
	{
		v1.POST("/sms", deps.SMSHandler.Send)
		v1.POST("/customers/ensure", deps.PaymentHandler.EnsureCustomer)

		rides := v1.Group("/rides")
		{
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.POST("/:id/status", deps.RideHandler.UpdateStatus)
			rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
			rides.POST("/:id/authorize", deps.PaymentHandler.AuthorizeRide)
		}

		payments := v1.Group("/payments")
		{
			payments.POST("/initialize", deps.PaymentHandler.InitializePayment)
			payments.POST("/:id/capture", deps.PaymentHandler.CapturePayment)
			payments.POST("/:id/cancel", deps.PaymentHandler.CancelPayment)
		}
	}

	return router
}
