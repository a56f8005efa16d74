package routes

import (
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/handler"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Transactions *handler.TransactionHandler
	Webhooks     *handler.WebhookHandler
	Dashboard    *handler.DashboardHandler
	Stream       *handler.StreamHandler
	Health       *handler.HealthHandler
}

// SetupRoutes configures all the routes for the API
func SetupRoutes(router *gin.Engine, h Handlers) {
	router.GET("/health", h.Health.Health)

	api := router.Group("/api/v1")

	// authenticated by signature, not by the gateway identity
	api.POST("/webhooks/payments", h.Webhooks.Payments)

	transactions := api.Group("/transactions", middleware.RequireUser())
	{
		transactions.POST("", h.Transactions.Create)
		transactions.GET("/:id", h.Transactions.Get)
		transactions.POST("/:id/accept", h.Transactions.Accept)
		transactions.POST("/:id/ship", h.Transactions.Ship)
		transactions.POST("/:id/confirm-receipt", h.Transactions.ConfirmReceipt)
		transactions.POST("/:id/cancel", h.Transactions.Cancel)
		transactions.GET("/:id/events", h.Transactions.Events)
	}

	users := api.Group("/users")
	{
		users.GET("/:userId/transactions", h.Dashboard.ListTransactions)
		users.GET("/:userId/summary", h.Dashboard.Summary)
	}

	if h.Stream != nil {
		api.GET("/stream/transactions", h.Stream.Transactions)
	}
}

// SetupMiddlewares configures global middlewares for the API
func SetupMiddlewares(router *gin.Engine, logger coreport.Logger, timeProvider coreport.TimeProvider, allowedOrigins []string) {
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.ErrorHandler(logger))
	router.Use(middleware.Logger(logger, timeProvider))
	router.Use(middleware.CORS(allowedOrigins...))
}
