package api

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/internal/api/handlers"
	"github.com/receiptwise/alerting-backend-go/internal/api/middleware"
	"github.com/receiptwise/alerting-backend-go/internal/config"
	"github.com/receiptwise/alerting-backend-go/internal/core/governance"
	"github.com/receiptwise/alerting-backend-go/internal/database"
	"github.com/receiptwise/alerting-backend-go/internal/websocket"
)

// RouterOptions carries optional collaborators for NewRouter
type RouterOptions struct {
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
}

// NewRouter creates and configures the main HTTP router
func NewRouter(cfg *config.Config, engine *governance.Engine, repos *database.Repositories, db *sqlx.DB, logger *logrus.Logger, wsHub *websocket.Hub, opts RouterOptions) *gin.Engine {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.ErrorResponseMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.NewHTTPMetrics(registry).Handler())

	h := handlers.NewHandlers(engine, repos, db, cfg, logger, wsHub)

	// Public routes
	router.GET("/health", h.GetHealth)
	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Live governance event feed
	if cfg.Feed.Enabled {
		router.GET("/ws", websocket.HandleWebSocketGin(wsHub))
	}

	api := router.Group("/api/v1")
	{
		alerts := api.Group("/alerts")
		{
			alerts.POST("/", h.ProposeAlert)
			alerts.GET("/:id", h.GetAlert)
			alerts.POST("/:id/acknowledge", h.AcknowledgeAlert)
			alerts.POST("/:id/resolve", h.ResolveAlert)
			alerts.POST("/:id/clear", h.ClearAlertCondition)
		}

		limits := api.Group("/rate-limits")
		{
			limits.GET("/", h.ListRateLimits)
			limits.POST("/reset", h.ResetRateLimit)
			limits.GET("/adaptive", h.ListAdaptiveLimits)
			limits.POST("/adaptive/signals", h.SetAdaptiveSignals)
		}

		api.GET("/suppressions", h.ListSuppressions)

		policies := api.Group("/policies")
		{
			policies.GET("/severity-rules", h.ListSeverityRules)
			policies.GET("/oncall-schedules", h.ListOnCallSchedules)
			policies.POST("/reload", h.ReloadPolicies)
		}
	}

	return router
}
