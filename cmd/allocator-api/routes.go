package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/room-allocation-api/internal/handler"
	internalmiddleware "github.com/noah-isme/room-allocation-api/internal/middleware"
	"github.com/noah-isme/room-allocation-api/internal/models"
	"github.com/noah-isme/room-allocation-api/internal/service"
	"github.com/noah-isme/room-allocation-api/pkg/config"
	"github.com/noah-isme/room-allocation-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/room-allocation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/room-allocation-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	allocation   *handler.AllocationHandler
	scoring      *handler.ScoringConfigHandler
	scheduleCode *handler.ScheduleCodeHandler
	metrics      *handler.MetricsHandler
	tokens       *service.TokenVerifier
	metricsSvc   *service.MetricsService
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(h.metricsSvc))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	// Signed links carry their own authorization.
	api.GET("/downloads/:token", h.allocation.Download)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(h.tokens))

	readers := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleScheduler, models.RoleViewer)
	admins := internalmiddleware.RequireRoles(models.RoleAdmin)

	runs := secured.Group("/allocation-runs")
	runs.POST("", admins, internalmiddleware.Audit(logr, "allocation_run.start"), h.allocation.Run)
	runs.GET("/:id", readers, h.allocation.Get)
	runs.GET("/:id/log", readers, h.allocation.Log)
	runs.GET("/:id/log-url", readers, h.allocation.LogURL)
	runs.GET("/:id/export", readers, h.allocation.Export)

	secured.GET("/semesters/:id/allocations", readers, h.allocation.SemesterAllocations)

	weights := secured.Group("/scoring-weights")
	weights.GET("", readers, h.scoring.Get)
	weights.PUT("", admins, internalmiddleware.Audit(logr, "scoring_weights.update"), h.scoring.Update)
	weights.POST("/reload", admins, internalmiddleware.Audit(logr, "scoring_weights.reload"), h.scoring.Reload)

	secured.POST("/schedule-codes/decode", readers, h.scheduleCode.Decode)
	secured.GET("/stats", admins, h.metrics.Stats)

	return r
}
