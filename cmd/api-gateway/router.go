package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/extension-workflow-api/internal/handler"
	"github.com/noah-isme/extension-workflow-api/internal/middleware"
	"github.com/noah-isme/extension-workflow-api/internal/service"
	"github.com/noah-isme/extension-workflow-api/pkg/config"
	"github.com/noah-isme/extension-workflow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/extension-workflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/extension-workflow-api/pkg/middleware/requestid"
)

type routerDeps struct {
	auth         middleware.TokenValidator
	capabilities service.CapabilityChecker
	metrics      *service.MetricsService
	workflows    *service.WorkflowService
	requests     *service.ExtensionRequestService
	approvals    *service.ApprovalService
	checks       map[string]handler.ReadinessCheck
}

func newRouter(cfg *config.Config, deps routerDeps, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	metricsHandler := handler.NewMetricsHandler(deps.metrics, deps.checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	workflowHandler := handler.NewWorkflowHandler(deps.workflows)
	requestHandler := handler.NewExtensionRequestHandler(deps.requests, deps.approvals, deps.workflows)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(deps.auth))

	workflows := api.Group("/workflows")
	workflows.GET("", workflowHandler.List)
	workflows.GET("/:id", workflowHandler.Get)
	manage := workflows.Group("", middleware.RequireCapability(deps.capabilities, service.CapabilityAddInstance))
	manage.POST("", workflowHandler.Create)
	manage.PUT("/:id", workflowHandler.Update)
	manage.DELETE("/:id", workflowHandler.Delete)

	workflows.POST("/:id/requests", middleware.RequireCapability(deps.capabilities, service.CapabilityAddRequest), requestHandler.Submit)
	workflows.GET("/:id/requests", requestHandler.ListByWorkflow)
	workflows.GET("/:id/review-queue", requestHandler.ReviewQueue)
	workflows.GET("/:id/review-queue/export", requestHandler.ExportReviewQueue)

	requests := api.Group("/requests")
	requests.GET("/mine", requestHandler.ListMine)
	requests.GET("/:id", requestHandler.Get)
	requests.DELETE("/:id", requestHandler.Withdraw)
	requests.POST("/:id/instructor/approve", requestHandler.InstructorApprove)
	requests.POST("/:id/instructor/decline", requestHandler.InstructorDecline)
	requests.POST("/:id/lecturer/approve", requestHandler.LecturerApprove)
	requests.POST("/:id/lecturer/decline", requestHandler.LecturerDecline)

	if cfg.Env != config.EnvProduction {
		r.GET("/metrics/snapshot", metricsHandler.Snapshot)
	}
	return r
}
