package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/extension-workflow-api/api/swagger"
	"github.com/noah-isme/extension-workflow-api/internal/handler"
	"github.com/noah-isme/extension-workflow-api/internal/models"
	"github.com/noah-isme/extension-workflow-api/internal/repository"
	"github.com/noah-isme/extension-workflow-api/internal/service"
	"github.com/noah-isme/extension-workflow-api/pkg/cache"
	"github.com/noah-isme/extension-workflow-api/pkg/config"
	"github.com/noah-isme/extension-workflow-api/pkg/database"
	"github.com/noah-isme/extension-workflow-api/pkg/jobs"
	"github.com/noah-isme/extension-workflow-api/pkg/logger"
	"github.com/noah-isme/extension-workflow-api/pkg/messaging"
)

// @title Extension Workflow API
// @version 1.0.0
// @description Deadline extension requests with two stage instructor and lecturer approval.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.ApplyMigrations(ctx, db, database.Migrations(), logr); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	var redisClient redis.UniversalClient
	if cfg.ReviewCache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, review queue cache disabled", zap.Error(err))
		} else {
			redisClient = client
		}
	}

	sender, err := newSender(cfg.Notifications, logr)
	if err != nil {
		return err
	}

	app := buildApp(cfg, db, redisClient, sender, logr)
	app.queue.Start(ctx)
	defer app.queue.Stop()
	defer app.notifications.Wait()
	if app.cacheRepo != nil {
		defer app.cacheRepo.Close() //nolint:errcheck
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type app struct {
	router        *gin.Engine
	queue         *jobs.Queue
	notifications *service.NotificationService
	cacheRepo     *repository.CacheRepository
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient redis.UniversalClient, sender messaging.Sender, logr *zap.Logger) *app {
	metrics := service.NewMetricsService()
	capabilities := service.DefaultRoleCapabilities()

	workflowRepo := repository.NewWorkflowRepository(db)
	requestRepo := repository.NewExtensionRequestRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)

	var cacheRepo *repository.CacheRepository
	var cacheStore service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		cacheStore = cacheRepo
	}
	reviewCache := service.NewReviewQueueCache(cacheStore, metrics, cfg.ReviewCache.TTL, logr, cfg.ReviewCache.Enabled && cacheStore != nil)

	deadlines := service.NewDeadlineService(map[models.TargetType]service.ActivityLocator{
		models.TargetAssignment: repository.NewAssignmentRepository(db),
		models.TargetQuiz:       repository.NewQuizRepository(db),
	}, metrics, logr)

	notifications := service.NewNotificationService(userRepo, sender, metrics, logr)
	queue := jobs.NewQueue("notifications", notifications.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Backoff:    2,
		Logger:     logr,
		OnFailure:  notifications.OnJobFailure,
	})
	notifications.AttachQueue(queue)

	workflows := service.NewWorkflowService(workflowRepo, requestRepo, capabilities, auditRepo, logr,
		service.WithWorkflowCache(reviewCache),
		service.WithWorkflowSelfDualApproval(cfg.Workflow.AllowSelfDualApproval),
	)
	requests := service.NewExtensionRequestService(requestRepo, workflowRepo, capabilities, auditRepo, logr,
		service.WithRequestCache(reviewCache),
		service.WithRequestMetrics(metrics),
	)
	approvals := service.NewApprovalService(requestRepo, workflowRepo, deadlines, notifications, capabilities, auditRepo, logr,
		service.WithApprovalCache(reviewCache),
		service.WithApprovalMetrics(metrics),
		service.WithSelfDualApproval(cfg.Workflow.AllowSelfDualApproval),
	)
	auth := service.NewAuthService(service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	checks := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if cacheRepo != nil {
		checks["redis"] = cacheRepo.Ping
	}

	router := newRouter(cfg, routerDeps{
		auth:         auth,
		capabilities: capabilities,
		metrics:      metrics,
		workflows:    workflows,
		requests:     requests,
		approvals:    approvals,
		checks:       checks,
	}, logr)
	return &app{router: router, queue: queue, notifications: notifications, cacheRepo: cacheRepo}
}

func newSender(cfg config.NotificationConfig, logr *zap.Logger) (messaging.Sender, error) {
	switch cfg.Transport {
	case config.TransportSendGrid:
		sender, err := messaging.NewSendGridSender(messaging.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		})
		if err != nil {
			return nil, fmt.Errorf("configure sendgrid: %w", err)
		}
		return sender, nil
	case config.TransportLog, "":
		return messaging.NewLogSender(logr), nil
	default:
		return nil, fmt.Errorf("unknown notification transport %q", cfg.Transport)
	}
}
