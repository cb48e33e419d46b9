package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/extension-workflow-api/internal/models"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
)

const reviewQueuePrefix = "review-queue:"

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// ReviewQueueCache stores reviewer queues per workflow and role.
type ReviewQueueCache struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewReviewQueueCache constructs the cache. A disabled cache always misses.
func NewReviewQueueCache(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *ReviewQueueCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewQueueCache{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (c *ReviewQueueCache) Enabled() bool {
	return c != nil && c.enabled && c.repo != nil
}

// Get returns the cached queue and whether it was a hit. Cache errors count as misses.
func (c *ReviewQueueCache) Get(ctx context.Context, workflowID string, role models.ReviewerRole) ([]models.ExtensionRequestView, bool) {
	if !c.Enabled() {
		return nil, false
	}
	start := time.Now()
	var queue []models.ExtensionRequestView
	err := c.repo.Get(ctx, reviewQueueKey(workflowID, role), &queue)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("review queue cache get failed", zap.String("workflow_id", workflowID), zap.Error(err))
		}
		return nil, false
	}
	return queue, true
}

// Set stores the queue.
func (c *ReviewQueueCache) Set(ctx context.Context, workflowID string, role models.ReviewerRole, queue []models.ExtensionRequestView) {
	if !c.Enabled() {
		return
	}
	if queue == nil {
		queue = []models.ExtensionRequestView{}
	}
	if err := c.repo.Set(ctx, reviewQueueKey(workflowID, role), queue, c.ttl); err != nil {
		c.logger.Warn("review queue cache set failed", zap.String("workflow_id", workflowID), zap.Error(err))
	}
}

// InvalidateWorkflow drops every cached queue of the workflow.
func (c *ReviewQueueCache) InvalidateWorkflow(ctx context.Context, workflowID string) {
	if !c.Enabled() {
		return
	}
	if err := c.repo.DeleteByPattern(ctx, reviewQueuePrefix+workflowID+":*"); err != nil {
		c.logger.Warn("review queue cache invalidate failed", zap.String("workflow_id", workflowID), zap.Error(err))
	}
}

func reviewQueueKey(workflowID string, role models.ReviewerRole) string {
	return reviewQueuePrefix + workflowID + ":" + string(role)
}
