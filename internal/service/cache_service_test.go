package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/extension-workflow-api/internal/models"
	appErrors "github.com/noah-isme/extension-workflow-api/pkg/errors"
)

type memoryCacheRepo struct {
	items   map[string][]byte
	ttls    map[string]time.Duration
	failGet bool
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{items: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.failGet {
		return errors.New("connection refused")
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.items {
		if strings.HasPrefix(key, prefix) {
			delete(m.items, key)
		}
	}
	return nil
}

func TestReviewQueueCacheRoundTrip(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	cache := NewReviewQueueCache(repo, metrics, time.Minute, nil, true)
	ctx := context.Background()

	_, ok := cache.Get(ctx, "wf-1", models.ReviewerInstructor)
	assert.False(t, ok)

	queue := []models.ExtensionRequestView{{ExtensionRequest: models.ExtensionRequest{ID: "req-1", Status: models.StatusPending}, StudentName: "Sam"}}
	cache.Set(ctx, "wf-1", models.ReviewerInstructor, queue)
	cache.Set(ctx, "wf-2", models.ReviewerInstructor, queue)
	assert.Equal(t, time.Minute, repo.ttls["review-queue:wf-1:instructor"])

	got, ok := cache.Get(ctx, "wf-1", models.ReviewerInstructor)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "Sam", got[0].StudentName)
	assert.InDelta(t, 0.5, metrics.Snapshot().CacheHitRatio, 0.0001)

	cache.InvalidateWorkflow(ctx, "wf-1")
	_, ok = cache.Get(ctx, "wf-1", models.ReviewerInstructor)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "wf-2", models.ReviewerInstructor)
	assert.True(t, ok)
}

func TestReviewQueueCacheDisabledAndFailing(t *testing.T) {
	repo := newMemoryCacheRepo()
	disabled := NewReviewQueueCache(repo, nil, 0, nil, false)
	disabled.Set(context.Background(), "wf-1", models.ReviewerLecturer, nil)
	assert.Empty(t, repo.items)
	assert.False(t, disabled.Enabled())

	var nilCache *ReviewQueueCache
	assert.False(t, nilCache.Enabled())
	nilCache.InvalidateWorkflow(context.Background(), "wf-1")

	repo.failGet = true
	failing := NewReviewQueueCache(repo, nil, 0, nil, true)
	_, ok := failing.Get(context.Background(), "wf-1", models.ReviewerLecturer)
	assert.False(t, ok)
}
