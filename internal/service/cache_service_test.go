package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-bulletin-api/internal/models"
)

type failingCacheRepo struct {
	err error
}

func (f failingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	return f.err
}

func (f failingCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return f.err
}

func (f failingCacheRepo) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	return 0, f.err
}

func TestCacheServiceRoundTrip(t *testing.T) {
	repo := newCacheRepoStub()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, nil, true)
	ctx := context.Background()

	var out map[string]int
	assert.False(t, svc.Get(ctx, "k", &out))

	require.NoError(t, svc.Set(ctx, "k", map[string]int{"a": 1}, 0))
	assert.True(t, svc.Get(ctx, "k", &out))
	assert.Equal(t, 1, out["a"])

	snapshot := metrics.Snapshot()
	assert.EqualValues(t, 1, snapshot.CacheHits)
	assert.EqualValues(t, 1, snapshot.CacheMisses)
	assert.InDelta(t, 0.5, snapshot.CacheHitRatio, 1e-9)
}

func TestCacheServiceDisabled(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, nil, 0, nil, false)
	ctx := context.Background()

	assert.False(t, svc.Enabled())
	require.NoError(t, svc.Set(ctx, "k", 1, time.Minute))
	assert.Empty(t, repo.data)
	removed, err := svc.Invalidate(ctx, "*")
	require.NoError(t, err)
	assert.Zero(t, removed)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	var out int
	assert.False(t, nilSvc.Get(ctx, "k", &out))
}

func TestCacheServiceBackendFailureIsAMiss(t *testing.T) {
	svc := NewCacheService(failingCacheRepo{err: errors.New("redis down")}, nil, time.Minute, nil, true)
	ctx := context.Background()

	var out int
	assert.False(t, svc.Get(ctx, "k", &out))
	assert.Error(t, svc.Set(ctx, "k", 1, 0))
	_, err := svc.Invalidate(ctx, "bulletins:*")
	assert.Error(t, err)
}

func TestCacheServiceInvalidateClass(t *testing.T) {
	repo := newCacheRepoStub()
	svc := NewCacheService(repo, nil, time.Minute, nil, true)
	ctx := context.Background()
	from, to := day("2024-09-01"), day("2024-12-20")
	window := models.DateWindow{Start: &from, End: &to}

	require.NoError(t, svc.Set(ctx, ClassResultsKey("C1", "T1", window, models.RankSequential, "first_entry"), 1, 0))
	require.NoError(t, svc.Set(ctx, ClassResultsKey("C1", "T2", window, models.RankSequential, "first_entry"), 1, 0))
	require.NoError(t, svc.Set(ctx, ClassResultsKey("C2", "T1", window, models.RankSequential, "first_entry"), 1, 0))

	removed, err := svc.Invalidate(ctx, ClassResultsPattern("C1", "T1"))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = svc.Invalidate(ctx, ClassResultsPattern("C1", ""))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, repo.data, 1)
}
