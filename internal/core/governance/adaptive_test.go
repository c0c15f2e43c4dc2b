package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
	"github.com/receiptwise/alerting-backend-go/internal/database/repositories"
)

func newTestAdaptive(t *testing.T, clock Clock) (*AdaptiveLimiter, *AdaptiveLimiter) {
	t.Helper()
	repos := newTestRepos(t)
	log := testLogger()
	limiter := NewAdaptiveLimiter(repos.Adaptive, clock, log, NewMetrics("test", prometheus.NewRegistry()))
	restored := NewAdaptiveLimiter(repos.Adaptive, clock, log, NewMetrics("test2", prometheus.NewRegistry()))
	return limiter, restored
}

func TestAdaptiveTightenAndClamp(t *testing.T) {
	clock := newFakeClock(testEpoch)
	limiter, _ := newTestAdaptive(t, clock)
	ctx := context.Background()
	key := ScopeKey{Type: ScopeTeam, Value: "payments"}

	limit, err := limiter.EffectiveLimit(ctx, key, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, limit)

	require.NoError(t, limiter.SetSignals(ctx, key, 0.5, 0.9))

	// Entries adjust at most once per ten minutes.
	assert.Equal(t, 0, limiter.Adjust(ctx))

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, limiter.Adjust(ctx))
	limit, err = limiter.EffectiveLimit(ctx, key, 100)
	require.NoError(t, err)
	assert.Equal(t, 80, limit)

	// Immediately retrying does nothing; the spacing applies again.
	assert.Equal(t, 0, limiter.Adjust(ctx))

	// Sustained errors walk the limit down to the ten percent floor
	// and no further.
	for i := 0; i < 20; i++ {
		clock.Advance(10 * time.Minute)
		limiter.Adjust(ctx)
	}
	limit, err = limiter.EffectiveLimit(ctx, key, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, limit)
}

func TestAdaptiveRelaxAndCeiling(t *testing.T) {
	clock := newFakeClock(testEpoch)
	limiter, _ := newTestAdaptive(t, clock)
	ctx := context.Background()
	key := ScopeKey{Type: ScopeMetric, Value: "receipt_parse_errors"}

	_, err := limiter.EffectiveLimit(ctx, key, 50)
	require.NoError(t, err)
	require.NoError(t, limiter.SetSignals(ctx, key, 0.005, 0.3))

	clock.Advance(10 * time.Minute)
	require.Equal(t, 1, limiter.Adjust(ctx))
	limit, err := limiter.EffectiveLimit(ctx, key, 50)
	require.NoError(t, err)
	assert.Equal(t, 55, limit)

	for i := 0; i < 20; i++ {
		clock.Advance(10 * time.Minute)
		limiter.Adjust(ctx)
	}
	limit, err = limiter.EffectiveLimit(ctx, key, 50)
	require.NoError(t, err)
	assert.Equal(t, 100, limit)
}

func TestAdaptiveHealthySignalsLeaveLimitAlone(t *testing.T) {
	clock := newFakeClock(testEpoch)
	limiter, _ := newTestAdaptive(t, clock)
	ctx := context.Background()
	key := ScopeKey{Type: ScopeGlobal, Value: "all"}

	_, err := limiter.EffectiveLimit(ctx, key, 1000)
	require.NoError(t, err)

	// Low errors but high load: neither rule fires.
	require.NoError(t, limiter.SetSignals(ctx, key, 0.005, 0.9))
	clock.Advance(10 * time.Minute)
	assert.Equal(t, 0, limiter.Adjust(ctx))

	limit, err := limiter.EffectiveLimit(ctx, key, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, limit)
}

func TestAdaptiveSurvivesRestart(t *testing.T) {
	clock := newFakeClock(testEpoch)
	limiter, restored := newTestAdaptive(t, clock)
	ctx := context.Background()
	key := ScopeKey{Type: ScopeSeverity, Value: "critical"}

	_, err := limiter.EffectiveLimit(ctx, key, 10)
	require.NoError(t, err)
	require.NoError(t, limiter.SetSignals(ctx, key, 0.2, 0.9))
	clock.Advance(10 * time.Minute)
	require.Equal(t, 1, limiter.Adjust(ctx))

	require.NoError(t, restored.Restore(ctx))
	limit, err := restored.EffectiveLimit(ctx, key, 10)
	require.NoError(t, err)
	assert.Equal(t, 8, limit)
}

type flakySaveAdaptiveStore struct {
	repositories.AdaptiveRepository
	failures int
}

func (s *flakySaveAdaptiveStore) Save(ctx context.Context, limit *models.AdaptiveLimit) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("store unavailable")
	}
	return s.AdaptiveRepository.Save(ctx, limit)
}

func TestAdaptiveEntryNotCachedWhenSaveFails(t *testing.T) {
	clock := newFakeClock(testEpoch)
	repos := newTestRepos(t)
	store := &flakySaveAdaptiveStore{AdaptiveRepository: repos.Adaptive, failures: 1}
	limiter := NewAdaptiveLimiter(store, clock, testLogger(), NewMetrics("flaky", prometheus.NewRegistry()))
	ctx := context.Background()
	key := ScopeKey{Type: ScopeTeam, Value: "payments"}

	_, err := limiter.EffectiveLimit(ctx, key, 100)
	require.Error(t, err)

	// A failed create must not linger in the cache; the next reference
	// retries the save and ends up persisted.
	limit, err := limiter.EffectiveLimit(ctx, key, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, limit)

	stored, err := repos.Adaptive.GetByScope(ctx, string(ScopeTeam), "payments")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 100.0, stored.CurrentLimit)
}

func TestAdaptiveSignalsForUnknownScope(t *testing.T) {
	clock := newFakeClock(testEpoch)
	limiter, _ := newTestAdaptive(t, clock)

	err := limiter.SetSignals(context.Background(), ScopeKey{Type: ScopeRule, Value: "ghost"}, 0.1, 0.1)
	assert.Error(t, err)
}
