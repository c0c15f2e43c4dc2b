package governance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
)

func testAlert(id, ruleID string, severity models.Severity, teamID *string, metric string) *models.Alert {
	return &models.Alert{
		ID:          id,
		Title:       "cpu usage above threshold",
		Severity:    severity,
		RuleID:      ruleID,
		TeamID:      teamID,
		MetricName:  metric,
		MetricValue: 97.3,
		Status:      models.AlertStatusActive,
		CreatedAt:   testEpoch,
	}
}

func TestEvaluateRuleScopeLimit(t *testing.T) {
	clock := newFakeClock(testEpoch)
	engine, repos, _ := newTestEngine(t, clock)
	ctx := context.Background()

	rule := &models.AlertRule{ID: "rule-cpu", MaxAlertsPerHour: 5}

	for i := 0; i < 5; i++ {
		alert := testAlert(fmt.Sprintf("a-%d", i), rule.ID, models.SeverityMedium, nil, "cpu_usage")
		result, _, err := engine.Propose(ctx, alert, rule)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "alert %d should be admitted", i)
	}

	rejected := testAlert("a-5", rule.ID, models.SeverityMedium, nil, "cpu_usage")
	result, state, err := engine.Propose(ctx, rejected, rule)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Nil(t, state)
	assert.Equal(t, "rule_rate_limit", result.Reason)
	assert.Equal(t, 5, result.CurrentCount)
	assert.Equal(t, 5, result.MaxAllowed)
	assert.Equal(t, 3600, result.RetryAfterSeconds)
	assert.Equal(t, "rule", result.Metadata["scope_type"])

	// The rejection is audited and the alert marked suppressed.
	count, err := repos.Suppression.CountSince(ctx, testEpoch.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, err := repos.Alert.GetByID(ctx, "a-5")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.AlertStatusSuppressed, stored.Status)
}

func TestEvaluateWindowResetBoundary(t *testing.T) {
	clock := newFakeClock(testEpoch)
	engine, _, _ := newTestEngine(t, clock)
	ctx := context.Background()

	rule := &models.AlertRule{ID: "rule-mem", MaxAlertsPerHour: 2}

	for i := 0; i < 2; i++ {
		result, _, err := engine.Propose(ctx, testAlert(fmt.Sprintf("m-%d", i), rule.ID, models.SeverityLow, nil, "mem"), rule)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, _, err := engine.Propose(ctx, testAlert("m-2", rule.ID, models.SeverityLow, nil, "mem"), rule)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	// The reset boundary itself belongs to the new window.
	clock.Advance(60 * time.Minute)
	result, _, err = engine.Propose(ctx, testAlert("m-3", rule.ID, models.SeverityLow, nil, "mem"), rule)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.CurrentCount)
}

func TestEvaluateSeverityScopeLimit(t *testing.T) {
	clock := newFakeClock(testEpoch)
	engine, _, _ := newTestEngine(t, clock)
	ctx := context.Background()

	// Spread the alerts over distinct rules and metrics so only the
	// shared severity scope can reject.
	for i := 0; i < 10; i++ {
		rule := &models.AlertRule{ID: fmt.Sprintf("rule-%d", i), MaxAlertsPerHour: 100}
		alert := testAlert(fmt.Sprintf("c-%d", i), rule.ID, models.SeverityCritical, nil, fmt.Sprintf("metric-%d", i))
		result, _, err := engine.Propose(ctx, alert, rule)
		require.NoError(t, err)
		require.True(t, result.Allowed, "critical alert %d should be admitted", i)
	}

	rule := &models.AlertRule{ID: "rule-extra", MaxAlertsPerHour: 100}
	result, _, err := engine.Propose(ctx, testAlert("c-10", rule.ID, models.SeverityCritical, nil, "metric-extra"), rule)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, "severity_rate_limit", result.Reason)
	assert.Equal(t, 10, result.MaxAllowed)
}

func TestEvaluateTeamScopeSkippedWithoutTeam(t *testing.T) {
	clock := newFakeClock(testEpoch)
	engine, repos, _ := newTestEngine(t, clock)
	ctx := context.Background()

	rule := &models.AlertRule{ID: "rule-t", MaxAlertsPerHour: 10}
	result, _, err := engine.Propose(ctx, testAlert("t-0", rule.ID, models.SeverityInfo, nil, "latency"), rule)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	configs, err := repos.RateLimit.List(ctx)
	require.NoError(t, err)
	for _, cfg := range configs {
		assert.NotEqual(t, "team", cfg.ScopeType)
	}
}

func TestEvaluateRejectionLeavesBroaderCountersUntouched(t *testing.T) {
	clock := newFakeClock(testEpoch)
	engine, repos, _ := newTestEngine(t, clock)
	ctx := context.Background()

	rule := &models.AlertRule{ID: "rule-narrow", MaxAlertsPerHour: 1}

	result, _, err := engine.Propose(ctx, testAlert("n-0", rule.ID, models.SeverityHigh, nil, "disk"), rule)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, _, err = engine.Propose(ctx, testAlert("n-1", rule.ID, models.SeverityHigh, nil, "disk"), rule)
	require.NoError(t, err)
	require.False(t, result.Allowed)
	require.Equal(t, "rule_rate_limit", result.Reason)

	// The rule scope rejected first; no broader counter was consumed.
	global, err := repos.RateLimit.GetByScope(ctx, "global", "all")
	require.NoError(t, err)
	require.NotNil(t, global)
	assert.Equal(t, 1, global.CurrentCount)
}

type failingRateLimitRepo struct{}

func (failingRateLimitRepo) GetByScope(context.Context, string, string) (*models.RateLimitConfig, error) {
	return nil, errors.New("store down")
}

func (failingRateLimitRepo) Save(context.Context, *models.RateLimitConfig) error {
	return errors.New("store down")
}

func (failingRateLimitRepo) List(context.Context) ([]*models.RateLimitConfig, error) {
	return nil, errors.New("store down")
}

func (failingRateLimitRepo) ListExpired(context.Context, time.Time) ([]*models.RateLimitConfig, error) {
	return nil, errors.New("store down")
}

func TestEvaluateConcurrentArrivalsAdmitExactlyTheLimit(t *testing.T) {
	clock := newFakeClock(testEpoch)
	engine, repos, _ := newTestEngine(t, clock)
	ctx := context.Background()

	rule := &models.AlertRule{ID: "rule-burst", MaxAlertsPerHour: 5}

	const arrivals = 20
	var (
		wg       sync.WaitGroup
		admitted int64
	)
	for i := 0; i < arrivals; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			alert := testAlert(fmt.Sprintf("burst-%d", i), rule.ID, models.SeverityMedium, nil, "api_errors")
			result, _, err := engine.Propose(ctx, alert, rule)
			if !assert.NoError(t, err) {
				return
			}
			if result.Allowed {
				atomic.AddInt64(&admitted, 1)
			}
		}(i)
	}
	wg.Wait()

	// The check-then-increment sequence is atomic per scope key: two
	// concurrent arrivals never both pass a check only one should.
	assert.Equal(t, int64(5), atomic.LoadInt64(&admitted))

	cfg, err := repos.RateLimit.GetByScope(ctx, "rule", rule.ID)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 5, cfg.CurrentCount)

	count, err := repos.Suppression.CountSince(ctx, testEpoch.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, arrivals-5, count)
}

func TestEvaluateFailsOpenOnStoreError(t *testing.T) {
	clock := newFakeClock(testEpoch)
	repos := newTestRepos(t)
	log := testLogger()
	cfg := testGovernanceConfig()

	metrics := NewMetrics("test", prometheus.NewRegistry())
	windows := NewWindowStore(failingRateLimitRepo{}, cfg, clock, log)
	adaptive := NewAdaptiveLimiter(repos.Adaptive, clock, log, metrics)
	suppressions := NewSuppressionLogger(repos.Suppression, log)
	evaluator := NewRateLimitEvaluator(windows, adaptive, suppressions, NoopSink{}, metrics, clock, log, 5*time.Second)

	rule := &models.AlertRule{ID: "rule-f", MaxAlertsPerHour: 1}
	result := evaluator.Evaluate(context.Background(), testAlert("f-0", rule.ID, models.SeverityCritical, nil, "errors"), rule)

	assert.True(t, result.Allowed)
	assert.Contains(t, result.Metadata, "rate_limit_error")
}
