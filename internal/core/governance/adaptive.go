package governance

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
	"github.com/receiptwise/alerting-backend-go/internal/database/repositories"
)

// Adaptive limiter tuning. The hard window cap absorbs short bursts;
// the adaptive ceiling tracks medium-term systemic health. The two
// compose via min() in the evaluator.
const (
	adaptiveAdjustEvery = 10 * time.Minute
	adaptiveTightenAt   = 0.10 // error rate above this tightens
	adaptiveRelaxBelow  = 0.01 // error rate below this may relax
	adaptiveRelaxLoad   = 0.5  // ...when load is also below this
	adaptiveTightenMul  = 0.8
	adaptiveRelaxMul    = 1.1
	adaptiveClampFloor  = 0.1 // of base limit
	adaptiveClampCeil   = 2.0 // of base limit
)

// AdaptiveLimiter maintains a runtime-adjusted ceiling per scope,
// derived from the configured base limit and externally fed
// error-rate/load signals.
type AdaptiveLimiter struct {
	repo    repositories.AdaptiveRepository
	clock   Clock
	logger  *logrus.Logger
	metrics *Metrics

	mu      sync.Mutex
	entries map[ScopeKey]*models.AdaptiveLimit
}

// NewAdaptiveLimiter creates an AdaptiveLimiter. Known entries are
// loaded from the store on Restore.
func NewAdaptiveLimiter(repo repositories.AdaptiveRepository, clock Clock, logger *logrus.Logger, metrics *Metrics) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		repo:    repo,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		entries: make(map[ScopeKey]*models.AdaptiveLimit),
	}
}

// Restore loads persisted entries so ceilings survive restarts.
func (al *AdaptiveLimiter) Restore(ctx context.Context) error {
	limits, err := al.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("restore adaptive limits: %w", err)
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	for _, limit := range limits {
		key := ScopeKey{Type: ScopeType(limit.ScopeType), Value: limit.ScopeValue}
		al.entries[key] = limit
	}
	return nil
}

// EffectiveLimit returns the current adaptive ceiling for a scope,
// initializing it from the configured max on first reference.
func (al *AdaptiveLimiter) EffectiveLimit(ctx context.Context, key ScopeKey, configuredMax int) (int, error) {
	entry, err := al.entry(ctx, key, configuredMax)
	if err != nil {
		return 0, err
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	return int(math.Floor(entry.CurrentLimit)), nil
}

// SetSignals records externally computed error-rate and load-factor
// signals for a scope. The next adjustment pass acts on them.
func (al *AdaptiveLimiter) SetSignals(ctx context.Context, key ScopeKey, errorRate, loadFactor float64) error {
	entry, err := al.entry(ctx, key, 0)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("no adaptive entry for %s; scope has never been evaluated", key)
	}

	al.mu.Lock()
	entry.ErrorRate = errorRate
	entry.LoadFactor = loadFactor
	snapshot := *entry
	al.mu.Unlock()

	if err := al.repo.Save(ctx, &snapshot); err != nil {
		return fmt.Errorf("persist adaptive signals for %s: %w", key, err)
	}
	return nil
}

// entry returns the cached entry for a key, loading or creating it as
// needed. configuredMax of 0 means "do not create".
func (al *AdaptiveLimiter) entry(ctx context.Context, key ScopeKey, configuredMax int) (*models.AdaptiveLimit, error) {
	al.mu.Lock()
	if entry, ok := al.entries[key]; ok {
		al.mu.Unlock()
		return entry, nil
	}
	al.mu.Unlock()

	stored, err := al.repo.GetByScope(ctx, string(key.Type), key.Value)
	if err != nil {
		return nil, fmt.Errorf("load adaptive limit for %s: %w", key, err)
	}

	al.mu.Lock()
	defer al.mu.Unlock()

	// Another goroutine may have won the race while we hit the store.
	if entry, ok := al.entries[key]; ok {
		return entry, nil
	}

	if stored != nil {
		al.entries[key] = stored
		return stored, nil
	}

	if configuredMax <= 0 {
		return nil, nil
	}

	entry := &models.AdaptiveLimit{
		ScopeType:        string(key.Type),
		ScopeValue:       key.Value,
		BaseLimit:        float64(configuredMax),
		CurrentLimit:     float64(configuredMax),
		AdaptationFactor: 1.0,
		LastAdjustment:   al.clock.Now(),
		ErrorRate:        0,
		LoadFactor:       1.0,
	}

	// Persist before caching: a failed save must be retried on the next
	// reference, not papered over by a cached entry the store never saw.
	snapshot := *entry
	al.mu.Unlock()
	err = al.repo.Save(ctx, &snapshot)
	al.mu.Lock()
	if err != nil {
		return nil, fmt.Errorf("persist adaptive limit for %s: %w", key, err)
	}

	if existing, ok := al.entries[key]; ok {
		return existing, nil
	}
	al.entries[key] = entry
	return entry, nil
}

// Adjust walks all known entries and retunes any whose last adjustment
// is at least ten minutes old. Runs on the engine's adaptive tick.
func (al *AdaptiveLimiter) Adjust(ctx context.Context) int {
	now := al.clock.Now()

	al.mu.Lock()
	due := make([]*models.AdaptiveLimit, 0)
	for _, entry := range al.entries {
		if now.Sub(entry.LastAdjustment) >= adaptiveAdjustEvery {
			due = append(due, entry)
		}
	}
	al.mu.Unlock()

	adjusted := 0
	for _, entry := range due {
		al.mu.Lock()
		direction := al.retune(entry, now)
		snapshot := *entry
		al.mu.Unlock()

		if direction != "" {
			al.metrics.adaptiveAdjustments.WithLabelValues(direction).Inc()
			adjusted++
		}
		if err := al.repo.Save(ctx, &snapshot); err != nil {
			al.logger.WithError(err).WithFields(logrus.Fields{
				"scope_type":  entry.ScopeType,
				"scope_value": entry.ScopeValue,
			}).Warn("Failed to persist adaptive adjustment")
		}
	}
	return adjusted
}

// retune applies the adjustment rules and clamps the result. Returns
// the direction taken, or "" for no change. Caller holds al.mu.
func (al *AdaptiveLimiter) retune(entry *models.AdaptiveLimit, now time.Time) string {
	direction := ""
	switch {
	case entry.ErrorRate > adaptiveTightenAt:
		entry.CurrentLimit *= adaptiveTightenMul
		direction = "tighten"
	case entry.ErrorRate < adaptiveRelaxBelow && entry.LoadFactor < adaptiveRelaxLoad:
		entry.CurrentLimit *= adaptiveRelaxMul
		direction = "relax"
	}

	floor := entry.BaseLimit * adaptiveClampFloor
	ceil := entry.BaseLimit * adaptiveClampCeil
	if entry.CurrentLimit < floor {
		entry.CurrentLimit = floor
	}
	if entry.CurrentLimit > ceil {
		entry.CurrentLimit = ceil
	}

	entry.AdaptationFactor = entry.CurrentLimit / entry.BaseLimit
	entry.LastAdjustment = now
	return direction
}

// Snapshot returns a copy of all known entries for dashboard reads.
func (al *AdaptiveLimiter) Snapshot() []*models.AdaptiveLimit {
	al.mu.Lock()
	defer al.mu.Unlock()

	out := make([]*models.AdaptiveLimit, 0, len(al.entries))
	for _, entry := range al.entries {
		copied := *entry
		out = append(out, &copied)
	}
	return out
}
