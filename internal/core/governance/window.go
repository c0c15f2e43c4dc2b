package governance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/internal/config"
	"github.com/receiptwise/alerting-backend-go/internal/database/models"
	"github.com/receiptwise/alerting-backend-go/internal/database/repositories"
)

// WindowStore owns the per-scope fixed-window counters. All mutations
// of a scope's counter are serialized by a per-key lock; different
// keys proceed in parallel.
type WindowStore struct {
	repo   repositories.RateLimitRepository
	cfg    config.GovernanceConfig
	clock  Clock
	logger *logrus.Logger

	mu    sync.Mutex
	locks map[ScopeKey]*sync.Mutex
}

// NewWindowStore creates a WindowStore.
func NewWindowStore(repo repositories.RateLimitRepository, cfg config.GovernanceConfig, clock Clock, logger *logrus.Logger) *WindowStore {
	return &WindowStore{
		repo:   repo,
		cfg:    cfg,
		clock:  clock,
		logger: logger,
		locks:  make(map[ScopeKey]*sync.Mutex),
	}
}

// keyLock returns the mutex serializing mutations for a scope key.
func (ws *WindowStore) keyLock(key ScopeKey) *sync.Mutex {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	lock, ok := ws.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		ws.locks[key] = lock
	}
	return lock
}

// LockKeys acquires the locks for all given keys in their given order
// and returns a release function. Callers always pass keys in scope
// priority order, so lock acquisition order is consistent across
// goroutines.
func (ws *WindowStore) LockKeys(keys []ScopeKey) func() {
	acquired := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		lock := ws.keyLock(key)
		lock.Lock()
		acquired = append(acquired, lock)
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}

// GetOrCreate loads the counter for a scope, lazily creating it with
// the scope's defaults and resetting the window if it has expired.
// The caller must hold the key's lock.
func (ws *WindowStore) GetOrCreate(ctx context.Context, key ScopeKey, rule *models.AlertRule) (*models.RateLimitConfig, error) {
	cfg, err := ws.repo.GetByScope(ctx, string(key.Type), key.Value)
	if err != nil {
		return nil, fmt.Errorf("load window for %s: %w", key, err)
	}

	now := ws.clock.Now()

	if cfg == nil {
		maxAlerts, windowMinutes := ScopeDefaults(key, rule, ws.cfg)
		cfg = &models.RateLimitConfig{
			ID:            uuid.New().String(),
			ScopeType:     string(key.Type),
			ScopeValue:    key.Value,
			MaxAlerts:     maxAlerts,
			WindowMinutes: windowMinutes,
			CurrentCount:  0,
			WindowStart:   now,
			NextResetAt:   now.Add(time.Duration(windowMinutes) * time.Minute),
			Enabled:       true,
		}
		if err := ws.repo.Save(ctx, cfg); err != nil {
			return nil, fmt.Errorf("create window for %s: %w", key, err)
		}
		return cfg, nil
	}

	if reset := ws.resetIfExpired(cfg, now); reset {
		if err := ws.repo.Save(ctx, cfg); err != nil {
			return nil, fmt.Errorf("reset window for %s: %w", key, err)
		}
	}

	return cfg, nil
}

// resetIfExpired starts a fresh window when now has reached the reset
// boundary. The boundary itself belongs to the new window.
func (ws *WindowStore) resetIfExpired(cfg *models.RateLimitConfig, now time.Time) bool {
	if now.Before(cfg.NextResetAt) {
		return false
	}
	cfg.CurrentCount = 0
	cfg.WindowStart = now
	cfg.NextResetAt = now.Add(time.Duration(cfg.WindowMinutes) * time.Minute)
	return true
}

// Increment bumps the counter and persists it. The caller must hold
// the key's lock.
func (ws *WindowStore) Increment(ctx context.Context, cfg *models.RateLimitConfig) error {
	cfg.CurrentCount++
	if err := ws.repo.Save(ctx, cfg); err != nil {
		return fmt.Errorf("persist window for %s/%s: %w", cfg.ScopeType, cfg.ScopeValue, err)
	}
	return nil
}

// ResetWindow zeroes a scope's counter and starts a fresh window
// immediately, regardless of the reset boundary. Returns nil when the
// scope has never been seen.
func (ws *WindowStore) ResetWindow(ctx context.Context, key ScopeKey) (*models.RateLimitConfig, error) {
	lock := ws.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	cfg, err := ws.repo.GetByScope(ctx, string(key.Type), key.Value)
	if err != nil {
		return nil, fmt.Errorf("load window for %s: %w", key.String(), err)
	}
	if cfg == nil {
		return nil, nil
	}

	now := ws.clock.Now()
	cfg.CurrentCount = 0
	cfg.WindowStart = now
	cfg.NextResetAt = now.Add(time.Duration(cfg.WindowMinutes) * time.Minute)
	cfg.UpdatedAt = now
	if err := ws.repo.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("persist window for %s: %w", key.String(), err)
	}
	return cfg, nil
}

// CleanupExpired proactively resets every counter whose window has
// closed, so dashboard reads that bypass evaluation never see stale
// counts older than one cleanup interval.
func (ws *WindowStore) CleanupExpired(ctx context.Context) (int, error) {
	now := ws.clock.Now()
	expired, err := ws.repo.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired windows: %w", err)
	}

	reset := 0
	for _, stale := range expired {
		key := ScopeKey{Type: ScopeType(stale.ScopeType), Value: stale.ScopeValue}
		lock := ws.keyLock(key)
		lock.Lock()

		// Re-fetch under the lock; a live evaluation may have reset
		// the window already.
		cfg, err := ws.repo.GetByScope(ctx, stale.ScopeType, stale.ScopeValue)
		if err != nil {
			lock.Unlock()
			ws.logger.WithError(err).WithField("scope", key.String()).Warn("Window cleanup skipping scope")
			continue
		}
		if cfg != nil && ws.resetIfExpired(cfg, ws.clock.Now()) {
			if err := ws.repo.Save(ctx, cfg); err != nil {
				ws.logger.WithError(err).WithField("scope", key.String()).Warn("Window cleanup failed to persist reset")
			} else {
				reset++
			}
		}
		lock.Unlock()
	}

	return reset, nil
}
