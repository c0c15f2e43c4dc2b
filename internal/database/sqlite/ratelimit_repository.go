package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
	"github.com/receiptwise/alerting-backend-go/internal/database/repositories"
)

// RateLimitRepository implements repositories.RateLimitRepository
type RateLimitRepository struct {
	db *sqlx.DB
}

// NewRateLimitRepository creates a new RateLimitRepository
func NewRateLimitRepository(db *sqlx.DB) repositories.RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// GetByScope retrieves the window counter for a scope, or nil when the
// scope has never been seen.
func (r *RateLimitRepository) GetByScope(ctx context.Context, scopeType, scopeValue string) (*models.RateLimitConfig, error) {
	var cfg models.RateLimitConfig
	err := r.db.GetContext(ctx, &cfg,
		`SELECT * FROM rate_limit_configs WHERE scope_type = ? AND scope_value = ?`,
		scopeType, scopeValue)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rate limit config: %w", err)
	}
	return &cfg, nil
}

// Save upserts the window counter. Called after every mutation so
// state survives restarts.
func (r *RateLimitRepository) Save(ctx context.Context, cfg *models.RateLimitConfig) error {
	cfg.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO rate_limit_configs
			(id, scope_type, scope_value, max_alerts, window_minutes, current_count, window_start, next_reset_at, enabled, updated_at)
		VALUES
			(:id, :scope_type, :scope_value, :max_alerts, :window_minutes, :current_count, :window_start, :next_reset_at, :enabled, :updated_at)
		ON CONFLICT(scope_type, scope_value) DO UPDATE SET
			max_alerts = excluded.max_alerts,
			window_minutes = excluded.window_minutes,
			current_count = excluded.current_count,
			window_start = excluded.window_start,
			next_reset_at = excluded.next_reset_at,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, cfg); err != nil {
		return fmt.Errorf("failed to save rate limit config: %w", err)
	}
	return nil
}

// List returns all known window counters.
func (r *RateLimitRepository) List(ctx context.Context) ([]*models.RateLimitConfig, error) {
	var configs []*models.RateLimitConfig
	err := r.db.SelectContext(ctx, &configs,
		`SELECT * FROM rate_limit_configs ORDER BY scope_type, scope_value`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate limit configs: %w", err)
	}
	return configs, nil
}

// ListExpired returns counters whose window has already closed.
func (r *RateLimitRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.RateLimitConfig, error) {
	var configs []*models.RateLimitConfig
	err := r.db.SelectContext(ctx, &configs,
		`SELECT * FROM rate_limit_configs WHERE next_reset_at <= ? AND current_count > 0`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list expired rate limit configs: %w", err)
	}
	return configs, nil
}
