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

// AdaptiveRepository implements repositories.AdaptiveRepository
type AdaptiveRepository struct {
	db *sqlx.DB
}

// NewAdaptiveRepository creates a new AdaptiveRepository
func NewAdaptiveRepository(db *sqlx.DB) repositories.AdaptiveRepository {
	return &AdaptiveRepository{db: db}
}

// GetByScope retrieves the adaptive limit for a scope, or nil when the
// scope has never been seen.
func (r *AdaptiveRepository) GetByScope(ctx context.Context, scopeType, scopeValue string) (*models.AdaptiveLimit, error) {
	var limit models.AdaptiveLimit
	err := r.db.GetContext(ctx, &limit,
		`SELECT * FROM adaptive_limits WHERE scope_type = ? AND scope_value = ?`,
		scopeType, scopeValue)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get adaptive limit: %w", err)
	}
	return &limit, nil
}

// Save upserts the adaptive limit.
func (r *AdaptiveRepository) Save(ctx context.Context, limit *models.AdaptiveLimit) error {
	limit.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO adaptive_limits
			(scope_type, scope_value, base_limit, current_limit, adaptation_factor, last_adjustment, error_rate, load_factor, updated_at)
		VALUES
			(:scope_type, :scope_value, :base_limit, :current_limit, :adaptation_factor, :last_adjustment, :error_rate, :load_factor, :updated_at)
		ON CONFLICT(scope_type, scope_value) DO UPDATE SET
			base_limit = excluded.base_limit,
			current_limit = excluded.current_limit,
			adaptation_factor = excluded.adaptation_factor,
			last_adjustment = excluded.last_adjustment,
			error_rate = excluded.error_rate,
			load_factor = excluded.load_factor,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.NamedExecContext(ctx, query, limit); err != nil {
		return fmt.Errorf("failed to save adaptive limit: %w", err)
	}
	return nil
}

// List returns all known adaptive limits.
func (r *AdaptiveRepository) List(ctx context.Context) ([]*models.AdaptiveLimit, error) {
	var limits []*models.AdaptiveLimit
	err := r.db.SelectContext(ctx, &limits,
		`SELECT * FROM adaptive_limits ORDER BY scope_type, scope_value`)
	if err != nil {
		return nil, fmt.Errorf("failed to list adaptive limits: %w", err)
	}
	return limits, nil
}
