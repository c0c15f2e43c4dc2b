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

// EscalationRepository implements repositories.EscalationRepository
type EscalationRepository struct {
	db *sqlx.DB
}

// NewEscalationRepository creates a new EscalationRepository
func NewEscalationRepository(db *sqlx.DB) repositories.EscalationRepository {
	return &EscalationRepository{db: db}
}

// Create stores a fresh escalation state machine.
func (r *EscalationRepository) Create(ctx context.Context, state *models.EscalationState) error {
	state.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO escalation_states
			(id, alert_id, severity_rule_id, team_id, severity, level, status,
			 admitted_at, last_transition_at, acknowledged_at, acknowledged_by, condition_cleared, resolved_at, updated_at)
		VALUES
			(:id, :alert_id, :severity_rule_id, :team_id, :severity, :level, :status,
			 :admitted_at, :last_transition_at, :acknowledged_at, :acknowledged_by, :condition_cleared, :resolved_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, state); err != nil {
		return fmt.Errorf("failed to create escalation state: %w", err)
	}
	return nil
}

// Update persists a state transition.
func (r *EscalationRepository) Update(ctx context.Context, state *models.EscalationState) error {
	state.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE escalation_states SET
			level = :level,
			status = :status,
			last_transition_at = :last_transition_at,
			acknowledged_at = :acknowledged_at,
			acknowledged_by = :acknowledged_by,
			condition_cleared = :condition_cleared,
			resolved_at = :resolved_at,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, state)
	if err != nil {
		return fmt.Errorf("failed to update escalation state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("escalation state %s not found", state.ID)
	}
	return nil
}

// GetByAlertID retrieves the escalation state for an alert, or nil
// when the alert was admitted but never routed.
func (r *EscalationRepository) GetByAlertID(ctx context.Context, alertID string) (*models.EscalationState, error) {
	var state models.EscalationState
	err := r.db.GetContext(ctx, &state,
		`SELECT * FROM escalation_states WHERE alert_id = ?`, alertID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get escalation state: %w", err)
	}
	return &state, nil
}

// ListActive returns all state machines that still have transitions
// due. The scheduler re-derives next transitions from these rows after
// a restart.
func (r *EscalationRepository) ListActive(ctx context.Context) ([]*models.EscalationState, error) {
	var states []*models.EscalationState
	err := r.db.SelectContext(ctx, &states, `
		SELECT * FROM escalation_states
		WHERE status IN (?, ?)
		ORDER BY admitted_at
	`, models.EscalationStatusPending, models.EscalationStatusEscalating)
	if err != nil {
		return nil, fmt.Errorf("failed to list active escalation states: %w", err)
	}
	return states, nil
}
