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

// AlertRepository implements repositories.AlertRepository
type AlertRepository struct {
	db *sqlx.DB
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *sqlx.DB) repositories.AlertRepository {
	return &AlertRepository{db: db}
}

// Create stores a new alert candidate.
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.Status == "" {
		alert.Status = models.AlertStatusActive
	}

	query := `
		INSERT INTO alerts (id, title, severity, rule_id, team_id, metric_name, metric_value, status, created_at)
		VALUES (:id, :title, :severity, :rule_id, :team_id, :metric_name, :metric_value, :status, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, alert); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by ID.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	var alert models.Alert
	err := r.db.GetContext(ctx, &alert, `SELECT * FROM alerts WHERE id = ?`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert %s not found", id)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &alert, nil
}

// UpdateStatus writes a status transition back to the store.
func (r *AlertRepository) UpdateStatus(ctx context.Context, id, status string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE alerts SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("alert %s not found", id)
	}
	return nil
}
