package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
	"github.com/receiptwise/alerting-backend-go/internal/database/repositories"
)

// SuppressionRepository implements repositories.SuppressionRepository
type SuppressionRepository struct {
	db *sqlx.DB
}

// NewSuppressionRepository creates a new SuppressionRepository
func NewSuppressionRepository(db *sqlx.DB) repositories.SuppressionRepository {
	return &SuppressionRepository{db: db}
}

// Create appends an audit entry. Entries are never updated or deleted.
func (r *SuppressionRepository) Create(ctx context.Context, entry *models.SuppressionLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal suppression metadata: %w", err)
	}

	query := `
		INSERT INTO suppression_log (id, alert_id, suppressed, reason, suppress_until, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.AlertID,
		entry.Suppressed,
		entry.Reason,
		entry.SuppressUntil.UTC(),
		string(metadataJSON),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create suppression log entry: %w", err)
	}
	return nil
}

// List returns entries in the given time range, newest first.
func (r *SuppressionRepository) List(ctx context.Context, since, until time.Time, limit int) ([]*models.SuppressionLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, alert_id, suppressed, reason, suppress_until, metadata, created_at
		FROM suppression_log
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at DESC
		LIMIT ?
	`, since.UTC(), until.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list suppression log entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.SuppressionLogEntry
	for rows.Next() {
		var entry models.SuppressionLogEntry
		var metadataJSON string
		if err := rows.Scan(
			&entry.ID,
			&entry.AlertID,
			&entry.Suppressed,
			&entry.Reason,
			&entry.SuppressUntil,
			&metadataJSON,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan suppression log entry: %w", err)
		}
		if metadataJSON != "" && metadataJSON != "null" {
			if err := json.Unmarshal([]byte(metadataJSON), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal suppression metadata: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// CountSince returns the number of suppressions recorded after the
// given time.
func (r *SuppressionRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM suppression_log WHERE created_at >= ?`, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count suppression log entries: %w", err)
	}
	return count, nil
}
