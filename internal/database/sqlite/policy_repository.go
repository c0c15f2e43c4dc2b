package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
	"github.com/receiptwise/alerting-backend-go/internal/database/repositories"
)

// PolicyRepository implements repositories.PolicyRepository
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository creates a new PolicyRepository
func NewPolicyRepository(db *sqlx.DB) repositories.PolicyRepository {
	return &PolicyRepository{db: db}
}

// ListSeverityRules returns all configured severity rules.
func (r *PolicyRepository) ListSeverityRules(ctx context.Context) ([]*models.SeverityRule, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, severity, team_id, assigned_users, notify_channels,
		       initial_delay_minutes, escalation_interval_minutes, max_escalation_level,
		       business_hours_only, weekend_escalation, auto_acknowledge_minutes,
		       auto_resolve_minutes, priority, enabled
		FROM severity_rules
		ORDER BY priority DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list severity rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.SeverityRule
	for rows.Next() {
		var rule models.SeverityRule
		var usersJSON, channelsJSON sql.NullString
		if err := rows.Scan(
			&rule.ID,
			&rule.Severity,
			&rule.TeamID,
			&usersJSON,
			&channelsJSON,
			&rule.InitialDelayMinutes,
			&rule.EscalationIntervalMinutes,
			&rule.MaxEscalationLevel,
			&rule.BusinessHoursOnly,
			&rule.WeekendEscalation,
			&rule.AutoAcknowledgeMinutes,
			&rule.AutoResolveMinutes,
			&rule.Priority,
			&rule.Enabled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan severity rule: %w", err)
		}
		if usersJSON.Valid && usersJSON.String != "" {
			if err := json.Unmarshal([]byte(usersJSON.String), &rule.AssignedUsers); err != nil {
				return nil, fmt.Errorf("failed to unmarshal assigned users: %w", err)
			}
		}
		if channelsJSON.Valid && channelsJSON.String != "" {
			if err := json.Unmarshal([]byte(channelsJSON.String), &rule.NotifyChannels); err != nil {
				return nil, fmt.Errorf("failed to unmarshal notify channels: %w", err)
			}
		}
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// UpsertSeverityRule stores a severity rule, replacing any existing
// rule for the same (severity, team) pair.
func (r *PolicyRepository) UpsertSeverityRule(ctx context.Context, rule *models.SeverityRule) error {
	usersJSON, err := json.Marshal(rule.AssignedUsers)
	if err != nil {
		return fmt.Errorf("failed to marshal assigned users: %w", err)
	}
	channelsJSON, err := json.Marshal(rule.NotifyChannels)
	if err != nil {
		return fmt.Errorf("failed to marshal notify channels: %w", err)
	}

	query := `
		INSERT INTO severity_rules
			(id, severity, team_id, assigned_users, notify_channels,
			 initial_delay_minutes, escalation_interval_minutes, max_escalation_level,
			 business_hours_only, weekend_escalation, auto_acknowledge_minutes,
			 auto_resolve_minutes, priority, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			severity = excluded.severity,
			team_id = excluded.team_id,
			assigned_users = excluded.assigned_users,
			notify_channels = excluded.notify_channels,
			initial_delay_minutes = excluded.initial_delay_minutes,
			escalation_interval_minutes = excluded.escalation_interval_minutes,
			max_escalation_level = excluded.max_escalation_level,
			business_hours_only = excluded.business_hours_only,
			weekend_escalation = excluded.weekend_escalation,
			auto_acknowledge_minutes = excluded.auto_acknowledge_minutes,
			auto_resolve_minutes = excluded.auto_resolve_minutes,
			priority = excluded.priority,
			enabled = excluded.enabled
	`
	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Severity, rule.TeamID, string(usersJSON), string(channelsJSON),
		rule.InitialDelayMinutes, rule.EscalationIntervalMinutes, rule.MaxEscalationLevel,
		rule.BusinessHoursOnly, rule.WeekendEscalation, rule.AutoAcknowledgeMinutes,
		rule.AutoResolveMinutes, rule.Priority, rule.Enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert severity rule: %w", err)
	}
	return nil
}

// ListOnCallSchedules returns all configured on-call schedules.
func (r *PolicyRepository) ListOnCallSchedules(ctx context.Context) ([]*models.OnCallSchedule, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, team_id, name, schedule_type, rotation, timezone,
		       effective_from, effective_until, applicable_severities,
		       override_business_hours, enabled
		FROM oncall_schedules
		ORDER BY team_id, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list on-call schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.OnCallSchedule
	for rows.Next() {
		var schedule models.OnCallSchedule
		var rotationJSON, severitiesJSON sql.NullString
		var effectiveUntil sql.NullTime
		if err := rows.Scan(
			&schedule.ID,
			&schedule.TeamID,
			&schedule.Name,
			&schedule.ScheduleType,
			&rotationJSON,
			&schedule.Timezone,
			&schedule.EffectiveFrom,
			&effectiveUntil,
			&severitiesJSON,
			&schedule.OverrideBusinessHours,
			&schedule.Enabled,
		); err != nil {
			return nil, fmt.Errorf("failed to scan on-call schedule: %w", err)
		}
		if effectiveUntil.Valid {
			t := effectiveUntil.Time
			schedule.EffectiveUntil = &t
		}
		if rotationJSON.Valid && rotationJSON.String != "" {
			if err := json.Unmarshal([]byte(rotationJSON.String), &schedule.Rotation); err != nil {
				return nil, fmt.Errorf("failed to unmarshal rotation config: %w", err)
			}
		}
		if severitiesJSON.Valid && severitiesJSON.String != "" {
			if err := json.Unmarshal([]byte(severitiesJSON.String), &schedule.ApplicableSeverities); err != nil {
				return nil, fmt.Errorf("failed to unmarshal applicable severities: %w", err)
			}
		}
		schedules = append(schedules, &schedule)
	}
	return schedules, rows.Err()
}

// UpsertOnCallSchedule stores an on-call schedule.
func (r *PolicyRepository) UpsertOnCallSchedule(ctx context.Context, schedule *models.OnCallSchedule) error {
	rotationJSON, err := json.Marshal(schedule.Rotation)
	if err != nil {
		return fmt.Errorf("failed to marshal rotation config: %w", err)
	}
	severitiesJSON, err := json.Marshal(schedule.ApplicableSeverities)
	if err != nil {
		return fmt.Errorf("failed to marshal applicable severities: %w", err)
	}

	var effectiveUntil interface{}
	if schedule.EffectiveUntil != nil {
		effectiveUntil = schedule.EffectiveUntil.UTC()
	}

	query := `
		INSERT INTO oncall_schedules
			(id, team_id, name, schedule_type, rotation, timezone,
			 effective_from, effective_until, applicable_severities,
			 override_business_hours, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			team_id = excluded.team_id,
			name = excluded.name,
			schedule_type = excluded.schedule_type,
			rotation = excluded.rotation,
			timezone = excluded.timezone,
			effective_from = excluded.effective_from,
			effective_until = excluded.effective_until,
			applicable_severities = excluded.applicable_severities,
			override_business_hours = excluded.override_business_hours,
			enabled = excluded.enabled
	`
	_, err = r.db.ExecContext(ctx, query,
		schedule.ID, schedule.TeamID, schedule.Name, schedule.ScheduleType,
		string(rotationJSON), schedule.Timezone,
		schedule.EffectiveFrom.UTC(), effectiveUntil, string(severitiesJSON),
		schedule.OverrideBusinessHours, schedule.Enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert on-call schedule: %w", err)
	}
	return nil
}
