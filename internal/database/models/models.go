package models

import (
	"time"
)

// Severity levels recognized by the governance engine.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Alert statuses. Active alerts are owned by the escalation scheduler;
// terminal states are written back for the dashboard.
const (
	AlertStatusActive     = "active"
	AlertStatusResolved   = "resolved"
	AlertStatusSuppressed = "suppressed"
)

// Alert is a candidate or active notification event produced by the
// external metric evaluator. The engine reads it and writes terminal
// states back.
type Alert struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Severity    Severity  `db:"severity" json:"severity"`
	RuleID      string    `db:"rule_id" json:"rule_id"`
	TeamID      *string   `db:"team_id" json:"team_id,omitempty"`
	MetricName  string    `db:"metric_name" json:"metric_name"`
	MetricValue float64   `db:"metric_value" json:"metric_value"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// AlertRule carries the rule configuration fields the engine consumes.
type AlertRule struct {
	ID               string `db:"id" json:"id"`
	MaxAlertsPerHour int    `db:"max_alerts_per_hour" json:"max_alerts_per_hour"`
}

// RateLimitConfig is the per-scope window counter. One row per
// (scope_type, scope_value) pair, lazily created, never deleted.
type RateLimitConfig struct {
	ID            string    `db:"id" json:"id"`
	ScopeType     string    `db:"scope_type" json:"scope_type"`
	ScopeValue    string    `db:"scope_value" json:"scope_value"`
	MaxAlerts     int       `db:"max_alerts" json:"max_alerts"`
	WindowMinutes int       `db:"window_minutes" json:"window_minutes"`
	CurrentCount  int       `db:"current_count" json:"current_count"`
	WindowStart   time.Time `db:"window_start" json:"window_start"`
	NextResetAt   time.Time `db:"next_reset_at" json:"next_reset_at"`
	Enabled       bool      `db:"enabled" json:"enabled"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// AdaptiveLimit is the self-adjusting ceiling for a scope. Lifetime is
// independent of the RateLimitConfig for the same scope.
type AdaptiveLimit struct {
	ScopeType        string    `db:"scope_type" json:"scope_type"`
	ScopeValue       string    `db:"scope_value" json:"scope_value"`
	BaseLimit        float64   `db:"base_limit" json:"base_limit"`
	CurrentLimit     float64   `db:"current_limit" json:"current_limit"`
	AdaptationFactor float64   `db:"adaptation_factor" json:"adaptation_factor"`
	LastAdjustment   time.Time `db:"last_adjustment" json:"last_adjustment"`
	ErrorRate        float64   `db:"error_rate" json:"error_rate"`
	LoadFactor       float64   `db:"load_factor" json:"load_factor"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// SeverityRule is the escalation policy keyed by severity and team.
// Administered externally; read-only to the engine.
type SeverityRule struct {
	ID                        string   `db:"id" json:"id" yaml:"id"`
	Severity                  Severity `db:"severity" json:"severity" yaml:"severity"`
	TeamID                    *string  `db:"team_id" json:"team_id,omitempty" yaml:"team_id,omitempty"`
	AssignedUsers             []string `db:"-" json:"assigned_users" yaml:"assigned_users"`
	NotifyChannels            []string `db:"-" json:"notify_channels" yaml:"notify_channels"`
	InitialDelayMinutes       int      `db:"initial_delay_minutes" json:"initial_delay_minutes" yaml:"initial_delay_minutes"`
	EscalationIntervalMinutes int      `db:"escalation_interval_minutes" json:"escalation_interval_minutes" yaml:"escalation_interval_minutes"`
	MaxEscalationLevel        int      `db:"max_escalation_level" json:"max_escalation_level" yaml:"max_escalation_level"`
	BusinessHoursOnly         bool     `db:"business_hours_only" json:"business_hours_only" yaml:"business_hours_only"`
	WeekendEscalation         bool     `db:"weekend_escalation" json:"weekend_escalation" yaml:"weekend_escalation"`
	AutoAcknowledgeMinutes    *int     `db:"auto_acknowledge_minutes" json:"auto_acknowledge_minutes,omitempty" yaml:"auto_acknowledge_minutes,omitempty"`
	AutoResolveMinutes        *int     `db:"auto_resolve_minutes" json:"auto_resolve_minutes,omitempty" yaml:"auto_resolve_minutes,omitempty"`
	Priority                  int      `db:"priority" json:"priority" yaml:"priority"`
	Enabled                   bool     `db:"enabled" json:"enabled" yaml:"enabled"`
}

// Schedule types supported by the on-call resolver.
const (
	ScheduleRotation     = "rotation"
	ScheduleFixed        = "fixed"
	ScheduleFollowTheSun = "follow_the_sun"
)

// RotationRegion maps a local-hour range to the assignees on duty
// during it, for follow-the-sun schedules. Ranges where StartHour >
// EndHour wrap across midnight.
type RotationRegion struct {
	Name      string   `json:"name" yaml:"name"`
	StartHour int      `json:"start_hour" yaml:"start_hour"`
	EndHour   int      `json:"end_hour" yaml:"end_hour"`
	Assignees []string `json:"assignees" yaml:"assignees"`
}

// RotationConfig parameterizes duty resolution for a schedule. Fixed
// schedules use Assignees as-is; rotations index into Assignees by
// elapsed periods; follow-the-sun schedules consult Regions.
type RotationConfig struct {
	Assignees   []string         `json:"assignees,omitempty" yaml:"assignees,omitempty"`
	PeriodHours int              `json:"period_hours,omitempty" yaml:"period_hours,omitempty"`
	Regions     []RotationRegion `json:"regions,omitempty" yaml:"regions,omitempty"`
}

// OnCallSchedule assigns duty for a team over a time range. Multiple
// schedules may be simultaneously active for one team.
type OnCallSchedule struct {
	ID                    string         `db:"id" json:"id" yaml:"id"`
	TeamID                string         `db:"team_id" json:"team_id" yaml:"team_id"`
	Name                  string         `db:"name" json:"name" yaml:"name"`
	ScheduleType          string         `db:"schedule_type" json:"schedule_type" yaml:"schedule_type"`
	Rotation              RotationConfig `db:"-" json:"rotation" yaml:"rotation"`
	Timezone              string         `db:"timezone" json:"timezone" yaml:"timezone"`
	EffectiveFrom         time.Time      `db:"effective_from" json:"effective_from" yaml:"effective_from"`
	EffectiveUntil        *time.Time     `db:"effective_until" json:"effective_until,omitempty" yaml:"effective_until,omitempty"`
	ApplicableSeverities  []string       `db:"-" json:"applicable_severities" yaml:"applicable_severities"`
	OverrideBusinessHours bool           `db:"override_business_hours" json:"override_business_hours" yaml:"override_business_hours"`
	Enabled               bool           `db:"enabled" json:"enabled" yaml:"enabled"`
}

// AppliesTo reports whether the schedule covers the given severity.
func (s *OnCallSchedule) AppliesTo(severity Severity) bool {
	for _, candidate := range s.ApplicableSeverities {
		if Severity(candidate) == severity {
			return true
		}
	}
	return false
}

// SuppressionLogEntry is an append-only audit record for every
// rate-limit rejection. Never mutated after insert.
type SuppressionLogEntry struct {
	ID            string                 `db:"id" json:"id"`
	AlertID       string                 `db:"alert_id" json:"alert_id"`
	Suppressed    bool                   `db:"suppressed" json:"suppressed"`
	Reason        string                 `db:"reason" json:"reason"`
	SuppressUntil time.Time              `db:"suppress_until" json:"suppress_until"`
	Metadata      map[string]interface{} `db:"-" json:"metadata,omitempty"`
	CreatedAt     time.Time              `db:"created_at" json:"created_at"`
}

// Escalation statuses.
const (
	EscalationStatusPending      = "pending"
	EscalationStatusEscalating   = "escalating"
	EscalationStatusAcknowledged = "acknowledged"
	EscalationStatusAutoResolved = "auto_resolved"
	EscalationStatusCapped       = "capped"
)

// EscalationState is the persisted state machine record for an
// admitted alert. Next transitions are derived from the timestamps
// here, so a restart never loses a pending escalation.
type EscalationState struct {
	ID               string     `db:"id" json:"id"`
	AlertID          string     `db:"alert_id" json:"alert_id"`
	SeverityRuleID   string     `db:"severity_rule_id" json:"severity_rule_id"`
	TeamID           *string    `db:"team_id" json:"team_id,omitempty"`
	Severity         Severity   `db:"severity" json:"severity"`
	Level            int        `db:"level" json:"level"`
	Status           string     `db:"status" json:"status"`
	AdmittedAt       time.Time  `db:"admitted_at" json:"admitted_at"`
	LastTransitionAt time.Time  `db:"last_transition_at" json:"last_transition_at"`
	AcknowledgedAt   *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	AcknowledgedBy   *string    `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	ConditionCleared bool       `db:"condition_cleared" json:"condition_cleared"`
	ResolvedAt       *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Terminal reports whether no further escalation transitions apply.
// Capped is terminal for the scheduler but the alert stays open.
func (e *EscalationState) Terminal() bool {
	switch e.Status {
	case EscalationStatusAcknowledged, EscalationStatusAutoResolved, EscalationStatusCapped:
		return true
	}
	return false
}
