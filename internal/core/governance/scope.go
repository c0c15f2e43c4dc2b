package governance

import (
	"fmt"

	"github.com/receiptwise/alerting-backend-go/internal/config"
	"github.com/receiptwise/alerting-backend-go/internal/database/models"
)

// ScopeType is a dimension along which alert volume is independently
// capped.
type ScopeType string

const (
	ScopeRule     ScopeType = "rule"
	ScopeTeam     ScopeType = "team"
	ScopeMetric   ScopeType = "metric"
	ScopeSeverity ScopeType = "severity"
	ScopeGlobal   ScopeType = "global"
)

// ScopeKey identifies one rate-limit scope. Keeping type and value as
// separate fields avoids collisions between scope types that happen to
// share literal ids.
type ScopeKey struct {
	Type  ScopeType
	Value string
}

func (k ScopeKey) String() string {
	return fmt.Sprintf("%s/%s", k.Type, k.Value)
}

// RejectionReason returns the reason string recorded when this scope
// rejects an alert.
func (k ScopeKey) RejectionReason() string {
	return string(k.Type) + "_rate_limit"
}

// globalScopeValue is the single value the global scope uses.
const globalScopeValue = "all"

// ScopeResolver enumerates the scopes that apply to an alert, in the
// strict priority order the evaluator checks them: rule, team, metric,
// severity, global. An alert without a team skips the team scope.
type ScopeResolver struct{}

// Resolve returns the applicable scope keys for an alert.
func (ScopeResolver) Resolve(alert *models.Alert) []ScopeKey {
	scopes := make([]ScopeKey, 0, 5)
	scopes = append(scopes, ScopeKey{Type: ScopeRule, Value: alert.RuleID})
	if alert.TeamID != nil && *alert.TeamID != "" {
		scopes = append(scopes, ScopeKey{Type: ScopeTeam, Value: *alert.TeamID})
	}
	scopes = append(scopes, ScopeKey{Type: ScopeMetric, Value: alert.MetricName})
	scopes = append(scopes, ScopeKey{Type: ScopeSeverity, Value: string(alert.Severity)})
	scopes = append(scopes, ScopeKey{Type: ScopeGlobal, Value: globalScopeValue})
	return scopes
}

// severityDefaults are the per-severity window caps applied when a
// severity-scope config is lazily created.
var severityDefaults = map[models.Severity]int{
	models.SeverityCritical: 10,
	models.SeverityHigh:     20,
	models.SeverityMedium:   50,
	models.SeverityLow:      100,
	models.SeverityInfo:     200,
}

// ScopeDefaults computes the (maxAlerts, windowMinutes) pair used when
// a scope's rate-limit config is created for the first time.
func ScopeDefaults(key ScopeKey, rule *models.AlertRule, cfg config.GovernanceConfig) (int, int) {
	window := cfg.WindowMinutes
	if window <= 0 {
		window = 60
	}

	switch key.Type {
	case ScopeRule:
		max := 60
		if rule != nil && rule.MaxAlertsPerHour > 0 {
			max = rule.MaxAlertsPerHour
		}
		return max, window
	case ScopeTeam:
		return positiveOr(cfg.TeamMaxAlerts, 500), window
	case ScopeMetric:
		return positiveOr(cfg.MetricMaxAlerts, 100), window
	case ScopeSeverity:
		if max, ok := severityDefaults[models.Severity(key.Value)]; ok {
			return max, window
		}
		return severityDefaults[models.SeverityMedium], window
	default:
		return positiveOr(cfg.GlobalMaxAlerts, 1000), window
	}
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
