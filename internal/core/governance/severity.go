package governance

import (
	"sync"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
)

// SeverityRouter maps an admitted alert's severity to its escalation
// policy. Pure lookup against a cached rule set; a missing rule is a
// configuration gap, not an error.
type SeverityRouter struct {
	mu    sync.RWMutex
	rules []*models.SeverityRule
	byID  map[string]*models.SeverityRule
}

// NewSeverityRouter creates an empty router; Load installs rules.
func NewSeverityRouter() *SeverityRouter {
	return &SeverityRouter{byID: make(map[string]*models.SeverityRule)}
}

// Load replaces the cached rule set. Rules arrive sorted by priority
// descending.
func (sr *SeverityRouter) Load(rules []*models.SeverityRule) {
	byID := make(map[string]*models.SeverityRule, len(rules))
	for _, rule := range rules {
		byID[rule.ID] = rule
	}

	sr.mu.Lock()
	sr.rules = rules
	sr.byID = byID
	sr.mu.Unlock()
}

// Route returns the severity rule for a severity and team. A
// team-specific rule wins over a team-agnostic one; among equals the
// highest priority wins. Returns nil when no enabled rule matches.
func (sr *SeverityRouter) Route(severity models.Severity, teamID *string) *models.SeverityRule {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	var fallback *models.SeverityRule
	for _, rule := range sr.rules {
		if !rule.Enabled || rule.Severity != severity {
			continue
		}
		if rule.TeamID != nil {
			if teamID != nil && *rule.TeamID == *teamID {
				return rule
			}
			continue
		}
		if fallback == nil {
			fallback = rule
		}
	}
	return fallback
}

// RuleByID returns a cached rule by its identifier, or nil.
func (sr *SeverityRouter) RuleByID(id string) *models.SeverityRule {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	return sr.byID[id]
}
