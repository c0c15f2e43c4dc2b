package governance

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/internal/config"
	"github.com/receiptwise/alerting-backend-go/internal/database/models"
)

// OnCallResolver determines who is on duty for a team at a point in
// time. Resolution is pure with respect to the cached schedule set:
// the same inputs always yield the same targets.
type OnCallResolver struct {
	mu            sync.RWMutex
	schedules     []*models.OnCallSchedule
	businessHours config.BusinessHoursConfig
	logger        *logrus.Logger
}

// NewOnCallResolver creates an empty resolver; Load installs schedules.
func NewOnCallResolver(businessHours config.BusinessHoursConfig, logger *logrus.Logger) *OnCallResolver {
	return &OnCallResolver{businessHours: businessHours, logger: logger}
}

// Load replaces the cached schedule set.
func (r *OnCallResolver) Load(schedules []*models.OnCallSchedule) {
	r.mu.Lock()
	r.schedules = schedules
	r.mu.Unlock()
}

// Resolve returns the ordered on-duty targets for an escalation step.
// gated=true means resolution was withheld purely by business-hours or
// weekend policy and the caller should retry at the next tick; it is
// distinct from an empty target list, which is a configuration gap.
//
// All eligible schedules are consulted: a team may stack a
// critical-only schedule on top of a general rotation.
func (r *OnCallResolver) Resolve(rule *models.SeverityRule, teamID string, at time.Time) (targets []string, gated bool) {
	if rule == nil {
		return nil, false
	}

	if !rule.WeekendEscalation && r.isWeekend(at) {
		return nil, true
	}

	r.mu.RLock()
	schedules := r.schedules
	r.mu.RUnlock()

	seen := make(map[string]bool)
	sawGate := false

	for _, schedule := range schedules {
		if !r.eligible(schedule, teamID, rule.Severity, at) {
			continue
		}

		loc, err := time.LoadLocation(schedule.Timezone)
		if err != nil {
			// Malformed timezone degrades to "no one found" for this
			// schedule instead of crashing the scheduler.
			r.logger.WithError(err).WithFields(logrus.Fields{
				"schedule": schedule.ID,
				"timezone": schedule.Timezone,
			}).Warn("On-call schedule has invalid timezone, skipping")
			continue
		}

		if rule.BusinessHoursOnly && !schedule.OverrideBusinessHours && !r.withinBusinessHours(at.In(loc)) {
			sawGate = true
			continue
		}

		for _, target := range r.onDuty(schedule, at, loc) {
			if !seen[target] {
				seen[target] = true
				targets = append(targets, target)
			}
		}
	}

	if len(targets) == 0 {
		if sawGate {
			return nil, true
		}
		// No schedule produced anyone. The rule's static assignees are
		// the fallback, still subject to the business-hours gate.
		if rule.BusinessHoursOnly && !r.withinDefaultBusinessHours(at) {
			return nil, true
		}
		return append([]string(nil), rule.AssignedUsers...), false
	}

	return targets, false
}

// eligible applies the schedule selection rule: enabled, team match,
// severity applicability, and effective date range (inclusive, open
// ended when effective_until is unset).
func (r *OnCallResolver) eligible(schedule *models.OnCallSchedule, teamID string, severity models.Severity, at time.Time) bool {
	if !schedule.Enabled || schedule.TeamID != teamID {
		return false
	}
	if !schedule.AppliesTo(severity) {
		return false
	}
	if at.Before(schedule.EffectiveFrom) {
		return false
	}
	if schedule.EffectiveUntil != nil && at.After(*schedule.EffectiveUntil) {
		return false
	}
	return true
}

// onDuty resolves who a single schedule puts on duty at the given time.
func (r *OnCallResolver) onDuty(schedule *models.OnCallSchedule, at time.Time, loc *time.Location) []string {
	switch schedule.ScheduleType {
	case models.ScheduleFixed:
		return schedule.Rotation.Assignees

	case models.ScheduleRotation:
		assignees := schedule.Rotation.Assignees
		if len(assignees) == 0 {
			return nil
		}
		period := time.Duration(schedule.Rotation.PeriodHours) * time.Hour
		if period <= 0 {
			period = 7 * 24 * time.Hour
		}
		elapsed := at.Sub(schedule.EffectiveFrom)
		if elapsed < 0 {
			return nil
		}
		index := int(elapsed/period) % len(assignees)
		return assignees[index : index+1]

	case models.ScheduleFollowTheSun:
		localHour := at.In(loc).Hour()
		for _, region := range schedule.Rotation.Regions {
			if hourInRange(localHour, region.StartHour, region.EndHour) {
				return region.Assignees
			}
		}
		return nil

	default:
		r.logger.WithFields(logrus.Fields{
			"schedule": schedule.ID,
			"type":     schedule.ScheduleType,
		}).Warn("Unknown schedule type")
		return nil
	}
}

// hourInRange reports whether hour falls in [start, end), wrapping
// across midnight when start > end.
func hourInRange(hour, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func (r *OnCallResolver) withinDefaultBusinessHours(at time.Time) bool {
	loc, err := time.LoadLocation(r.businessHours.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return r.withinBusinessHours(at.In(loc))
}

// withinBusinessHours checks the configured weekday/hour range against
// an already-localized time.
func (r *OnCallResolver) withinBusinessHours(local time.Time) bool {
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	hour := local.Hour()
	return hour >= r.businessHours.StartHour && hour < r.businessHours.EndHour
}

func (r *OnCallResolver) isWeekend(at time.Time) bool {
	loc, err := time.LoadLocation(r.businessHours.Timezone)
	if err != nil {
		loc = time.UTC
	}
	switch at.In(loc).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}
