package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/internal/config"
	"github.com/receiptwise/alerting-backend-go/internal/database"
	"github.com/receiptwise/alerting-backend-go/internal/database/models"
)

// Engine wires the governance components together and owns their
// background ticks. It is the single entry point collaborators use:
// the metric evaluator proposes alerts, operators acknowledge them,
// dashboards read state.
type Engine struct {
	cfg       config.GovernanceConfig
	repos     *database.Repositories
	logger    *logrus.Logger
	clock     Clock
	metrics   *Metrics
	events    EventSink
	resolver  ScopeResolver
	windows   *WindowStore
	adaptive  *AdaptiveLimiter
	evaluator *RateLimitEvaluator
	router    *SeverityRouter
	oncall    *OnCallResolver
	scheduler *EscalationScheduler

	cron *cron.Cron
}

// EngineOptions carries optional collaborators; zero values get safe
// defaults.
type EngineOptions struct {
	Clock      Clock
	Dispatcher Dispatcher
	Events     EventSink
	Registry   prometheus.Registerer
	Prefix     string
}

// NewEngine builds a governance engine on top of the repository bundle.
func NewEngine(cfg config.GovernanceConfig, repos *database.Repositories, logger *logrus.Logger, opts EngineOptions) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = &LogDispatcher{Logger: logger}
	}
	events := opts.Events
	if events == nil {
		events = NoopSink{}
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	metrics := NewMetrics(opts.Prefix, registry)
	windows := NewWindowStore(repos.RateLimit, cfg, clock, logger)
	adaptive := NewAdaptiveLimiter(repos.Adaptive, clock, logger, metrics)
	suppressions := NewSuppressionLogger(repos.Suppression, logger)
	router := NewSeverityRouter()
	oncall := NewOnCallResolver(cfg.BusinessHours, logger)
	scheduler := NewEscalationScheduler(repos.Escalation, repos.Alert, router, oncall, dispatcher, events, metrics, clock, logger)
	evaluator := NewRateLimitEvaluator(windows, adaptive, suppressions, events, metrics, clock, logger,
		config.Duration(cfg.StoreTimeout, 5*time.Second))

	return &Engine{
		cfg:       cfg,
		repos:     repos,
		logger:    logger,
		clock:     clock,
		metrics:   metrics,
		events:    events,
		windows:   windows,
		adaptive:  adaptive,
		evaluator: evaluator,
		router:    router,
		oncall:    oncall,
		scheduler: scheduler,
	}
}

// Start restores persisted state, loads policies, and begins the
// background ticks. The ticks are owned by the engine's lifecycle, not
// ambient globals, so Stop tears everything down.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.adaptive.Restore(ctx); err != nil {
		return err
	}
	if err := SeedPolicies(ctx, e.repos.Policy, e.cfg.SeverityRulesPath, e.cfg.OnCallSchedulesPath, e.logger); err != nil {
		return err
	}
	if err := e.ReloadPolicies(ctx); err != nil {
		return err
	}

	e.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DefaultLogger),
	))

	jobs := []struct {
		name     string
		interval time.Duration
		run      func()
	}{
		{"adaptive_adjust", config.Duration(e.cfg.AdaptiveInterval, 5*time.Minute), func() {
			adjusted := e.adaptive.Adjust(context.Background())
			if adjusted > 0 {
				e.logger.WithField("adjusted", adjusted).Debug("Adaptive limits retuned")
			}
		}},
		{"window_cleanup", config.Duration(e.cfg.CleanupInterval, 15*time.Minute), func() {
			reset, err := e.windows.CleanupExpired(context.Background())
			if err != nil {
				e.logger.WithError(err).Error("Window cleanup failed")
				return
			}
			if reset > 0 {
				e.logger.WithField("reset", reset).Debug("Expired windows cleaned up")
			}
		}},
		{"escalation_tick", config.Duration(e.cfg.EscalationInterval, 30*time.Second), func() {
			e.scheduler.Tick(context.Background())
		}},
	}

	for _, job := range jobs {
		spec := fmt.Sprintf("@every %s", job.interval)
		if _, err := e.cron.AddFunc(spec, job.run); err != nil {
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
	}

	e.cron.Start()
	e.logger.Info("Alert governance engine started")
	return nil
}

// Stop halts the background ticks, waiting for any in-flight run.
func (e *Engine) Stop() {
	if e.cron != nil {
		stopCtx := e.cron.Stop()
		<-stopCtx.Done()
	}
	e.logger.Info("Alert governance engine stopped")
}

// ReloadPolicies refreshes the cached severity rules and on-call
// schedules from the policy store.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	rules, err := e.repos.Policy.ListSeverityRules(ctx)
	if err != nil {
		return fmt.Errorf("load severity rules: %w", err)
	}
	e.router.Load(rules)

	schedules, err := e.repos.Policy.ListOnCallSchedules(ctx)
	if err != nil {
		return fmt.Errorf("load on-call schedules: %w", err)
	}
	e.oncall.Load(schedules)

	e.logger.WithFields(logrus.Fields{
		"severity_rules":   len(rules),
		"oncall_schedules": len(schedules),
	}).Info("Governance policies loaded")
	return nil
}

// Propose runs the full admission pipeline for an alert candidate:
// persist it, evaluate rate limits, and either start escalation or
// mark it suppressed.
func (e *Engine) Propose(ctx context.Context, alert *models.Alert, rule *models.AlertRule) (*RateLimitResult, *models.EscalationState, error) {
	if err := e.repos.Alert.Create(ctx, alert); err != nil {
		return nil, nil, fmt.Errorf("persist alert %s: %w", alert.ID, err)
	}

	result := e.evaluator.Evaluate(ctx, alert, rule)

	if !result.Allowed {
		if err := e.repos.Alert.UpdateStatus(ctx, alert.ID, models.AlertStatusSuppressed); err != nil {
			e.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Failed to write suppressed status back to alert")
		}
		return result, nil, nil
	}

	e.events.Publish(Event{
		Type:      EventAlertAdmitted,
		AlertID:   alert.ID,
		Timestamp: e.clock.Now(),
		Data:      map[string]interface{}{"severity": alert.Severity},
	})

	state, err := e.scheduler.Admit(ctx, alert)
	if err != nil {
		// The admission already stands; a routing failure degrades to
		// an unrouted alert rather than retracting it.
		e.logger.WithError(err).WithField("alert_id", alert.ID).Error("Failed to start escalation for admitted alert")
		return result, nil, nil
	}
	return result, state, nil
}

// Acknowledge stops escalation for an alert.
func (e *Engine) Acknowledge(ctx context.Context, alertID, user string) (*models.EscalationState, error) {
	return e.scheduler.Acknowledge(ctx, alertID, user)
}

// Resolve marks an alert resolved by an operator and terminates its
// escalation.
func (e *Engine) Resolve(ctx context.Context, alertID string) error {
	if err := e.scheduler.Resolve(ctx, alertID); err != nil {
		return err
	}
	return e.repos.Alert.UpdateStatus(ctx, alertID, models.AlertStatusResolved)
}

// ClearCondition records that the underlying condition for an alert is
// no longer met, enabling auto-resolve.
func (e *Engine) ClearCondition(ctx context.Context, alertID string) error {
	return e.scheduler.ClearCondition(ctx, alertID)
}

// SetAdaptiveSignals ingests externally computed error-rate and
// load-factor for a scope.
func (e *Engine) SetAdaptiveSignals(ctx context.Context, scopeType, scopeValue string, errorRate, loadFactor float64) error {
	return e.adaptive.SetSignals(ctx, ScopeKey{Type: ScopeType(scopeType), Value: scopeValue}, errorRate, loadFactor)
}

// ResetWindow restarts the rate-limit window for a scope on operator
// request. Returns nil when the scope has never been evaluated.
func (e *Engine) ResetWindow(ctx context.Context, scopeType, scopeValue string) (*models.RateLimitConfig, error) {
	return e.windows.ResetWindow(ctx, ScopeKey{Type: ScopeType(scopeType), Value: scopeValue})
}

// AdaptiveSnapshot returns the current adaptive limits for dashboards.
func (e *Engine) AdaptiveSnapshot() []*models.AdaptiveLimit {
	return e.adaptive.Snapshot()
}

// Scheduler exposes the escalation scheduler for direct ticking in
// integration scenarios.
func (e *Engine) Scheduler() *EscalationScheduler {
	return e.scheduler
}

// Evaluator exposes the rate limit evaluator.
func (e *Engine) Evaluator() *RateLimitEvaluator {
	return e.evaluator
}
