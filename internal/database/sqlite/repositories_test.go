package sqlite

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema, err := os.ReadFile("../../../migrations/000001_init_governance.up.sql")
	if err != nil {
		t.Fatalf("Failed to read schema: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestRateLimitRepository_UnseenScopeIsNil(t *testing.T) {
	repo := NewRateLimitRepository(setupTestDB(t))
	ctx := context.Background()

	cfg, err := repo.GetByScope(ctx, "team", "never-seen")
	if err != nil {
		t.Fatalf("GetByScope failed: %v", err)
	}
	if cfg != nil {
		t.Errorf("Expected nil for unseen scope, got %+v", cfg)
	}
}

func TestRateLimitRepository_SaveAndReload(t *testing.T) {
	repo := NewRateLimitRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	cfg := &models.RateLimitConfig{
		ID:            "rl-1",
		ScopeType:     "metric",
		ScopeValue:    "cpu_usage",
		MaxAlerts:     100,
		WindowMinutes: 60,
		CurrentCount:  3,
		WindowStart:   now,
		NextResetAt:   now.Add(time.Hour),
		Enabled:       true,
		UpdatedAt:     now,
	}
	if err := repo.Save(ctx, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := repo.GetByScope(ctx, "metric", "cpu_usage")
	if err != nil {
		t.Fatalf("GetByScope failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected config, got nil")
	}
	if loaded.CurrentCount != 3 || loaded.MaxAlerts != 100 {
		t.Errorf("Round trip lost fields: %+v", loaded)
	}
	if !loaded.NextResetAt.Equal(cfg.NextResetAt) {
		t.Errorf("NextResetAt mismatch: got %v want %v", loaded.NextResetAt, cfg.NextResetAt)
	}

	// A second save for the same scope updates in place.
	cfg.CurrentCount = 4
	if err := repo.Save(ctx, cfg); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 config after upsert, got %d", len(all))
	}
	if all[0].CurrentCount != 4 {
		t.Errorf("Expected updated count 4, got %d", all[0].CurrentCount)
	}
}

func TestRateLimitRepository_ListExpired(t *testing.T) {
	repo := NewRateLimitRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	stale := &models.RateLimitConfig{
		ID: "rl-stale", ScopeType: "team", ScopeValue: "payments",
		MaxAlerts: 500, WindowMinutes: 60, CurrentCount: 12,
		WindowStart: now.Add(-2 * time.Hour), NextResetAt: now.Add(-time.Hour),
		Enabled: true, UpdatedAt: now,
	}
	fresh := &models.RateLimitConfig{
		ID: "rl-fresh", ScopeType: "team", ScopeValue: "ingest",
		MaxAlerts: 500, WindowMinutes: 60, CurrentCount: 2,
		WindowStart: now, NextResetAt: now.Add(time.Hour),
		Enabled: true, UpdatedAt: now,
	}
	drained := &models.RateLimitConfig{
		ID: "rl-drained", ScopeType: "team", ScopeValue: "platform",
		MaxAlerts: 500, WindowMinutes: 60, CurrentCount: 0,
		WindowStart: now.Add(-2 * time.Hour), NextResetAt: now.Add(-time.Hour),
		Enabled: true, UpdatedAt: now,
	}
	for _, cfg := range []*models.RateLimitConfig{stale, fresh, drained} {
		if err := repo.Save(ctx, cfg); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	expired, err := repo.ListExpired(ctx, now)
	if err != nil {
		t.Fatalf("ListExpired failed: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("Expected 1 expired config with a live count, got %d", len(expired))
	}
	if expired[0].ScopeValue != "payments" {
		t.Errorf("Unexpected expired scope: %s", expired[0].ScopeValue)
	}
}

func TestSuppressionRepository_AppendAndQuery(t *testing.T) {
	repo := NewSuppressionRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	entries := []*models.SuppressionLogEntry{
		{
			ID: "s-1", AlertID: "a-1", Suppressed: true, Reason: "rule_rate_limit",
			SuppressUntil: now.Add(30 * time.Minute),
			Metadata:      map[string]interface{}{"scope_type": "rule", "adaptive_limit": float64(8)},
			CreatedAt:     now.Add(-2 * time.Hour),
		},
		{
			ID: "s-2", AlertID: "a-2", Suppressed: true, Reason: "global_rate_limit",
			SuppressUntil: now.Add(10 * time.Minute),
			CreatedAt:     now.Add(-10 * time.Minute),
		},
	}
	for _, entry := range entries {
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	listed, err := repo.List(ctx, now.Add(-time.Hour), now, 100)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("Expected 1 entry in range, got %d", len(listed))
	}
	if listed[0].ID != "s-2" {
		t.Errorf("Expected s-2, got %s", listed[0].ID)
	}

	all, err := repo.List(ctx, now.Add(-3*time.Hour), now, 100)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(all))
	}
	// Newest first.
	if all[0].ID != "s-2" {
		t.Errorf("Expected newest entry first, got %s", all[0].ID)
	}
	if all[1].Metadata["scope_type"] != "rule" {
		t.Errorf("Metadata did not round trip: %+v", all[1].Metadata)
	}

	count, err := repo.CountSince(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountSince failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected count 1, got %d", count)
	}
}

func TestEscalationRepository_Lifecycle(t *testing.T) {
	repo := NewEscalationRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	state := &models.EscalationState{
		ID:               "es-1",
		AlertID:          "a-1",
		SeverityRuleID:   "crit-default",
		Severity:         models.SeverityCritical,
		Level:            0,
		Status:           models.EscalationStatusPending,
		AdmittedAt:       now,
		LastTransitionAt: now,
	}
	if err := repo.Create(ctx, state); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Expected 1 active state, got %d", len(active))
	}

	state.Level = 1
	state.Status = models.EscalationStatusEscalating
	state.LastTransitionAt = now.Add(15 * time.Minute)
	state.ConditionCleared = true
	if err := repo.Update(ctx, state); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	loaded, err := repo.GetByAlertID(ctx, "a-1")
	if err != nil {
		t.Fatalf("GetByAlertID failed: %v", err)
	}
	if loaded.Level != 1 || loaded.Status != models.EscalationStatusEscalating {
		t.Errorf("Update lost fields: %+v", loaded)
	}
	if !loaded.ConditionCleared {
		t.Error("ConditionCleared did not round trip")
	}

	// Terminal states drop out of the active listing.
	user := "carol"
	ackAt := now.Add(20 * time.Minute)
	state.Status = models.EscalationStatusAcknowledged
	state.AcknowledgedAt = &ackAt
	state.AcknowledgedBy = &user
	if err := repo.Update(ctx, state); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	active, err = repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected no active states, got %d", len(active))
	}

	missing, err := repo.GetByAlertID(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetByAlertID failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown alert, got %+v", missing)
	}
}

func TestAlertRepository_StatusTransitions(t *testing.T) {
	repo := NewAlertRepository(setupTestDB(t))
	ctx := context.Background()
	team := "payments"

	alert := &models.Alert{
		ID:          "a-1",
		Title:       "receipt OCR error rate",
		Severity:    models.SeverityHigh,
		RuleID:      "rule-ocr",
		TeamID:      &team,
		MetricName:  "ocr_errors",
		MetricValue: 0.31,
		Status:      models.AlertStatusActive,
		CreatedAt:   time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
	}
	if err := repo.Create(ctx, alert); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := repo.UpdateStatus(ctx, "a-1", models.AlertStatusResolved); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	loaded, err := repo.GetByID(ctx, "a-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if loaded.Status != models.AlertStatusResolved {
		t.Errorf("Expected resolved, got %s", loaded.Status)
	}
	if loaded.TeamID == nil || *loaded.TeamID != "payments" {
		t.Errorf("TeamID did not round trip: %v", loaded.TeamID)
	}
}

func TestPolicyRepository_SeverityRuleUpsert(t *testing.T) {
	repo := NewPolicyRepository(setupTestDB(t))
	ctx := context.Background()

	autoAck := 30
	rule := &models.SeverityRule{
		ID:                        "crit-default",
		Severity:                  models.SeverityCritical,
		AssignedUsers:             []string{"alice", "bob"},
		NotifyChannels:            []string{"pagerduty"},
		EscalationIntervalMinutes: 15,
		MaxEscalationLevel:        4,
		WeekendEscalation:         true,
		AutoAcknowledgeMinutes:    &autoAck,
		Priority:                  10,
		Enabled:                   true,
	}
	if err := repo.UpsertSeverityRule(ctx, rule); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rule.MaxEscalationLevel = 5
	if err := repo.UpsertSeverityRule(ctx, rule); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	rules, err := repo.ListSeverityRules(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("Expected 1 rule after upsert, got %d", len(rules))
	}
	got := rules[0]
	if got.MaxEscalationLevel != 5 {
		t.Errorf("Expected updated level 5, got %d", got.MaxEscalationLevel)
	}
	if len(got.AssignedUsers) != 2 || got.AssignedUsers[0] != "alice" {
		t.Errorf("AssignedUsers did not round trip: %v", got.AssignedUsers)
	}
	if got.AutoAcknowledgeMinutes == nil || *got.AutoAcknowledgeMinutes != 30 {
		t.Errorf("AutoAcknowledgeMinutes did not round trip: %v", got.AutoAcknowledgeMinutes)
	}
}

func TestPolicyRepository_OnCallScheduleRoundTrip(t *testing.T) {
	repo := NewPolicyRepository(setupTestDB(t))
	ctx := context.Background()

	schedule := &models.OnCallSchedule{
		ID:           "rot",
		TeamID:       "payments",
		Name:         "weekly",
		ScheduleType: models.ScheduleFollowTheSun,
		Rotation: models.RotationConfig{
			Regions: []models.RotationRegion{
				{Name: "apac", StartHour: 23, EndHour: 7, Assignees: []string{"jun"}},
			},
		},
		Timezone:             "UTC",
		EffectiveFrom:        time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		ApplicableSeverities: []string{"critical", "high"},
		Enabled:              true,
	}
	if err := repo.UpsertOnCallSchedule(ctx, schedule); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	schedules, err := repo.ListOnCallSchedules(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("Expected 1 schedule, got %d", len(schedules))
	}
	got := schedules[0]
	if len(got.Rotation.Regions) != 1 || got.Rotation.Regions[0].Name != "apac" {
		t.Errorf("Rotation did not round trip: %+v", got.Rotation)
	}
	if len(got.ApplicableSeverities) != 2 {
		t.Errorf("ApplicableSeverities did not round trip: %v", got.ApplicableSeverities)
	}
}

func TestAdaptiveRepository_Upsert(t *testing.T) {
	repo := NewAdaptiveRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	limit := &models.AdaptiveLimit{
		ScopeType:        "severity",
		ScopeValue:       "critical",
		BaseLimit:        10,
		CurrentLimit:     10,
		AdaptationFactor: 1.0,
		LastAdjustment:   now,
		ErrorRate:        0,
		LoadFactor:       1.0,
	}
	if err := repo.Save(ctx, limit); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	limit.CurrentLimit = 8
	limit.AdaptationFactor = 0.8
	if err := repo.Save(ctx, limit); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	loaded, err := repo.GetByScope(ctx, "severity", "critical")
	if err != nil {
		t.Fatalf("GetByScope failed: %v", err)
	}
	if loaded == nil || loaded.CurrentLimit != 8 {
		t.Fatalf("Upsert did not stick: %+v", loaded)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 limit, got %d", len(all))
	}
}
