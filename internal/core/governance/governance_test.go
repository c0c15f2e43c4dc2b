package governance

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/internal/config"
	"github.com/receiptwise/alerting-backend-go/internal/database"
)

// A Wednesday at 10:00 UTC, inside default business hours.
var testEpoch = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func newTestRepos(t *testing.T) *database.Repositories {
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
	return database.NewRepositories(db)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testGovernanceConfig() config.GovernanceConfig {
	return config.GovernanceConfig{
		TeamMaxAlerts:   500,
		MetricMaxAlerts: 100,
		GlobalMaxAlerts: 1000,
		WindowMinutes:   60,
		StoreTimeout:    "5s",
		BusinessHours: config.BusinessHoursConfig{
			StartHour: 9,
			EndHour:   17,
			Timezone:  "UTC",
		},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	c.now = at
	c.mu.Unlock()
}

type captureDispatcher struct {
	mu   sync.Mutex
	sent []Notification
}

func (d *captureDispatcher) Dispatch(_ context.Context, n *Notification) error {
	d.mu.Lock()
	d.sent = append(d.sent, *n)
	d.mu.Unlock()
	return nil
}

func (d *captureDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *captureDispatcher) last() Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[len(d.sent)-1]
}

func newTestEngine(t *testing.T, clock Clock) (*Engine, *database.Repositories, *captureDispatcher) {
	t.Helper()
	repos := newTestRepos(t)
	dispatcher := &captureDispatcher{}
	engine := NewEngine(testGovernanceConfig(), repos, testLogger(), EngineOptions{
		Clock:      clock,
		Dispatcher: dispatcher,
		Registry:   prometheus.NewRegistry(),
	})
	return engine, repos, dispatcher
}
