package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/receiptwise/alerting-backend-go/internal/config"
	"github.com/receiptwise/alerting-backend-go/internal/database/repositories"
	sqliterepo "github.com/receiptwise/alerting-backend-go/internal/database/sqlite"
)

// Initialize opens and configures the SQLite database.
func Initialize(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dbDir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate runs pending schema migrations.
func Migrate(db *sqlx.DB, migrationsPath string) error {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite3",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Repositories bundles all repository implementations.
type Repositories struct {
	Alert       repositories.AlertRepository
	RateLimit   repositories.RateLimitRepository
	Adaptive    repositories.AdaptiveRepository
	Suppression repositories.SuppressionRepository
	Policy      repositories.PolicyRepository
	Escalation  repositories.EscalationRepository
}

// NewRepositories creates all repositories backed by the given database.
func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Alert:       sqliterepo.NewAlertRepository(db),
		RateLimit:   sqliterepo.NewRateLimitRepository(db),
		Adaptive:    sqliterepo.NewAdaptiveRepository(db),
		Suppression: sqliterepo.NewSuppressionRepository(db),
		Policy:      sqliterepo.NewPolicyRepository(db),
		Escalation:  sqliterepo.NewEscalationRepository(db),
	}
}
