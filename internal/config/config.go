package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Governance GovernanceConfig `mapstructure:"governance"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GovernanceConfig drives the alert governance engine: scope ceilings,
// background tick cadence, and business-hours policy.
type GovernanceConfig struct {
	// Scope defaults applied when a rate-limit config is lazily created.
	TeamMaxAlerts   int `mapstructure:"team_max_alerts"`
	MetricMaxAlerts int `mapstructure:"metric_max_alerts"`
	GlobalMaxAlerts int `mapstructure:"global_max_alerts"`
	WindowMinutes   int `mapstructure:"window_minutes"`

	// Background tick cadence. Strings parsed with time.ParseDuration.
	AdaptiveInterval   string `mapstructure:"adaptive_interval"`
	CleanupInterval    string `mapstructure:"cleanup_interval"`
	EscalationInterval string `mapstructure:"escalation_interval"`

	// Bounded timeout for store calls made during evaluation. The
	// evaluator fails open when this elapses.
	StoreTimeout string `mapstructure:"store_timeout"`

	BusinessHours BusinessHoursConfig `mapstructure:"business_hours"`

	// Seed policy files loaded at boot.
	SeverityRulesPath   string `mapstructure:"severity_rules_path"`
	OnCallSchedulesPath string `mapstructure:"oncall_schedules_path"`
}

// BusinessHoursConfig defines the weekday/hour range used by
// business-hours-only escalation gates.
type BusinessHoursConfig struct {
	StartHour int    `mapstructure:"start_hour"`
	EndHour   int    `mapstructure:"end_hour"`
	Timezone  string `mapstructure:"timezone"`
}

type FeedConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PingInterval int  `mapstructure:"ping_interval"`
	WriteTimeout int  `mapstructure:"write_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
}

// Load reads configuration from configs/config.yaml with environment
// overrides.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine, defaults plus env carry the service.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3300)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "development")

	viper.SetDefault("database.path", "./data/alerting.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 25)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("governance.team_max_alerts", 500)
	viper.SetDefault("governance.metric_max_alerts", 100)
	viper.SetDefault("governance.global_max_alerts", 1000)
	viper.SetDefault("governance.window_minutes", 60)
	viper.SetDefault("governance.adaptive_interval", "5m")
	viper.SetDefault("governance.cleanup_interval", "15m")
	viper.SetDefault("governance.escalation_interval", "30s")
	viper.SetDefault("governance.store_timeout", "5s")
	viper.SetDefault("governance.business_hours.start_hour", 9)
	viper.SetDefault("governance.business_hours.end_hour", 17)
	viper.SetDefault("governance.business_hours.timezone", "UTC")
	viper.SetDefault("governance.severity_rules_path", "./configs/severity_rules.yaml")
	viper.SetDefault("governance.oncall_schedules_path", "./configs/oncall_schedules.yaml")

	viper.SetDefault("feed.enabled", true)
	viper.SetDefault("feed.ping_interval", 30)
	viper.SetDefault("feed.write_timeout", 10)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prefix", "alerting")
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Governance.WindowMinutes <= 0 {
		return fmt.Errorf("governance.window_minutes must be positive, got %d", cfg.Governance.WindowMinutes)
	}
	bh := cfg.Governance.BusinessHours
	if bh.StartHour < 0 || bh.StartHour > 23 || bh.EndHour < 0 || bh.EndHour > 24 || bh.StartHour >= bh.EndHour {
		return fmt.Errorf("invalid business hours range: %d-%d", bh.StartHour, bh.EndHour)
	}
	for name, raw := range map[string]string{
		"adaptive_interval":   cfg.Governance.AdaptiveInterval,
		"cleanup_interval":    cfg.Governance.CleanupInterval,
		"escalation_interval": cfg.Governance.EscalationInterval,
		"store_timeout":       cfg.Governance.StoreTimeout,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid governance.%s %q: %w", name, raw, err)
		}
	}
	return nil
}

// Duration returns a parsed duration field, falling back when the
// value is empty or malformed. Validation at load time catches bad
// values, so the fallback only serves zero-value Config structs in
// tests.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
