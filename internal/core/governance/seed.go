package governance

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/receiptwise/alerting-backend-go/internal/database/models"
	"github.com/receiptwise/alerting-backend-go/internal/database/repositories"
)

type severityRulesFile struct {
	Rules []*models.SeverityRule `yaml:"rules"`
}

type onCallSchedulesFile struct {
	Schedules []*models.OnCallSchedule `yaml:"schedules"`
}

// SeedPolicies loads severity rules and on-call schedules from YAML
// files into the policy store. Policies are administered by an
// external UI in production; the seed files give a fresh deployment a
// working baseline. Missing files are skipped.
func SeedPolicies(ctx context.Context, repo repositories.PolicyRepository, rulesPath, schedulesPath string, logger *logrus.Logger) error {
	if rulesPath != "" {
		data, err := os.ReadFile(rulesPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("read severity rules file: %w", err)
			}
			logger.WithField("path", rulesPath).Debug("No severity rules seed file")
		} else {
			var file severityRulesFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parse severity rules file: %w", err)
			}
			for _, rule := range file.Rules {
				if !rule.Severity.Valid() {
					return fmt.Errorf("severity rule %s has unknown severity %q", rule.ID, rule.Severity)
				}
				if err := repo.UpsertSeverityRule(ctx, rule); err != nil {
					return err
				}
			}
			logger.WithField("count", len(file.Rules)).Info("Seeded severity rules")
		}
	}

	if schedulesPath != "" {
		data, err := os.ReadFile(schedulesPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("read on-call schedules file: %w", err)
			}
			logger.WithField("path", schedulesPath).Debug("No on-call schedules seed file")
		} else {
			var file onCallSchedulesFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parse on-call schedules file: %w", err)
			}
			for _, schedule := range file.Schedules {
				if err := repo.UpsertOnCallSchedule(ctx, schedule); err != nil {
					return err
				}
			}
			logger.WithField("count", len(file.Schedules)).Info("Seeded on-call schedules")
		}
	}

	return nil
}
