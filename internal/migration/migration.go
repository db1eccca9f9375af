// Package migration bootstraps the schema on startup so the service is
// usable out of the box for local and self-hosted environments.
package migration

import (
	"errors"
	"fmt"

	organizationdomain "github.com/tenantly/tenantly/internal/organization/domain"
	usagedomain "github.com/tenantly/tenantly/internal/usage/domain"
	"gorm.io/gorm"
)

// advisoryLockKey serializes schema changes across API replicas sharing one
// Postgres database.
const advisoryLockKey = 7421001

func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}

	if conn.Dialector.Name() == "postgres" {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", advisoryLockKey).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		defer conn.Exec("SELECT pg_advisory_unlock(?)", advisoryLockKey)
	}

	if err := conn.AutoMigrate(
		&organizationdomain.Organization{},
		&organizationdomain.OrganizationMember{},
		&usagedomain.UsageRecord{},
	); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
