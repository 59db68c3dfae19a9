package db

import (
	"fmt"

	"github.com/zulandar/hive/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model hive persists.
func AllModels() []interface{} {
	return []interface{}{
		&models.Agent{},
		&models.JournalEntry{},
		&models.CoordinatorLease{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
