package database

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/config"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/models"
)

// InitGorm opens the Postgres connection and runs migrations.
func InitGorm(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("Connected to PostgreSQL, migrations applied")
	return db, nil
}

// Migrate runs auto-migration for every model. Shared with the sqlite-backed
// test setup.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Campaign{},
		&models.Contact{},
		&models.CampaignRecipientTask{},
		&models.Template{},
		&models.WebhookEndpoint{},
		&models.WebhookActivityLog{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration: %w", err)
	}
	return nil
}
