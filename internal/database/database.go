// Package database provides the Postgres connection and schema migration
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aethra/compass/internal/config"
	"github.com/aethra/compass/internal/models"
)

// Connect opens the Postgres connection with sane pool settings.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate creates the schema and seeds the default pipeline stages.
func Migrate(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return fmt.Errorf("failed to enable uuid-ossp: %w", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Client{},
		&models.Project{},
		&models.Invoice{},
		&models.InvoiceItem{},
		&models.PipelineStage{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := seedPipelineStages(db); err != nil {
		return err
	}

	log.Println("Database migration complete")
	return nil
}

// seedPipelineStages installs the default board columns once.
func seedPipelineStages(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.PipelineStage{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count pipeline stages: %w", err)
	}
	if count > 0 {
		return nil
	}

	stages := []models.PipelineStage{
		{Name: models.StageLead, Color: "blue", DefaultProbability: 10, OrderIndex: 0},
		{Name: models.StagePitched, Color: "purple", DefaultProbability: 30, OrderIndex: 1},
		{Name: models.StageDiscussion, Color: "amber", DefaultProbability: 60, OrderIndex: 2},
		{Name: models.StageWon, Color: "green", DefaultProbability: 100, OrderIndex: 3},
		{Name: models.StageLost, Color: "red", DefaultProbability: 0, OrderIndex: 4},
	}
	if err := db.Create(&stages).Error; err != nil {
		return fmt.Errorf("failed to seed pipeline stages: %w", err)
	}
	log.Printf("Seeded %d pipeline stages", len(stages))
	return nil
}
