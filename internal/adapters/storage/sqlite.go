package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// SQLiteAdapter persists the audit trail using GORM and SQLite.
type SQLiteAdapter struct {
	db *gorm.DB
}

// AuditModel is the GORM model for audit entries.
type AuditModel struct {
	ID          uint      `gorm:"primaryKey"`
	Actor       string    `gorm:"size:128"`
	Action      string    `gorm:"size:64;index"`
	Target      string    `gorm:"size:256"`
	Details     string
	Outcome     string    `gorm:"size:32"`
	Session     string    `gorm:"size:32"`
	OperationID string    `gorm:"size:64;index"`
	Timestamp   time.Time `gorm:"index"`
}

// TableName keeps the table name stable across model renames.
func (AuditModel) TableName() string {
	return "audit_logs"
}

// NewSQLiteAdapter opens the database, installs tracing and migrates the schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return newAdapter(db)
}

func newAdapter(db *gorm.DB) (*SQLiteAdapter, error) {
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("install tracing: %w", err)
	}

	if err := db.AutoMigrate(&AuditModel{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// SQLite allows one writer at a time
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	return &SQLiteAdapter{db: db}, nil
}

// Ping checks the database connection.
func (a *SQLiteAdapter) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
