// Package history archives per-step market statistics to Postgres so that
// many runs can be compared side by side.
package history

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stuphys1729/SenHons/internal/telemetry"
)

// StepRow is one archived step.
type StepRow struct {
	RunID       string `gorm:"primaryKey;size:64"`
	Step        int    `gorm:"primaryKey"`
	Sales       int
	MeanQuality float64
	StockOuts   int
	Exhausted   int
	Dormant     int
	Sellers     int
	Suppliers   int
	Spawned     int
	Retired     int
	TopSeller   uint64
	TopQuality  float64
	RecordedAt  time.Time `gorm:"autoCreateTime"`
}

func (StepRow) TableName() string { return "medtrust_steps" }

// Archive writes steps to a gorm database.
type Archive struct {
	db *gorm.DB
}

// OpenPostgres connects to dsn and migrates the archive table.
func OpenPostgres(dsn string) (*Archive, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Archive, error) {
	if err := db.AutoMigrate(&StepRow{}); err != nil {
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Archive{db: db}, nil
}

func rowFrom(runID string, s telemetry.StepStats) StepRow {
	return StepRow{
		RunID:       runID,
		Step:        s.Step,
		Sales:       s.Sales,
		MeanQuality: s.MeanQuality,
		StockOuts:   s.StockOuts,
		Exhausted:   s.Exhausted,
		Dormant:     s.Dormant,
		Sellers:     s.Sellers,
		Suppliers:   s.Suppliers,
		Spawned:     s.Spawned,
		Retired:     s.Retired,
		TopSeller:   s.TopSeller,
		TopQuality:  s.TopQuality,
	}
}

// RecordStep upserts one step of a run.
func (a *Archive) RecordStep(ctx context.Context, runID string, s telemetry.StepStats) error {
	row := rowFrom(runID, s)
	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// Steps lists a run's archived steps in order.
func (a *Archive) Steps(ctx context.Context, runID string) ([]StepRow, error) {
	var rows []StepRow
	err := a.db.WithContext(ctx).
		Where(&StepRow{RunID: runID}).
		Order("step").
		Find(&rows).Error
	return rows, err
}

// DeleteRun removes every archived step of a run.
func (a *Archive) DeleteRun(ctx context.Context, runID string) error {
	return a.db.WithContext(ctx).Where("run_id = ?", runID).Delete(&StepRow{}).Error
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
