package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/momentum/backend/internal/points"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/submissions"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeSubmissionStatus = "2026-07-14_normalize_submission_status"
	migrationClampNegativeTotals       = "2026-08-02_clamp_negative_points_totals"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeSubmissionStatus, apply: normalizeSubmissionStatus},
		{name: migrationClampNegativeTotals, apply: clampNegativePointsTotals},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Early deployments stored capitalized review statuses.
func normalizeSubmissionStatus(db *gorm.DB) error {
	known := []string{
		string(submissions.StatusPending),
		string(submissions.StatusApproved),
		string(submissions.StatusRejected),
	}
	return db.Model(&submissions.Submission{}).
		Where("status NOT IN ?", known).
		Update("status", gorm.Expr("lower(status)")).Error
}

// Totals below zero violate the ledger invariant; the self-healing read will
// rebuild the correct value from completed participations.
func clampNegativePointsTotals(db *gorm.DB) error {
	return db.Model(&points.Account{}).
		Where("total_points < 0").
		Update("total_points", 0).Error
}
