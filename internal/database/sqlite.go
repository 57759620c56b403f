package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/momentum/backend/internal/directory"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/participation"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/points"
	"github.com/MarcoPoloResearchLab/momentum/backend/internal/submissions"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&directory.Tenant{},
		&directory.Member{},
		&directory.Circle{},
		&directory.CircleMember{},
		&directory.Challenge{},
		&points.Account{},
		&participation.Participation{},
		&submissions.Submission{},
		&notifications.Notification{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
