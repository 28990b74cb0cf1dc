package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parteiportal/backend/internal/address"
	"github.com/parteiportal/backend/internal/antrag"
	"github.com/parteiportal/backend/internal/faq"
	"github.com/parteiportal/backend/internal/groups"
	"github.com/parteiportal/backend/internal/newsletter"
	"github.com/parteiportal/backend/internal/statusreport"
	"github.com/parteiportal/backend/internal/storage"
	"github.com/parteiportal/backend/internal/users"
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
		&users.User{},
		&groups.Group{},
		&groups.Member{},
		&groups.ResponsiblePerson{},
		&statusreport.Report{},
		&faq.Entry{},
		&antrag.Antrag{},
		&address.Address{},
		&newsletter.Item{},
		&storage.UploadedFile{},
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
