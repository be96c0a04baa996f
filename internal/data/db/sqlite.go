package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

type SQLiteService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewSQLiteService opens path, or a private in-memory database when path is
// empty or ":memory:".
func NewSQLiteService(logg *logger.Logger, path string) (*SQLiteService, error) {
	serviceLog := logg.With("service", "SQLiteService")

	dsn := strings.TrimSpace(path)
	memory := dsn == "" || dsn == ":memory:"
	if memory {
		// named shared-cache memory db so every pooled connection sees the same data
		dsn = fmt.Sprintf("file:studygen-%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   newGormLogger(serviceLog, time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite %q: %w", path, err)
	}
	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	if memory {
		// shared-cache tables lock per connection; serialize instead
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return &SQLiteService{db: db, log: serviceLog}, nil
}

// SilenceLogs drops gorm logging, for tests.
func (s *SQLiteService) SilenceLogs() {
	s.db.Logger = gormLogger.Default.LogMode(gormLogger.Silent)
}

func (s *SQLiteService) DB() *gorm.DB { return s.db }

func (s *SQLiteService) Close() error { return closeDB(s.db) }
