package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-studygen/internal/domain/studypack"
	"github.com/yungbote/neurobridge-studygen/internal/platform/envutil"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

// Service is what the app needs from either backend.
type Service interface {
	DB() *gorm.DB
	Close() error
}

// Open picks the backend from DB_DRIVER (postgres|sqlite, default postgres).
func Open(log *logger.Logger) (Service, error) {
	switch driver := envutil.String("DB_DRIVER", "postgres"); driver {
	case "postgres":
		return NewPostgresService(log)
	case "sqlite":
		return NewSQLiteService(log, envutil.String("SQLITE_PATH", "studygen.db"))
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", driver)
	}
}

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(studypack.Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return EnsureStudyPackIndexes(db)
}

// EnsureStudyPackIndexes enforces one live artifact instance per pack and
// kind. Both Postgres and SQLite support partial unique indexes.
func EnsureStudyPackIndexes(db *gorm.DB) error {
	for _, table := range []string{"flashcard_deck", "quiz", "mind_map"} {
		stmt := fmt.Sprintf(
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_live_pack ON %s(study_pack_id) WHERE deleted_at IS NULL;`,
			table, table,
		)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create idx_%s_live_pack: %w", table, err)
		}
	}
	return nil
}
