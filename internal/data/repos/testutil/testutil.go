package testutil

import (
	"os"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/neurobridge-studygen/internal/data/db"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns a fresh, migrated database private to the test. It is an
// in-memory SQLite database unless TEST_POSTGRES_DSN is set.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		return postgresDB(tb, dsn)
	}

	svc, err := db.NewSQLiteService(Logger(tb), "")
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	svc.SilenceLogs()
	tb.Cleanup(func() { _ = svc.Close() })

	if err := db.AutoMigrateAll(svc.DB()); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return svc.DB()
}

var (
	pgOnce sync.Once
	pgDB   *gorm.DB
	pgErr  error
)

func postgresDB(tb testing.TB, dsn string) *gorm.DB {
	tb.Helper()
	pgOnce.Do(func() {
		pgDB, pgErr = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
			Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if pgErr != nil {
			return
		}
		pgErr = db.AutoMigrateAll(pgDB)
	})
	if pgErr != nil {
		tb.Fatalf("failed to init test db: %v", pgErr)
	}
	// shared across tests; callers isolate through Tx
	return pgDB
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

// Savepoint runs fn in a nested transaction so an expected constraint
// violation does not poison tx on Postgres. It returns fn's error.
func Savepoint(tb testing.TB, tx *gorm.DB, fn func(inner *gorm.DB) error) error {
	tb.Helper()
	return tx.Transaction(fn)
}
