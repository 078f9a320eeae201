// Package testutil provides shared helpers for repository tests. Tests
// needing a database run only when TEST_POSTGRES_DSN is set and are
// isolated by per-test transactions that always roll back.
package testutil

import (
	"os"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/soratone/counsel-backend/internal/data/db"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

var (
	dbOnce sync.Once
	dbConn *gorm.DB
	dbErr  error
)

// DB returns a migrated test database, skipping the test when
// TEST_POSTGRES_DSN is unset. The connection is shared per process.
func DB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping database test")
	}

	dbOnce.Do(func() {
		dbConn, dbErr = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if dbErr != nil {
			return
		}
		dbErr = db.Migrate(dbConn)
	})
	if dbErr != nil {
		t.Fatalf("test database setup: %v", dbErr)
	}
	return dbConn
}

// Tx opens a transaction that rolls back when the test finishes.
func Tx(t *testing.T, gdb *gorm.DB) *gorm.DB {
	t.Helper()
	tx := gdb.Begin()
	if tx.Error != nil {
		t.Fatalf("begin test transaction: %v", tx.Error)
	}
	t.Cleanup(func() {
		_ = tx.Rollback()
	})
	return tx
}

// Logger returns a development logger for test use.
func Logger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("test logger: %v", err)
	}
	return log
}
