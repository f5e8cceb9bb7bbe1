// Package testutil provides sqlite-backed fixtures for repo, aggregate and
// service tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	dbpkg "github.com/yungbote/learnworld-backend/internal/data/db"
	"github.com/yungbote/learnworld-backend/internal/platform/envutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
)

var dbSeq atomic.Int64

// Logger is silent unless TEST_LOG is set.
func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	if !envutil.Bool("TEST_LOG", false) {
		return logger.NewNop()
	}
	l, err := logger.New("development")
	if err != nil {
		tb.Fatalf("test logger: %v", err)
	}
	return l
}

// DB opens a migrated in-memory sqlite database private to tb. A single
// connection keeps the database alive for the test and serializes writers,
// so a test holding Tx must do all its work through that Tx.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	name := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, tb.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := dbpkg.Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return db
}

// Tx begins a transaction that is rolled back when tb finishes.
func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin: %v", tx.Error)
	}
	tb.Cleanup(func() { tx.Rollback() })
	return tx
}
