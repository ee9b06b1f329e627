package testutil

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/yungbote/dcengine/internal/data/db"
	"github.com/yungbote/dcengine/internal/platform/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error

	dbSeq atomic.Int64
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

// DB returns a migrated and seeded in-memory database private to the calling test.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	name := fmt.Sprintf("file:dcengine_%d_%s?mode=memory&cache=shared&_busy_timeout=5000", dbSeq.Add(1), sanitize(tb.Name()))
	gdb, err := gorm.Open(sqlite.Open(name), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		tb.Fatalf("sql db handle: %v", err)
	}
	// One connection keeps the in-memory database alive and serializes writers.
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrateAll(gdb); err != nil {
		tb.Fatalf("failed to migrate test db: %v", err)
	}
	if err := db.SeedAccess(gdb); err != nil {
		tb.Fatalf("failed to seed test db: %v", err)
	}
	return gdb
}

// PostgresDB returns a migrated and seeded database in a fresh schema on the
// server named by TEST_POSTGRES_DSN. The test is skipped when it is unset.
func PostgresDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		tb.Skip("TEST_POSTGRES_DSN not set")
	}
	schema := fmt.Sprintf("dce_test_%d_%s", dbSeq.Add(1), strings.ToLower(sanitize(tb.Name())))
	if len(schema) > 60 {
		schema = schema[:60]
	}

	admin, err := db.Open(db.Options{Driver: "postgres", DSN: dsn, MaxOpenConns: 1, LogLevel: gormLogger.Silent}, nil)
	if err != nil {
		tb.Fatalf("open postgres: %v", err)
	}
	if err := admin.Exec(fmt.Sprintf(`CREATE SCHEMA "%s"`, schema)).Error; err != nil {
		tb.Fatalf("create schema: %v", err)
	}
	gdb, err := db.Open(db.Options{Driver: "postgres", DSN: withSearchPath(dsn, schema), MaxOpenConns: 4, LogLevel: gormLogger.Silent}, nil)
	if err != nil {
		tb.Fatalf("open postgres schema: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = admin.Exec(fmt.Sprintf(`DROP SCHEMA "%s" CASCADE`, schema)).Error
		if sqlDB, err := admin.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := db.AutoMigrateAll(gdb); err != nil {
		tb.Fatalf("failed to migrate postgres: %v", err)
	}
	if err := db.SeedAccess(gdb); err != nil {
		tb.Fatalf("failed to seed postgres: %v", err)
	}
	return gdb
}

func withSearchPath(dsn, schema string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err == nil {
			q := u.Query()
			q.Set("search_path", schema)
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return dsn + " search_path=" + schema
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
