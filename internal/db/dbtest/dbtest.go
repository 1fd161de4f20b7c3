// Package dbtest opens throwaway databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/d9705996/commune/internal/config"
	"github.com/d9705996/commune/internal/db"
	"gorm.io/gorm"
)

// Open returns a migrated SQLite database in a per-test temporary directory.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	gormDB, _, err := db.New(context.Background(), &config.DBConfig{
		Driver: "sqlite",
		File:   filepath.Join(t.TempDir(), "commune_test.db"),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gormDB
}
