// Package dbtest opens throwaway in-memory databases for store tests
package dbtest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/zllovesuki/adbill/db"
)

// New returns a gorm handle on a private in-memory SQLite database that is closed with the test
func New(t testing.TB) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), db.Config(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("Cannot open sqlite: %v", err)
	}
	pool, err := gdb.DB()
	if err != nil {
		t.Fatalf("Cannot get the connection pool: %v", err)
	}
	// every connection to :memory: is a separate database
	pool.SetMaxOpenConns(1)
	t.Cleanup(func() {
		pool.Close()
	})
	return gdb
}
