package storage

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// newMockDB wires a bun.DB on top of a go-sqlmock connection, so repository
// tests exercise the exact SQL bun generates without needing a live Postgres.
func newMockDB(t *testing.T) (*bun.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db := bun.NewDB(sqlDB, pgdialect.New())
	return db, mock
}

// sqlmockResult builds a driver.Result reporting the given affected row count.
func sqlmockResult(rowsAffected int64) sqlmock.Result {
	return sqlmock.NewResult(0, rowsAffected)
}
