package testfixtures

import (
	"context"
	"testing"

	"github.com/example/scope-migrator/internal/persistence/sqlite"
)

// NewSQLiteSession opens an in-memory database and closes it when the test
// ends.
func NewSQLiteSession(tb testing.TB) *sqlite.Session {
	tb.Helper()

	session, err := sqlite.Open(context.Background(), sqlite.InMemoryConfig())
	if err != nil {
		tb.Fatalf("failed to open in-memory database: %v", err)
	}
	tb.Cleanup(func() {
		_ = session.Close()
	})
	return session
}

// ColumnCount returns the number of columns of table in the main database.
func ColumnCount(tb testing.TB, session *sqlite.Session, table string) int {
	tb.Helper()

	var n int
	err := session.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM pragma_table_info(?)`, table).Scan(&n)
	if err != nil {
		tb.Fatalf("failed to inspect table %s: %v", table, err)
	}
	return n
}
