// Package sqlitetest opens throwaway in-memory SQLite databases for tests that
// need real row semantics (joins, DISTINCT, constraints).
package sqlitetest

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

var counter atomic.Int64

// Open returns a fresh in-memory database with statements applied in order.
// The pool is pinned to one connection so every query sees the same memory DB.
func Open(t *testing.T, statements ...string) *sql.DB {
	t.Helper()

	name := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared&_foreign_keys=on", counter.Add(1))
	db, err := sql.Open("sqlite3", name)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to apply %q: %v", stmt, err)
		}
	}
	return db
}

// IDs runs query and returns the first column of every row as int64.
func IDs(t *testing.T, db *sql.DB, query string, args ...interface{}) []int64 {
	t.Helper()

	rows, err := db.Query(query, args...)
	if err != nil {
		t.Fatalf("query failed: %v\n%s", err, query)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows failed: %v", err)
	}
	return ids
}
