package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
)

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "board.db", want: "board.db?_fk=1&_busy_timeout=5000"},
		{in: "board.db?cache=shared", want: "board.db?cache=shared&_fk=1&_busy_timeout=5000"},
		{in: "board.db?_fk=0", want: "board.db?_fk=0&_busy_timeout=5000"},
		{in: "board.db?_busy_timeout=10&_fk=1", want: "board.db?_busy_timeout=10&_fk=1"},
	}
	for _, test := range tests {
		if got := sqliteDSN(test.in); got != test.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestNewAppliesMigrations(t *testing.T) {
	database := openTestDB(t)

	var tables []string
	if err := database.Select(&tables, `SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('players', 'court_types') ORDER BY name`); err != nil {
		t.Fatalf("list tables: %v", err)
	}
	if len(tables) != 2 || tables[0] != "court_types" || tables[1] != "players" {
		t.Fatalf("tables = %v", tables)
	}

	// Reopening an up-to-date database is not an error.
	path := filepath.Join(t.TempDir(), "again.db")
	for i := 0; i < 2; i++ {
		again, err := New(path)
		if err != nil {
			t.Fatalf("New pass %d: %v", i, err)
		}
		again.Close()
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := database.RunInTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO court_types (court_id, type) VALUES ('G1', 'advanced')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx error = %v, want boom", err)
	}

	var count int
	if err := database.Get(&count, `SELECT COUNT(*) FROM court_types`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("court_types rows = %d after rollback", count)
	}

	if err := database.RunInTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO court_types (court_id, type) VALUES ('G1', 'advanced')`)
		return err
	}); err != nil {
		t.Fatalf("RunInTx commit: %v", err)
	}
	if err := database.Get(&count, `SELECT COUNT(*) FROM court_types`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("court_types rows = %d after commit", count)
	}
}

func TestCourtTypesRejectsUnknownType(t *testing.T) {
	database := openTestDB(t)
	if _, err := database.Exec(`INSERT INTO court_types (court_id, type) VALUES ('G1', 'expert')`); err == nil {
		t.Fatal("expected CHECK constraint failure")
	}
}
