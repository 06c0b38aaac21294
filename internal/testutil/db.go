package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/codr1/courtqueue/internal/db"
	"github.com/codr1/courtqueue/internal/models"
)

// StoredPlayer is a player row as another board client would have left it.
// An empty Status means the player's queue.
type StoredPlayer struct {
	ID            string
	Name          string
	Qualification models.Qualification
	Status        models.Status
	Order         int64
	Inactive      bool
}

// Board is the store content a test starts from.
type Board struct {
	Players    []StoredPlayer
	CourtTypes map[models.CourtID]models.CourtType
}

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()
	return NewBoardDB(t, Board{})
}

// NewBoardDB creates a migrated temporary database holding board.
func NewBoardDB(t *testing.T, board Board) *db.DB {
	t.Helper()

	database, err := db.New(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	err = database.RunInTx(context.Background(), func(tx *sqlx.Tx) error {
		for _, p := range board.Players {
			status := p.Status
			if status == "" {
				status = models.QueueStatus(p.Qualification)
			}
			if _, err := tx.Exec(`
				INSERT INTO players (id, name, name_key, qualification, status, sort_order, is_active)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				p.ID, p.Name, models.NameKey(p.Name), string(p.Qualification), string(status), p.Order, !p.Inactive,
			); err != nil {
				return err
			}
		}
		for court, typ := range board.CourtTypes {
			if _, err := tx.Exec(`INSERT INTO court_types (court_id, type) VALUES (?, ?)`, string(court), string(typ)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed test db: %v", err)
	}

	return database
}
