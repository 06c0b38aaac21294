// Package courts keeps the type of each court and the G/W pairing invariant.
package courts

import (
	"fmt"

	"github.com/codr1/courtqueue/internal/models"
)

// Table maps courts to types. Warm-up courts always mirror their game court.
// It is not safe for concurrent use.
type Table struct {
	types map[models.CourtID]models.CourtType
}

func NewTable() *Table {
	return &Table{types: make(map[models.CourtID]models.CourtType, len(models.AllCourts))}
}

// Type returns the court's type, defaulting to intermediate when unset.
func (t *Table) Type(court models.CourtID) models.CourtType {
	if typ, ok := t.types[court]; ok {
		return typ
	}
	return models.DefaultCourtType
}

// SetType sets a game court and its warm-up partner together and returns
// the previous type. Warm-up courts are rejected with the game court to
// change instead.
func (t *Table) SetType(court models.CourtID, typ models.CourtType) (models.CourtType, error) {
	if !court.Valid() {
		return "", &models.ValidationError{Kind: models.ErrInvalidCourt, Detail: fmt.Sprintf("unknown court %q", court)}
	}
	if !court.IsGame() {
		return "", &models.ValidationError{
			Kind:        models.ErrInvalidCourt,
			Detail:      fmt.Sprintf("%s follows %s; change the paired court instead", court, court.Pair()),
			PairedCourt: court.Pair(),
		}
	}
	if !typ.Valid() {
		return "", &models.ValidationError{Kind: models.ErrInvalidCourtType, Detail: fmt.Sprintf("unknown court type %q", typ)}
	}

	previous := t.Type(court)
	t.types[court] = typ
	t.types[court.Pair()] = typ
	return previous, nil
}

// SyncPairs copies every game court's type onto its partner and returns the
// warm-up courts that had drifted.
func (t *Table) SyncPairs() []models.CourtID {
	var drifted []models.CourtID
	for _, game := range models.GameCourts {
		want := t.Type(game)
		warmup := game.Pair()
		if current, ok := t.types[warmup]; !ok || current != want {
			if ok || want != models.DefaultCourtType {
				drifted = append(drifted, warmup)
			}
			t.types[warmup] = want
		}
		t.types[game] = want
	}
	return drifted
}

// All returns the type of every court.
func (t *Table) All() map[models.CourtID]models.CourtType {
	out := make(map[models.CourtID]models.CourtType, len(models.AllCourts))
	for _, court := range models.AllCourts {
		out[court] = t.Type(court)
	}
	return out
}

// Load replaces the table from a stored map. Unknown courts and types are
// ignored and warm-up entries are re-derived from their game courts.
func (t *Table) Load(types map[models.CourtID]models.CourtType) {
	loaded := make(map[models.CourtID]models.CourtType, len(models.AllCourts))
	for court, typ := range types {
		if court.IsGame() && typ.Valid() {
			loaded[court] = typ
		}
	}
	t.types = loaded
	t.SyncPairs()
}
