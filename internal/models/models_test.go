package models

import (
	"errors"
	"testing"
)

func TestCourtPair(t *testing.T) {
	tests := []struct {
		name  string
		court CourtID
		want  CourtID
	}{
		{name: "game_to_warmup", court: G1, want: W1},
		{name: "warmup_to_game", court: W3, want: G3},
		{name: "last_pair", court: G4, want: W4},
		{name: "unknown", court: "G9", want: ""},
		{name: "empty", court: "", want: ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.court.Pair(); got != test.want {
				t.Fatalf("%q.Pair() = %q, want %q", test.court, got, test.want)
			}
		})
	}
}

func TestStatusValid(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{status: StatusQueueAdvanced, want: true},
		{status: StatusQueueIntermediate, want: true},
		{status: "G2", want: true},
		{status: "W4", want: true},
		{status: "queue-training", want: false},
		{status: "g1", want: false},
		{status: "", want: false},
	}

	for _, test := range tests {
		if got := test.status.Valid(); got != test.want {
			t.Errorf("Status(%q).Valid() = %t, want %t", test.status, got, test.want)
		}
	}
}

func TestParseCourtID(t *testing.T) {
	court, err := ParseCourtID(" w2 ")
	if err != nil {
		t.Fatalf("ParseCourtID: %v", err)
	}
	if court != W2 {
		t.Fatalf("court = %q, want W2", court)
	}

	_, err = ParseCourtID("X1")
	if !errors.Is(err, ErrInvalidCourt) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected invalid court validation error, got %v", err)
	}
}

func TestCourtTypeTier(t *testing.T) {
	if tier, ok := CourtTypeAdvanced.Tier(); !ok || tier != QualificationAdvanced {
		t.Fatalf("advanced tier = %q, %t", tier, ok)
	}
	if _, ok := CourtTypeTraining.Tier(); ok {
		t.Fatal("training court should not accept a tier")
	}
}

func TestErrorCategories(t *testing.T) {
	var err error = &ValidationError{Kind: ErrCourtFull, Detail: "G1 has 4 players"}
	if !errors.Is(err, ErrValidation) || !errors.Is(err, ErrCourtFull) {
		t.Fatalf("validation error does not unwrap to its kind: %v", err)
	}
	if errors.Is(err, ErrCourtInTraining) {
		t.Fatal("validation error matched the wrong kind")
	}

	cause := errors.New("connection refused")
	err = &StoreUnavailableError{Op: "create player", Err: cause}
	if !errors.Is(err, ErrStoreUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("store error does not unwrap: %v", err)
	}

	err = &DuplicateNameError{Name: "Ana", Matches: []string{"ana"}}
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("duplicate error does not unwrap: %v", err)
	}

	err = &NotFoundError{Entity: "player", ID: "p1"}
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("not found error does not unwrap: %v", err)
	}
}

func TestPlayerFieldsApply(t *testing.T) {
	player := Player{ID: "p1", Name: "Ana", Qualification: QualificationIntermediate, Status: StatusQueueIntermediate, Order: 10, IsActive: true}
	status := Status(G1)
	name := "  Ana B "
	fields := PlayerFields{Status: &status, Name: &name}
	if err := fields.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	fields.Apply(&player)
	if player.Status != "G1" || player.Name != "Ana B" || player.Order != 10 {
		t.Fatalf("unexpected player after apply: %+v", player)
	}

	bad := Status("court-9")
	if err := (PlayerFields{Status: &bad}).Validate(); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}

func TestNameKey(t *testing.T) {
	if NameKey("  Ana Maria ") != NameKey("ana maria") {
		t.Fatal("name keys should ignore case and surrounding space")
	}
}
