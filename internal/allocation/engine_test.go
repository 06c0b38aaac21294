package allocation

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/codr1/courtqueue/internal/courts"
	"github.com/codr1/courtqueue/internal/models"
	"github.com/codr1/courtqueue/internal/registry"
)

type recordingListener struct {
	changes []Change
	fills   []string
}

func (l *recordingListener) StateChanged(_ context.Context, change Change) {
	l.changes = append(l.changes, change)
}

func (l *recordingListener) RequestFill(reason string) {
	l.fills = append(l.fills, reason)
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	clock    clockwork.FakeClock
	players  *registry.Registry
	courts   *courts.Table
	listener *recordingListener
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	players := registry.New(clock)
	table := courts.NewTable()
	listener := &recordingListener{}
	engine, err := NewEngine(players, table, listener)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &fixture{
		t:        t,
		ctx:      context.Background(),
		clock:    clock,
		players:  players,
		courts:   table,
		listener: listener,
		engine:   engine,
	}
}

// add inserts a player and parks them on status without going through the engine.
func (f *fixture) add(id string, q models.Qualification, status models.Status) {
	f.t.Helper()
	f.clock.Advance(time.Millisecond)
	if _, err := f.players.Insert(id, id, q); err != nil {
		f.t.Fatalf("Insert %s: %v", id, err)
	}
	if status != "" {
		if _, err := f.players.Update(id, models.PlayerFields{Status: &status}); err != nil {
			f.t.Fatalf("Update %s: %v", id, err)
		}
	}
	f.engine.Refresh()
}

func (f *fixture) setType(court models.CourtID, typ models.CourtType) {
	f.t.Helper()
	if _, err := f.courts.SetType(court, typ); err != nil {
		f.t.Fatalf("SetType: %v", err)
	}
}

func (f *fixture) status(id string) models.Status {
	f.t.Helper()
	p, ok := f.players.Get(id)
	if !ok {
		f.t.Fatalf("player %s missing", id)
	}
	return p.Status
}

func (f *fixture) court(c models.CourtID) []string {
	return f.engine.Projection().CourtAssignments[c]
}

func (f *fixture) assertCapacity() {
	f.t.Helper()
	for _, c := range models.AllCourts {
		if n := len(f.court(c)); n > models.CourtCapacity {
			f.t.Fatalf("court %s holds %d players", c, n)
		}
	}
}

func TestMoveToCourt(t *testing.T) {
	f := newFixture(t)
	f.setType(models.G2, models.CourtTypeAdvanced)
	f.add("adv", models.QualificationAdvanced, "")

	if err := f.engine.MoveToCourt(f.ctx, "adv", models.G2); err != nil {
		t.Fatalf("MoveToCourt: %v", err)
	}
	if f.status("adv") != "G2" {
		t.Fatalf("status = %q, want G2", f.status("adv"))
	}
	if got := f.court(models.G2); !slices.Equal(got, []string{"adv"}) {
		t.Fatalf("G2 = %v", got)
	}
	if len(f.listener.changes) != 1 {
		t.Fatalf("changes = %d, want 1", len(f.listener.changes))
	}
}

func TestMoveToCourtRejections(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		player   string
		court    models.CourtID
		wantKind error
		category error
	}{
		{
			name: "qualification_mismatch",
			setup: func(f *fixture) {
				f.setType(models.G2, models.CourtTypeAdvanced)
				f.add("p", models.QualificationIntermediate, "")
			},
			player:   "p",
			court:    models.G2,
			wantKind: models.ErrQualificationMismatch,
			category: models.ErrValidation,
		},
		{
			name: "training",
			setup: func(f *fixture) {
				f.setType(models.G1, models.CourtTypeTraining)
				f.add("p", models.QualificationIntermediate, "")
			},
			player:   "p",
			court:    models.W1,
			wantKind: models.ErrCourtInTraining,
			category: models.ErrValidation,
		},
		{
			name: "full",
			setup: func(f *fixture) {
				for _, id := range []string{"a", "b", "c", "d"} {
					f.add(id, models.QualificationIntermediate, "G3")
				}
				f.add("p", models.QualificationIntermediate, "")
			},
			player:   "p",
			court:    models.G3,
			wantKind: models.ErrCourtFull,
			category: models.ErrValidation,
		},
		{
			name:     "unknown_court",
			setup:    func(f *fixture) { f.add("p", models.QualificationIntermediate, "") },
			player:   "p",
			court:    "G8",
			wantKind: models.ErrInvalidCourt,
			category: models.ErrValidation,
		},
		{
			name:     "unknown_player",
			setup:    func(f *fixture) {},
			player:   "ghost",
			court:    models.G1,
			category: models.ErrNotFound,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			test.setup(f)
			before, _ := f.players.Get(test.player)

			err := f.engine.MoveToCourt(f.ctx, test.player, test.court)
			if !errors.Is(err, test.category) {
				t.Fatalf("error = %v, want category %v", err, test.category)
			}
			if test.wantKind != nil && !errors.Is(err, test.wantKind) {
				t.Fatalf("error = %v, want kind %v", err, test.wantKind)
			}
			if after, ok := f.players.Get(test.player); ok && after.Status != before.Status {
				t.Fatalf("status changed from %q to %q", before.Status, after.Status)
			}
			if len(f.listener.changes) != 0 {
				t.Fatalf("rejected move reported a change")
			}
		})
	}
}

func TestMoveToQueueRefreshesOrder(t *testing.T) {
	f := newFixture(t)
	f.add("p", models.QualificationIntermediate, "G1")
	before, _ := f.players.Get("p")

	f.clock.Advance(time.Second)
	if err := f.engine.MoveToQueue(f.ctx, "p"); err != nil {
		t.Fatalf("MoveToQueue: %v", err)
	}
	after, _ := f.players.Get("p")
	if after.Status != models.StatusQueueIntermediate {
		t.Fatalf("status = %q", after.Status)
	}
	if after.Order <= before.Order {
		t.Fatalf("order did not increase: %d -> %d", before.Order, after.Order)
	}
}

func TestMoveToSpecificQueueOverwritesQualification(t *testing.T) {
	f := newFixture(t)
	f.add("p", models.QualificationIntermediate, "G1")
	f.add("q", models.QualificationAdvanced, "")

	if err := f.engine.MoveToSpecificQueue(f.ctx, "p", models.QualificationAdvanced); err != nil {
		t.Fatalf("MoveToSpecificQueue: %v", err)
	}
	p, _ := f.players.Get("p")
	if p.Qualification != models.QualificationAdvanced || p.Status != models.StatusQueueAdvanced {
		t.Fatalf("player = %+v", p)
	}
	if got := f.engine.Projection().AdvancedQueue; !slices.Equal(got, []string{"q", "p"}) {
		t.Fatalf("advanced queue = %v, want [q p]", got)
	}

	if err := f.engine.MoveToSpecificQueue(f.ctx, "p", "pro"); !errors.Is(err, models.ErrInvalidQualification) {
		t.Fatalf("expected invalid qualification, got %v", err)
	}
}

func TestReorder(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"p1", "p2", "p3"} {
		f.add(id, models.QualificationAdvanced, "")
	}

	if err := f.engine.Reorder(f.ctx, models.QualificationAdvanced, []string{"p3", "p1", "p2"}); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if got := f.engine.Projection().AdvancedQueue; !slices.Equal(got, []string{"p3", "p1", "p2"}) {
		t.Fatalf("queue = %v, want [p3 p1 p2]", got)
	}
}

func TestReorderPartialAppendsOmitted(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		f.add(id, models.QualificationIntermediate, "")
	}
	f.add("court", models.QualificationIntermediate, "G1")

	err := f.engine.Reorder(f.ctx, models.QualificationIntermediate, []string{"d", "b", "ghost", "court", "d"})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if got := f.engine.Projection().IntermediateQueue; !slices.Equal(got, []string{"d", "b", "a", "c"}) {
		t.Fatalf("queue = %v, want [d b a c]", got)
	}
	if f.status("court") != "G1" {
		t.Fatalf("court player moved by reorder")
	}
}

func TestRotate(t *testing.T) {
	f := newFixture(t)
	f.setType(models.G1, models.CourtTypeAdvanced)
	f.add("x", models.QualificationAdvanced, "G1")
	f.add("y", models.QualificationAdvanced, "G1")
	f.add("z", models.QualificationAdvanced, "W1")

	if err := f.engine.Rotate(f.ctx, models.G1); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if got := f.court(models.G1); !slices.Equal(got, []string{"z"}) {
		t.Fatalf("G1 = %v, want [z]", got)
	}
	if got := f.engine.Projection().AdvancedQueue; !slices.Equal(got, []string{"x", "y"}) {
		t.Fatalf("advanced queue = %v, want [x y]", got)
	}
	if !slices.Equal(f.listener.fills, []string{"rotation"}) {
		t.Fatalf("fills = %v, want one rotation fill", f.listener.fills)
	}
	if last := f.listener.changes[len(f.listener.changes)-1]; last.Reason != "rotate" || len(last.Players) != 3 {
		t.Fatalf("last change = %+v, want rotate of x, y and z", last)
	}

	// The subsequent fill brings x and y back onto G1 and leaves W1 empty.
	f.engine.AutoFill(f.ctx)
	if got := f.court(models.G1); !slices.Equal(got, []string{"x", "y", "z"}) {
		t.Fatalf("G1 after fill = %v", got)
	}
	if got := f.court(models.W1); len(got) != 0 {
		t.Fatalf("W1 after fill = %v, want empty", got)
	}
}

func TestRotateRejectsWarmupCourt(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Rotate(f.ctx, models.W1); !errors.Is(err, models.ErrInvalidRotation) {
		t.Fatalf("expected invalid rotation, got %v", err)
	}
	if len(f.listener.fills) != 0 {
		t.Fatal("rejected rotation requested a fill")
	}
}

func TestSetCourtTypeTrainingEvictsBothCourts(t *testing.T) {
	f := newFixture(t)
	f.setType(models.G1, models.CourtTypeAdvanced)
	f.add("a1", models.QualificationAdvanced, "G1")
	f.add("a2", models.QualificationAdvanced, "G1")
	f.add("i1", models.QualificationIntermediate, "G1")
	f.add("w1", models.QualificationAdvanced, "W1")
	f.add("w2", models.QualificationIntermediate, "W1")

	if err := f.engine.SetCourtType(f.ctx, models.G1, models.CourtTypeTraining); err != nil {
		t.Fatalf("SetCourtType: %v", err)
	}
	if f.courts.Type(models.W1) != models.CourtTypeTraining {
		t.Fatalf("W1 = %q, want training", f.courts.Type(models.W1))
	}
	if len(f.court(models.G1))+len(f.court(models.W1)) != 0 {
		t.Fatalf("courts not emptied: G1=%v W1=%v", f.court(models.G1), f.court(models.W1))
	}
	for id, want := range map[string]models.Status{
		"a1": models.StatusQueueAdvanced,
		"a2": models.StatusQueueAdvanced,
		"i1": models.StatusQueueIntermediate,
		"w1": models.StatusQueueAdvanced,
		"w2": models.StatusQueueIntermediate,
	} {
		if got := f.status(id); got != want {
			t.Fatalf("%s status = %q, want %q", id, got, want)
		}
	}
	if len(f.listener.fills) != 0 {
		t.Fatalf("entering training requested a fill: %v", f.listener.fills)
	}
}

func TestSetCourtTypeLeavingTrainingRequestsFill(t *testing.T) {
	f := newFixture(t)
	f.setType(models.G2, models.CourtTypeTraining)
	f.add("a", models.QualificationAdvanced, "")

	if err := f.engine.SetCourtType(f.ctx, models.G2, models.CourtTypeAdvanced); err != nil {
		t.Fatalf("SetCourtType: %v", err)
	}
	if !slices.Equal(f.listener.fills, []string{"training_ended"}) {
		t.Fatalf("fills = %v", f.listener.fills)
	}
	if f.status("a") != models.StatusQueueAdvanced {
		t.Fatal("fill must not run synchronously with the type change")
	}
}

func TestSetCourtTypeWarmupIsRejected(t *testing.T) {
	f := newFixture(t)
	err := f.engine.SetCourtType(f.ctx, models.W2, models.CourtTypeAdvanced)
	var verr *models.ValidationError
	if !errors.As(err, &verr) || verr.PairedCourt != models.G2 {
		t.Fatalf("expected paired court hint, got %v", err)
	}
	if len(f.listener.changes) != 0 {
		t.Fatal("rejected type change reported a change")
	}
}

func TestEnforceCapacity(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		f.add(id, models.QualificationIntermediate, "G1")
	}

	if !f.engine.EnforceCapacity(f.ctx) {
		t.Fatal("expected overflow eviction")
	}
	if got := f.court(models.G1); !slices.Equal(got, []string{"a", "b", "c", "d"}) {
		t.Fatalf("G1 = %v, want first four", got)
	}
	if got := f.engine.Projection().IntermediateQueue; !slices.Equal(got, []string{"e", "f"}) {
		t.Fatalf("queue = %v, want [e f]", got)
	}
	if f.engine.EnforceCapacity(f.ctx) {
		t.Fatal("second pass should be a no-op")
	}
}
