// Package allocation moves players between the two queues and the eight courts.
package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtqueue/internal/courts"
	"github.com/codr1/courtqueue/internal/models"
	"github.com/codr1/courtqueue/internal/projector"
	"github.com/codr1/courtqueue/internal/registry"
)

// Change describes a completed state transition.
type Change struct {
	Reason  string
	Players []string
	Courts  []models.CourtID
}

// Listener is told about every committed change and about fills the engine
// wants to run once the change has settled.
type Listener interface {
	StateChanged(ctx context.Context, change Change)
	RequestFill(reason string)
}

type nopListener struct{}

func (nopListener) StateChanged(context.Context, Change) {}
func (nopListener) RequestFill(string)                   {}

// Engine applies allocation rules to a registry and a court table. It is not
// safe for concurrent use; every call runs to completion before the next.
type Engine struct {
	players  *registry.Registry
	courts   *courts.Table
	listener Listener
	view     projector.Projection
}

func NewEngine(players *registry.Registry, table *courts.Table, listener Listener) (*Engine, error) {
	if players == nil || table == nil {
		return nil, errors.New("allocation engine requires a registry and a court table")
	}
	if listener == nil {
		listener = nopListener{}
	}
	e := &Engine{players: players, courts: table, listener: listener}
	e.Refresh()
	return e, nil
}

// Refresh rebuilds the projection from the registry.
func (e *Engine) Refresh() projector.Projection {
	e.view = projector.Project(e.players.All())
	return e.view
}

// Projection returns the current projection.
func (e *Engine) Projection() projector.Projection {
	return e.view
}

func (e *Engine) logger(ctx context.Context) *zerolog.Logger {
	logger := log.Ctx(ctx).With().Str("component", "allocation_engine").Logger()
	return &logger
}

// MoveToCourt places a queued or courted player onto court.
func (e *Engine) MoveToCourt(ctx context.Context, playerID string, court models.CourtID) error {
	if !court.Valid() {
		return &models.ValidationError{Kind: models.ErrInvalidCourt, Detail: fmt.Sprintf("unknown court %q", court)}
	}
	player, err := e.activePlayer(playerID)
	if err != nil {
		return err
	}

	typ := e.courts.Type(court)
	if typ == models.CourtTypeTraining {
		return &models.ValidationError{Kind: models.ErrCourtInTraining, Detail: fmt.Sprintf("%s is in training mode", court)}
	}
	if tier, _ := typ.Tier(); player.Qualification != tier {
		return &models.ValidationError{
			Kind:   models.ErrQualificationMismatch,
			Detail: fmt.Sprintf("%s is %s, %s is %s", player.Name, player.Qualification, court, typ),
		}
	}
	if player.Status == models.Status(court) {
		return nil
	}
	if occupied := e.view.Occupancy(court); occupied >= models.CourtCapacity {
		return &models.ValidationError{Kind: models.ErrCourtFull, Detail: fmt.Sprintf("%s already has %d players", court, occupied)}
	}

	status := models.Status(court)
	if _, err := e.players.Update(player.ID, models.PlayerFields{Status: &status}); err != nil {
		return err
	}
	e.Refresh()

	e.logger(ctx).Debug().
		Str("player_id", player.ID).
		Str("from", string(player.Status)).
		Str("court", string(court)).
		Str("decision", "manual_placement").
		Msg("Moved player to court")
	e.listener.StateChanged(ctx, Change{Reason: "move_to_court", Players: []string{player.ID}, Courts: []models.CourtID{court}})
	return nil
}

// MoveToQueue sends a player to the back of their qualification queue.
func (e *Engine) MoveToQueue(ctx context.Context, playerID string) error {
	player, err := e.activePlayer(playerID)
	if err != nil {
		return err
	}
	if _, err := e.players.Enqueue(player.ID); err != nil {
		return err
	}
	e.Refresh()

	e.logger(ctx).Debug().
		Str("player_id", player.ID).
		Str("from", string(player.Status)).
		Str("decision", "queued").
		Msg("Moved player to queue")
	e.listener.StateChanged(ctx, Change{Reason: "move_to_queue", Players: []string{player.ID}})
	return nil
}

// MoveToSpecificQueue sends a player to the back of tier's queue and
// re-declares their qualification as tier.
func (e *Engine) MoveToSpecificQueue(ctx context.Context, playerID string, tier models.Qualification) error {
	if !tier.Valid() {
		return &models.ValidationError{Kind: models.ErrInvalidQualification, Detail: fmt.Sprintf("unknown queue %q", tier)}
	}
	player, err := e.activePlayer(playerID)
	if err != nil {
		return err
	}

	status := models.QueueStatus(tier)
	order := e.players.Stamp()
	if _, err := e.players.Update(player.ID, models.PlayerFields{
		Qualification: &tier,
		Status:        &status,
		Order:         &order,
	}); err != nil {
		return err
	}
	e.Refresh()

	e.logger(ctx).Debug().
		Str("player_id", player.ID).
		Str("from", string(player.Status)).
		Str("qualification", string(tier)).
		Str("decision", "queued_with_tier").
		Msg("Moved player to specific queue")
	e.listener.StateChanged(ctx, Change{Reason: "move_to_specific_queue", Players: []string{player.ID}})
	return nil
}

// Reorder rewrites queue order so ids come first, in the given order, followed
// by the omitted members of the queue in their previous relative order. Ids
// that are unknown or not waiting in tier's queue are ignored.
func (e *Engine) Reorder(ctx context.Context, tier models.Qualification, ids []string) error {
	if !tier.Valid() {
		return &models.ValidationError{Kind: models.ErrInvalidQualification, Detail: fmt.Sprintf("unknown queue %q", tier)}
	}

	queue := e.view.Queue(tier)
	waiting := make(map[string]bool, len(queue))
	for _, id := range queue {
		waiting[id] = true
	}

	placed := make(map[string]bool, len(ids))
	sequence := make([]string, 0, len(queue))
	for _, id := range ids {
		if waiting[id] && !placed[id] {
			placed[id] = true
			sequence = append(sequence, id)
		}
	}
	omitted := 0
	for _, id := range queue {
		if !placed[id] {
			sequence = append(sequence, id)
			omitted++
		}
	}
	if len(sequence) == 0 {
		return nil
	}

	for _, id := range sequence {
		order := e.players.Stamp()
		if _, err := e.players.Update(id, models.PlayerFields{Order: &order}); err != nil {
			return err
		}
	}
	e.Refresh()

	e.logger(ctx).Debug().
		Str("queue", string(tier)).
		Int("reordered", len(sequence)-omitted).
		Int("omitted", omitted).
		Str("decision", "reordered").
		Msg("Reordered queue")
	e.listener.StateChanged(ctx, Change{Reason: "reorder", Players: sequence})
	return nil
}

// Rotate ends the game on a game court: its players go back to their queues
// and the warm-up group takes the court. One fill is requested afterwards.
func (e *Engine) Rotate(ctx context.Context, court models.CourtID) error {
	if !court.IsGame() {
		return &models.ValidationError{Kind: models.ErrInvalidRotation, Detail: fmt.Sprintf("cannot rotate %q", court)}
	}
	warmup := court.Pair()
	leaving := append([]string(nil), e.view.CourtAssignments[court]...)
	arriving := append([]string(nil), e.view.CourtAssignments[warmup]...)

	for _, id := range leaving {
		if _, err := e.players.Enqueue(id); err != nil {
			return err
		}
	}
	status := models.Status(court)
	for _, id := range arriving {
		if _, err := e.players.Update(id, models.PlayerFields{Status: &status}); err != nil {
			return err
		}
	}
	e.Refresh()
	evicted := e.enforceCapacity(ctx)

	e.logger(ctx).Info().
		Str("court", string(court)).
		Int("to_queue", len(leaving)).
		Int("from_warmup", len(arriving)).
		Int("evicted", len(evicted)).
		Str("decision", "rotated").
		Msg("Rotated court")

	moved := append(append(leaving, arriving...), evicted...)
	if len(moved) > 0 {
		e.listener.StateChanged(ctx, Change{Reason: "rotate", Players: moved, Courts: []models.CourtID{court, warmup}})
	}
	e.listener.RequestFill("rotation")
	return nil
}

// SetCourtType changes a game court and its partner. Switching to training
// empties both courts into the players' own queues; leaving training asks
// for a fill once the change has settled.
func (e *Engine) SetCourtType(ctx context.Context, court models.CourtID, typ models.CourtType) error {
	previous, err := e.courts.SetType(court, typ)
	if err != nil {
		return err
	}
	if previous == typ {
		return nil
	}

	var evicted []string
	if typ == models.CourtTypeTraining {
		for _, c := range []models.CourtID{court, court.Pair()} {
			for _, id := range e.view.CourtAssignments[c] {
				if _, err := e.players.Enqueue(id); err != nil {
					return err
				}
				evicted = append(evicted, id)
			}
		}
		e.Refresh()
	}

	e.logger(ctx).Info().
		Str("court", string(court)).
		Str("previous_type", string(previous)).
		Str("type", string(typ)).
		Int("evicted", len(evicted)).
		Str("decision", "court_type_changed").
		Msg("Changed court type")
	e.listener.StateChanged(ctx, Change{
		Reason:  "set_court_type",
		Players: evicted,
		Courts:  []models.CourtID{court, court.Pair()},
	})
	if previous == models.CourtTypeTraining {
		e.listener.RequestFill("training_ended")
	}
	return nil
}

// EnforceCapacity evicts anyone beyond a court's capacity, and anyone on a
// training court, back to their queues. It reports whether anything moved.
func (e *Engine) EnforceCapacity(ctx context.Context) bool {
	evicted := e.enforceCapacity(ctx)
	if len(evicted) == 0 {
		return false
	}
	e.listener.StateChanged(ctx, Change{Reason: "overflow_guard", Players: evicted})
	return true
}

func (e *Engine) enforceCapacity(ctx context.Context) []string {
	var evicted []string
	for _, court := range models.AllCourts {
		occupants := e.view.CourtAssignments[court]
		keep := models.CourtCapacity
		decision := "overflow_evicted"
		if e.courts.Type(court) == models.CourtTypeTraining {
			keep = 0
			decision = "training_evicted"
		}
		if len(occupants) <= keep {
			continue
		}
		for _, id := range occupants[keep:] {
			if _, err := e.players.Enqueue(id); err != nil {
				continue
			}
			evicted = append(evicted, id)
		}
		e.logger(ctx).Warn().
			Str("court", string(court)).
			Int("occupants", len(occupants)).
			Int("evicted", len(occupants)-keep).
			Str("decision", decision).
			Msg("Court over capacity")
	}
	if len(evicted) > 0 {
		e.Refresh()
	}
	return evicted
}

func (e *Engine) activePlayer(id string) (models.Player, error) {
	player, ok := e.players.Get(id)
	if !ok || !player.IsActive {
		return models.Player{}, &models.NotFoundError{Entity: "player", ID: id}
	}
	return player, nil
}
