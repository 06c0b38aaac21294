package allocation

import (
	"context"

	"github.com/codr1/courtqueue/internal/models"
)

// maxFillRounds bounds the balance and fill passes of one AutoFill. Rounds
// only move players forward, from queue to court and from warm-up to game.
const maxFillRounds = 4

// AutoFill rebalances each game/warm-up pair and then pulls queued players
// onto free capacity, repeating both passes until a round moves nobody. A
// second call with no intervening change therefore moves nobody. It reports
// whether anything changed.
func (e *Engine) AutoFill(ctx context.Context) bool {
	logger := e.logger(ctx)

	drifted := e.courts.SyncPairs()
	moved := e.enforceCapacity(ctx)

	rounds := 0
	for rounds < maxFillRounds {
		roundMoved := e.fillRound(ctx)
		if len(roundMoved) == 0 {
			break
		}
		rounds++
		moved = append(moved, roundMoved...)
	}

	if len(moved) == 0 && len(drifted) == 0 {
		logger.Debug().Str("decision", "no_change").Msg("Auto-fill found nothing to do")
		return false
	}

	moved = uniqueIDs(moved)
	logger.Info().
		Int("moved", len(moved)).
		Int("rounds", rounds).
		Int("drifted_courts", len(drifted)).
		Str("decision", "auto_filled").
		Msg("Auto-fill applied")
	e.listener.StateChanged(ctx, Change{Reason: "auto_fill", Players: moved, Courts: drifted})
	return true
}

// fillRound runs one balance pass over every pair followed by one fill pass
// over every court.
func (e *Engine) fillRound(ctx context.Context) []string {
	var moved []string
	for _, game := range models.GameCourts {
		moved = append(moved, e.balancePair(ctx, game)...)
	}

	for _, court := range models.AllCourts {
		typ := e.courts.Type(court)
		tier, ok := typ.Tier()
		if !ok {
			continue
		}
		free := models.CourtCapacity - e.view.Occupancy(court)
		if free <= 0 {
			continue
		}
		filled := e.fillFromQueue(court, tier, free)
		if len(filled) == 0 {
			continue
		}
		moved = append(moved, filled...)
		e.logger(ctx).Debug().
			Str("court", string(court)).
			Str("court_type", string(typ)).
			Int("filled", len(filled)).
			Int("occupancy", e.view.Occupancy(court)).
			Str("decision", "fill").
			Msg("Filled court from queue")
	}
	return moved
}

// balancePair promotes warm-up players onto the game court, or seeds an empty
// pair's game court straight from the queue.
func (e *Engine) balancePair(ctx context.Context, game models.CourtID) []string {
	typ := e.courts.Type(game)
	tier, ok := typ.Tier()
	if !ok {
		return nil
	}
	warmup := game.Pair()
	onGame := e.view.Occupancy(game)
	waiting := e.view.CourtAssignments[warmup]

	var moved []string
	var decision string
	switch {
	case onGame == 0 && len(waiting) == 0:
		moved = e.fillFromQueue(game, tier, models.CourtCapacity)
		decision = "balance_seed"
	case onGame == 0 && len(waiting) >= 2:
		moved = e.promote(game, waiting)
		decision = "balance_collapse"
	case onGame > 0 && onGame < models.CourtCapacity && len(waiting) > 0:
		n := min(models.CourtCapacity-onGame, len(waiting))
		moved = e.promote(game, waiting[:n])
		decision = "balance_top_up"
	}
	if len(moved) == 0 {
		return nil
	}

	e.logger(ctx).Debug().
		Str("court", string(game)).
		Str("warmup_court", string(warmup)).
		Int("moved", len(moved)).
		Str("decision", decision).
		Msg("Balanced court pair")
	return moved
}

func (e *Engine) promote(court models.CourtID, ids []string) []string {
	ids = append([]string(nil), ids...)
	status := models.Status(court)
	moved := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := e.players.Update(id, models.PlayerFields{Status: &status}); err != nil {
			continue
		}
		moved = append(moved, id)
	}
	e.Refresh()
	return moved
}

// fillFromQueue moves up to limit players of the matching qualification from
// the front of tier's queue onto court.
func (e *Engine) fillFromQueue(court models.CourtID, tier models.Qualification, limit int) []string {
	status := models.Status(court)
	var moved []string
	for _, id := range e.view.Queue(tier) {
		if len(moved) >= limit {
			break
		}
		player, ok := e.players.Get(id)
		if !ok || player.Qualification != tier {
			continue
		}
		if _, err := e.players.Update(id, models.PlayerFields{Status: &status}); err != nil {
			continue
		}
		moved = append(moved, id)
	}
	if len(moved) > 0 {
		e.Refresh()
	}
	return moved
}

// uniqueIDs drops repeats, keeping the first occurrence of each id.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
