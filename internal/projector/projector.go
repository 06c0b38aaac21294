// Package projector derives queues and court assignments from a registry snapshot.
package projector

import (
	"sort"

	"github.com/codr1/courtqueue/internal/models"
)

// Projection is the derived view of a registry snapshot.
type Projection struct {
	AdvancedQueue     []string                    `json:"advancedQueue"`
	IntermediateQueue []string                    `json:"intermediateQueue"`
	CourtAssignments  map[models.CourtID][]string `json:"courtAssignments"`
}

// Project builds queues (ascending order, ties by registry position) and
// court assignments (registry order). Inactive players are skipped.
func Project(players []models.Player) Projection {
	view := Projection{
		AdvancedQueue:     []string{},
		IntermediateQueue: []string{},
		CourtAssignments:  make(map[models.CourtID][]string, len(models.AllCourts)),
	}
	for _, court := range models.AllCourts {
		view.CourtAssignments[court] = []string{}
	}

	var advanced, intermediate []models.Player
	for _, p := range players {
		if !p.IsActive {
			continue
		}
		switch p.Status {
		case models.StatusQueueAdvanced:
			advanced = append(advanced, p)
		case models.StatusQueueIntermediate:
			intermediate = append(intermediate, p)
		default:
			if court, ok := p.Status.Court(); ok {
				view.CourtAssignments[court] = append(view.CourtAssignments[court], p.ID)
			}
		}
	}

	view.AdvancedQueue = orderedIDs(advanced)
	view.IntermediateQueue = orderedIDs(intermediate)
	return view
}

// Queue returns the queue for a tier.
func (p Projection) Queue(tier models.Qualification) []string {
	if tier == models.QualificationAdvanced {
		return p.AdvancedQueue
	}
	return p.IntermediateQueue
}

// Occupancy returns how many players are on court.
func (p Projection) Occupancy(court models.CourtID) int {
	return len(p.CourtAssignments[court])
}

func orderedIDs(players []models.Player) []string {
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Order < players[j].Order
	})
	ids := make([]string, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}
	return ids
}
