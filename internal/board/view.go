package board

import (
	"github.com/codr1/courtqueue/internal/models"
)

// View is the rendered state of the board.
type View struct {
	AdvancedQueue     []string                            `json:"advancedQueue"`
	IntermediateQueue []string                            `json:"intermediateQueue"`
	CourtAssignments  map[models.CourtID][]string         `json:"courtAssignments"`
	CourtTypes        map[models.CourtID]models.CourtType `json:"courtTypes"`
	Players           map[string]models.Player            `json:"players"`
	Dragging          bool                                `json:"dragging"`
	// PendingWrites counts local changes the store has not confirmed yet.
	PendingWrites int `json:"pendingWrites"`
}

// Queue returns the queue for tier.
func (v View) Queue(tier models.Qualification) []string {
	if tier == models.QualificationAdvanced {
		return v.AdvancedQueue
	}
	return v.IntermediateQueue
}

// AddResult is returned by AddPlayer. Pending is set when the store could not
// be reached and the player exists only locally for now.
type AddResult struct {
	Player  models.Player `json:"player"`
	Pending bool          `json:"pending"`
	Warning string        `json:"warning,omitempty"`
}
