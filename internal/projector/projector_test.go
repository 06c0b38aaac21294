package projector

import (
	"slices"
	"testing"

	"github.com/codr1/courtqueue/internal/models"
)

func player(id string, q models.Qualification, status models.Status, order int64) models.Player {
	return models.Player{ID: id, Name: id, Qualification: q, Status: status, Order: order, IsActive: true}
}

func TestProjectQueuesSortByOrder(t *testing.T) {
	players := []models.Player{
		player("c", models.QualificationAdvanced, models.StatusQueueAdvanced, 30),
		player("a", models.QualificationAdvanced, models.StatusQueueAdvanced, 10),
		player("i1", models.QualificationIntermediate, models.StatusQueueIntermediate, 5),
		player("b", models.QualificationAdvanced, models.StatusQueueAdvanced, 20),
	}

	view := Project(players)
	if want := []string{"a", "b", "c"}; !slices.Equal(view.AdvancedQueue, want) {
		t.Fatalf("advanced queue = %v, want %v", view.AdvancedQueue, want)
	}
	if want := []string{"i1"}; !slices.Equal(view.IntermediateQueue, want) {
		t.Fatalf("intermediate queue = %v, want %v", view.IntermediateQueue, want)
	}
}

func TestProjectTiesKeepRegistryPosition(t *testing.T) {
	players := []models.Player{
		player("x", models.QualificationIntermediate, models.StatusQueueIntermediate, 7),
		player("y", models.QualificationIntermediate, models.StatusQueueIntermediate, 7),
		player("z", models.QualificationIntermediate, models.StatusQueueIntermediate, 7),
	}

	view := Project(players)
	if want := []string{"x", "y", "z"}; !slices.Equal(view.IntermediateQueue, want) {
		t.Fatalf("queue = %v, want %v", view.IntermediateQueue, want)
	}
}

func TestProjectCourtsUseRegistryOrder(t *testing.T) {
	players := []models.Player{
		player("late", models.QualificationAdvanced, "G1", 99),
		player("early", models.QualificationAdvanced, "G1", 1),
		player("w", models.QualificationAdvanced, "W1", 3),
	}

	view := Project(players)
	if want := []string{"late", "early"}; !slices.Equal(view.CourtAssignments[models.G1], want) {
		t.Fatalf("G1 = %v, want %v", view.CourtAssignments[models.G1], want)
	}
	if view.Occupancy(models.W1) != 1 {
		t.Fatalf("W1 occupancy = %d, want 1", view.Occupancy(models.W1))
	}
	for _, court := range models.AllCourts {
		if view.CourtAssignments[court] == nil {
			t.Fatalf("court %s missing from assignments", court)
		}
	}
}

func TestProjectSkipsInactivePlayers(t *testing.T) {
	inactive := player("gone", models.QualificationAdvanced, models.StatusQueueAdvanced, 1)
	inactive.IsActive = false
	benched := player("bench", models.QualificationAdvanced, "G2", 1)
	benched.IsActive = false

	view := Project([]models.Player{inactive, benched, player("here", models.QualificationAdvanced, models.StatusQueueAdvanced, 2)})
	if want := []string{"here"}; !slices.Equal(view.AdvancedQueue, want) {
		t.Fatalf("queue = %v, want %v", view.AdvancedQueue, want)
	}
	if view.Occupancy(models.G2) != 0 {
		t.Fatalf("inactive player counted on G2")
	}
}

func TestProjectDoesNotReorderInput(t *testing.T) {
	players := []models.Player{
		player("b", models.QualificationAdvanced, models.StatusQueueAdvanced, 2),
		player("a", models.QualificationAdvanced, models.StatusQueueAdvanced, 1),
	}
	Project(players)
	if players[0].ID != "b" {
		t.Fatal("Project mutated its input order")
	}
}
