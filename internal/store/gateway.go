// Package store persists players and court types and pushes snapshots of
// them to subscribers.
package store

import (
	"context"

	"github.com/codr1/courtqueue/internal/models"
)

// NameMatch is the result of a name lookup.
type NameMatch struct {
	Exists  bool            `json:"exists"`
	Matches []models.Player `json:"matches"`
}

// Connectivity reports whether the store can be reached.
type Connectivity struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

// Gateway is the persistence boundary of the board. Writes fail with a
// *models.StoreUnavailableError when the store cannot be reached. Subscribers
// receive a full snapshot on subscribe and after every change; callbacks run
// on the writer's goroutine and must not call back into the gateway.
type Gateway interface {
	SubscribePlayers(fn func([]models.Player)) (unsubscribe func())
	SubscribeCourtTypes(fn func(map[models.CourtID]models.CourtType)) (unsubscribe func())

	CreatePlayer(ctx context.Context, name string, qualification models.Qualification) (string, error)
	UpdatePlayerFields(ctx context.Context, id string, fields models.PlayerFields) error
	DeletePlayer(ctx context.Context, id string) error
	SetCourtType(ctx context.Context, court models.CourtID, typ models.CourtType) error

	ListPlayers(ctx context.Context) ([]models.Player, error)
	NameExists(ctx context.Context, name string) (NameMatch, error)
	CheckConnectivity(ctx context.Context) Connectivity
}
