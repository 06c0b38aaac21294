// Package registry holds the canonical set of player records.
package registry

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/codr1/courtqueue/internal/models"
)

// Registry owns player records in insertion order. It is not safe for
// concurrent use; the board controller serialises access.
type Registry struct {
	clock     clockwork.Clock
	players   []*models.Player
	revisions map[string]uint64
	revision  uint64
	deletions []string
	lastStamp int64
}

// New creates an empty registry. A nil clock uses the real clock.
func New(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock:     clock,
		revisions: make(map[string]uint64),
	}
}

// Stamp returns a queue-order value for "now". Stamps strictly increase so
// players entering a queue in the same millisecond keep their call order.
func (r *Registry) Stamp() int64 {
	now := r.clock.Now().UnixMilli()
	if now <= r.lastStamp {
		now = r.lastStamp + 1
	}
	r.lastStamp = now
	return now
}

// CheckName fails with a DuplicateNameError if an active player already uses name.
func (r *Registry) CheckName(name string) error {
	key := models.NameKey(name)
	if key == "" {
		return &models.ValidationError{Kind: models.ErrInvalidName, Detail: "name is required"}
	}
	var matches []string
	for _, p := range r.players {
		if p.IsActive && models.NameKey(p.Name) == key {
			matches = append(matches, p.Name)
		}
	}
	if len(matches) > 0 {
		return &models.DuplicateNameError{Name: strings.TrimSpace(name), Matches: matches}
	}
	return nil
}

// Add creates a not-yet-persisted player at the back of its queue.
func (r *Registry) Add(name string, qualification models.Qualification) (models.Player, error) {
	return r.create(uuid.NewString(), name, qualification, true)
}

// Insert records a player the store has already created under id.
// Inserting an id that is already present returns the existing record.
func (r *Registry) Insert(id, name string, qualification models.Qualification) (models.Player, error) {
	if p := r.find(id); p != nil {
		return *p, nil
	}
	return r.create(id, name, qualification, false)
}

func (r *Registry) create(id, name string, qualification models.Qualification, isNew bool) (models.Player, error) {
	if !qualification.Valid() {
		return models.Player{}, &models.ValidationError{Kind: models.ErrInvalidQualification, Detail: fmt.Sprintf("unknown qualification %q", qualification)}
	}
	if err := r.CheckName(name); err != nil {
		return models.Player{}, err
	}
	p := &models.Player{
		ID:            id,
		Name:          strings.TrimSpace(name),
		Qualification: qualification,
		Status:        models.QueueStatus(qualification),
		Order:         r.Stamp(),
		IsActive:      true,
		IsNew:         isNew,
	}
	r.players = append(r.players, p)
	r.touch(p)
	return *p, nil
}

// Remove deletes a player. Persisted players leave a tombstone for the store.
func (r *Registry) Remove(id string) (models.Player, error) {
	for i, p := range r.players {
		if p.ID != id {
			continue
		}
		r.players = append(r.players[:i], r.players[i+1:]...)
		delete(r.revisions, id)
		if !p.IsNew {
			r.deletions = append(r.deletions, id)
		}
		return *p, nil
	}
	return models.Player{}, &models.NotFoundError{Entity: "player", ID: id}
}

// SetActive flips the activation flag. Both directions put the player back
// in their qualification queue so a reactivated player joins at the back.
func (r *Registry) SetActive(id string, active bool) (models.Player, error) {
	p := r.find(id)
	if p == nil {
		return models.Player{}, &models.NotFoundError{Entity: "player", ID: id}
	}
	if p.IsActive == active {
		return *p, nil
	}
	p.IsActive = active
	p.Status = models.QueueStatus(p.Qualification)
	p.Order = r.Stamp()
	r.touch(p)
	return *p, nil
}

// Update applies a partial update.
func (r *Registry) Update(id string, fields models.PlayerFields) (models.Player, error) {
	p := r.find(id)
	if p == nil {
		return models.Player{}, &models.NotFoundError{Entity: "player", ID: id}
	}
	if err := fields.Validate(); err != nil {
		return models.Player{}, err
	}
	if fields.Empty() {
		return *p, nil
	}
	fields.Apply(p)
	r.touch(p)
	return *p, nil
}

// Enqueue returns a player to the back of the queue for their qualification.
func (r *Registry) Enqueue(id string) (models.Player, error) {
	p := r.find(id)
	if p == nil {
		return models.Player{}, &models.NotFoundError{Entity: "player", ID: id}
	}
	p.Status = models.QueueStatus(p.Qualification)
	p.Order = r.Stamp()
	r.touch(p)
	return *p, nil
}

// Get returns a copy of one player.
func (r *Registry) Get(id string) (models.Player, bool) {
	if p := r.find(id); p != nil {
		return *p, true
	}
	return models.Player{}, false
}

// All returns copies of every player in insertion order.
func (r *Registry) All() []models.Player {
	out := make([]models.Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.players)
}

func (r *Registry) find(id string) *models.Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Registry) touch(p *models.Player) {
	r.revision++
	r.revisions[p.ID] = r.revision
	p.Modified = true
}
