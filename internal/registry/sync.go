package registry

import (
	"slices"

	"github.com/codr1/courtqueue/internal/models"
)

// Write is a pending record together with the revision it was captured at.
type Write struct {
	Player   models.Player
	Revision uint64
}

// PendingWrites returns every record marked modified.
func (r *Registry) PendingWrites() []Write {
	var out []Write
	for _, p := range r.players {
		if p.Modified {
			out = append(out, Write{Player: *p, Revision: r.revisions[p.ID]})
		}
	}
	return out
}

// PendingDeletions returns the tombstones not yet confirmed by the store.
func (r *Registry) PendingDeletions() []string {
	return slices.Clone(r.deletions)
}

// Confirm clears the modified flag if the record has not changed since revision.
func (r *Registry) Confirm(id string, revision uint64) bool {
	p := r.find(id)
	if p == nil || r.revisions[id] != revision {
		return false
	}
	p.Modified = false
	return true
}

// ConfirmDeletion drops a tombstone once the store has removed the record.
func (r *Registry) ConfirmDeletion(id string) {
	r.deletions = slices.DeleteFunc(r.deletions, func(candidate string) bool {
		return candidate == id
	})
}

// Tombstone queues a store-side deletion for a record that no longer exists
// locally, e.g. a player removed while its deferred create was in flight.
func (r *Registry) Tombstone(id string) {
	if r.find(id) != nil || slices.Contains(r.deletions, id) {
		return
	}
	r.deletions = append(r.deletions, id)
}

// Rekey replaces a temporary local id with the id assigned by the store.
func (r *Registry) Rekey(oldID, newID string) bool {
	p := r.find(oldID)
	if p == nil || r.find(newID) != nil {
		return false
	}
	p.ID = newID
	p.IsNew = false
	if rev, ok := r.revisions[oldID]; ok {
		delete(r.revisions, oldID)
		r.revisions[newID] = rev
	}
	return true
}

// MergeResult summarises a remote snapshot merge.
type MergeResult struct {
	Added   int
	Updated int
	Removed int
	Adopted int
	Kept    int
}

func (m MergeResult) Changed() bool {
	return m.Added+m.Updated+m.Removed+m.Adopted > 0
}

// Merge folds a remote snapshot into the registry. Records with unsent
// changes, and records for which held returns true, keep their local state. A remote record matching a local,
// not-yet-persisted player by name is adopted under the remote id.
func (r *Registry) Merge(remote []models.Player, held func(id string) bool) MergeResult {
	var result MergeResult
	seen := make(map[string]bool, len(remote))
	for _, incoming := range remote {
		seen[incoming.ID] = true
		if incoming.Order > r.lastStamp {
			r.lastStamp = incoming.Order
		}
		if !incoming.Status.Valid() {
			incoming.Status = models.QueueStatus(incoming.Qualification)
		}
		if slices.Contains(r.deletions, incoming.ID) {
			result.Kept++
			continue
		}

		local := r.find(incoming.ID)
		if local == nil {
			if pending := r.findNewByName(incoming.Name); pending != nil {
				r.Rekey(pending.ID, incoming.ID)
				result.Adopted++
				continue
			}
			p := incoming
			p.Modified = false
			p.IsNew = false
			r.players = append(r.players, &p)
			result.Added++
			continue
		}

		if local.Modified || held(incoming.ID) {
			result.Kept++
			continue
		}
		if sameBusinessState(*local, incoming) {
			continue
		}
		local.Name = incoming.Name
		local.Qualification = incoming.Qualification
		local.Status = incoming.Status
		local.Order = incoming.Order
		local.IsActive = incoming.IsActive
		local.Modified = false
		local.IsNew = false
		result.Updated++
	}

	kept := r.players[:0]
	for _, p := range r.players {
		if seen[p.ID] || p.IsNew || p.Modified || held(p.ID) {
			kept = append(kept, p)
			continue
		}
		delete(r.revisions, p.ID)
		result.Removed++
	}
	r.players = kept
	return result
}

// Load replaces the registry contents, used once at startup from the local cache.
func (r *Registry) Load(players []models.Player, deletions []string) {
	r.players = r.players[:0]
	r.revisions = make(map[string]uint64)
	for _, loaded := range players {
		p := loaded
		if !p.Status.Valid() {
			p.Status = models.QueueStatus(p.Qualification)
		}
		r.players = append(r.players, &p)
		if p.Modified || p.IsNew {
			r.revision++
			r.revisions[p.ID] = r.revision
			p.Modified = true
		}
		if p.Order > r.lastStamp {
			r.lastStamp = p.Order
		}
	}
	r.deletions = slices.Clone(deletions)
}

func (r *Registry) findNewByName(name string) *models.Player {
	key := models.NameKey(name)
	for _, p := range r.players {
		if p.IsNew && models.NameKey(p.Name) == key {
			return p
		}
	}
	return nil
}

func sameBusinessState(a, b models.Player) bool {
	return a.Name == b.Name &&
		a.Qualification == b.Qualification &&
		a.Status == b.Status &&
		a.Order == b.Order &&
		a.IsActive == b.IsActive
}
