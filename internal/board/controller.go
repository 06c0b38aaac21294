// Package board owns the application state of one court board: the player
// registry, the court type table and the allocation engine. It applies local
// commands, merges remote snapshots, and feeds the background syncer.
package board

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtqueue/internal/allocation"
	"github.com/codr1/courtqueue/internal/courts"
	"github.com/codr1/courtqueue/internal/localcache"
	"github.com/codr1/courtqueue/internal/models"
	"github.com/codr1/courtqueue/internal/registry"
	"github.com/codr1/courtqueue/internal/scheduler"
	"github.com/codr1/courtqueue/internal/store"
	"github.com/codr1/courtqueue/internal/syncer"
)

// Move destinations that are not courts.
const (
	DestinationQueue             = "queue"
	DestinationAdvancedQueue     = "queue-advanced"
	DestinationIntermediateQueue = "queue-intermediate"
)

const pendingWarning = "store unavailable: change saved locally and will sync when the connection returns"

// Options configures a Controller. Gateway is required; a nil Cache disables
// the local snapshot.
type Options struct {
	Clock        clockwork.Clock
	Gateway      store.Gateway
	Cache        *localcache.File
	FillDelay    time.Duration
	FillCooldown time.Duration
	EchoGrace    time.Duration
	MaxHold      time.Duration
	Workers      int
}

// Controller serialises every state change behind one mutex. The engine
// calls back into StateChanged and RequestFill while that mutex is held.
type Controller struct {
	clock    clockwork.Clock
	gateway  store.Gateway
	cache    *localcache.File
	guard    *syncer.Guard
	sync     *syncer.Syncer
	debounce *scheduler.Debouncer
	hub      *Hub
	logger   zerolog.Logger

	mu      sync.Mutex
	players *registry.Registry
	courts  *courts.Table
	engine  *allocation.Engine
	// confirmed is the court type the store is known to hold. An empty value
	// forces a write.
	confirmed      map[models.CourtID]models.CourtType
	// creating holds the temporary ids of the creates handed to the current
	// flush; abandoned those among them removed before the store answered.
	creating       map[string]bool
	abandoned      map[string]bool
	applyingRemote bool
	started        bool
	unsubscribe    []func()
}

func New(opts Options) (*Controller, error) {
	if opts.Gateway == nil {
		return nil, errors.New("board controller requires a store gateway")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.EchoGrace <= 0 {
		opts.EchoGrace = syncer.DefaultEchoGrace
	}

	c := &Controller{
		clock:     opts.Clock,
		gateway:   opts.Gateway,
		cache:     opts.Cache,
		guard:     syncer.NewGuard(opts.Clock, opts.EchoGrace, opts.MaxHold),
		hub:       NewHub(),
		logger:    log.With().Str("component", "board").Logger(),
		players:   registry.New(opts.Clock),
		courts:    courts.NewTable(),
		confirmed: make(map[models.CourtID]models.CourtType, len(models.AllCourts)),
		creating:  make(map[string]bool),
		abandoned: make(map[string]bool),
	}
	engine, err := allocation.NewEngine(c.players, c.courts, c)
	if err != nil {
		return nil, fmt.Errorf("create allocation engine: %w", err)
	}
	c.engine = engine
	c.debounce = scheduler.NewDebouncer(scheduler.DebounceConfig{
		Delay:    opts.FillDelay,
		Cooldown: opts.FillCooldown,
		Clock:    opts.Clock,
	}, c.runFill)
	c.sync = syncer.New(c, opts.Gateway, opts.Workers)
	return c, nil
}

// Start restores the local snapshot, subscribes to the store and requests
// the first fill.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("board controller already started")
	}
	c.started = true
	if c.cache != nil {
		snapshot, ok, err := c.cache.Load()
		switch {
		case err != nil:
			c.logger.Warn().Err(err).Str("path", c.cache.Path()).Msg("Ignoring unreadable board snapshot")
		case ok:
			c.restoreLocked(snapshot)
			c.logger.Info().
				Int("players", len(snapshot.Players)).
				Int("pending_deletions", len(snapshot.PendingDeletions)).
				Time("saved_at", snapshot.SavedAt).
				Msg("Restored board snapshot")
		}
	}
	c.engine.Refresh()
	c.engine.EnforceCapacity(ctx)
	c.mu.Unlock()

	// Subscriptions deliver a snapshot immediately, which takes c.mu.
	unsubPlayers := c.gateway.SubscribePlayers(c.ApplyRemotePlayers)
	unsubCourts := c.gateway.SubscribeCourtTypes(c.ApplyRemoteCourtTypes)

	c.mu.Lock()
	c.unsubscribe = append(c.unsubscribe, unsubPlayers, unsubCourts)
	c.publishLocked()
	c.mu.Unlock()

	c.debounce.Request("startup")
	c.sync.Kick()
	return nil
}

func (c *Controller) restoreLocked(snapshot localcache.Snapshot) {
	c.players.Load(snapshot.Players, snapshot.PendingDeletions)
	c.courts.Load(snapshot.CourtTypes)
	for court, typ := range snapshot.CourtTypes {
		c.confirmed[court] = typ
	}
	for _, court := range snapshot.DirtyCourts {
		c.confirmed[court] = ""
		c.guard.Hold(syncer.CourtKey(court))
	}
}

// Close stops scheduling, drops the store subscriptions and closes every view
// subscriber. The final state is written to the local snapshot.
func (c *Controller) Close() {
	c.debounce.Stop()

	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.saveLocked()
	c.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	c.hub.Close()
}

// CloseViews ends every view subscription, so open streams return. The
// board keeps running.
func (c *Controller) CloseViews() {
	c.hub.Close()
}

// Syncer returns the background syncer; its Run loop is owned by the caller.
func (c *Controller) Syncer() *syncer.Syncer {
	return c.sync
}

// StateChanged implements allocation.Listener. c.mu is held.
func (c *Controller) StateChanged(ctx context.Context, change allocation.Change) {
	keys := make([]string, 0, len(change.Players)+len(change.Courts))
	for _, id := range change.Players {
		if p, ok := c.players.Get(id); ok && p.Modified {
			keys = append(keys, syncer.PlayerKey(id))
		}
	}
	if !c.applyingRemote {
		for _, court := range change.Courts {
			if c.courtDirtyLocked(court) {
				keys = append(keys, syncer.CourtKey(court))
			}
		}
	}
	c.guard.Hold(keys...)

	log.Ctx(ctx).Debug().
		Str("component", "board").
		Str("reason", change.Reason).
		Int("players", len(change.Players)).
		Int("courts", len(change.Courts)).
		Bool("remote", c.applyingRemote).
		Msg("Board changed")

	c.publishLocked()
	c.sync.Kick()
	if change.Reason != "auto_fill" {
		c.debounce.Request(change.Reason)
	}
}

// RequestFill implements allocation.Listener.
func (c *Controller) RequestFill(reason string) {
	c.debounce.Request(reason)
}

func (c *Controller) runFill(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engine.AutoFill(ctx)
}

// changedLocked reports a registry-level change the engine did not make.
func (c *Controller) changedLocked(ctx context.Context, change allocation.Change) {
	c.engine.Refresh()
	c.StateChanged(ctx, change)
}

// AddPlayer creates a player at the back of their queue. When the store is
// unreachable the player is kept locally and created by the syncer later.
func (c *Controller) AddPlayer(ctx context.Context, name string, qualification models.Qualification) (AddResult, error) {
	logger := log.Ctx(ctx)
	if !qualification.Valid() {
		return AddResult{}, &models.ValidationError{Kind: models.ErrInvalidQualification, Detail: fmt.Sprintf("unknown qualification %q", qualification)}
	}

	c.mu.Lock()
	err := c.players.CheckName(name)
	c.mu.Unlock()
	if err != nil {
		return AddResult{}, err
	}

	match, err := c.gateway.NameExists(ctx, name)
	switch {
	case err == nil && match.Exists:
		names := make([]string, 0, len(match.Matches))
		for _, p := range match.Matches {
			names = append(names, p.Name)
		}
		return AddResult{}, &models.DuplicateNameError{Name: name, Matches: names}
	case err != nil && !errors.Is(err, models.ErrStoreUnavailable):
		return AddResult{}, err
	case err != nil:
		logger.Warn().Err(err).Msg("Name check skipped, store unavailable")
	}

	id, createErr := c.gateway.CreatePlayer(ctx, name, qualification)
	if createErr != nil && !errors.Is(createErr, models.ErrStoreUnavailable) {
		return AddResult{}, createErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if createErr != nil {
		player, err := c.players.Add(name, qualification)
		if err != nil {
			return AddResult{}, err
		}
		logger.Warn().Err(createErr).Str("player_id", player.ID).Msg("Player created locally, store write deferred")
		c.changedLocked(ctx, allocation.Change{Reason: "add_player", Players: []string{player.ID}})
		return AddResult{Player: player, Pending: true, Warning: pendingWarning}, nil
	}

	player, err := c.players.Insert(id, name, qualification)
	if err != nil {
		// Lost a race with a local add of the same name; undo the store row.
		c.players.Tombstone(id)
		c.sync.Kick()
		return AddResult{}, err
	}
	logger.Info().Str("player_id", player.ID).Str("qualification", string(qualification)).Msg("Player added")
	c.changedLocked(ctx, allocation.Change{Reason: "add_player", Players: []string{player.ID}})
	return AddResult{Player: player}, nil
}

// RemovePlayer deletes a player from the board and, once synced, the store.
func (c *Controller) RemovePlayer(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	player, err := c.players.Remove(id)
	if err != nil {
		return err
	}
	if player.IsNew && c.creating[id] {
		c.abandoned[id] = true
	}
	log.Ctx(ctx).Info().Str("player_id", id).Msg("Player removed")
	c.changedLocked(ctx, allocation.Change{Reason: "remove_player"})
	return nil
}

// SetActive deactivates or reactivates a player. Either way the player is
// placed at the back of their queue.
func (c *Controller) SetActive(ctx context.Context, id string, active bool) (models.Player, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before, ok := c.players.Get(id)
	if !ok {
		return models.Player{}, &models.NotFoundError{Entity: "player", ID: id}
	}
	player, err := c.players.SetActive(id, active)
	if err != nil {
		return models.Player{}, err
	}
	if before.IsActive != active {
		c.changedLocked(ctx, allocation.Change{Reason: "set_active", Players: []string{id}})
	}
	return player, nil
}

// RequestMove applies a drop of playerID onto destination: a court id or one
// of the queue destinations.
func (c *Controller) RequestMove(ctx context.Context, playerID, destination string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch destination {
	case DestinationQueue:
		return c.engine.MoveToQueue(ctx, playerID)
	case DestinationAdvancedQueue:
		return c.engine.MoveToSpecificQueue(ctx, playerID, models.QualificationAdvanced)
	case DestinationIntermediateQueue:
		return c.engine.MoveToSpecificQueue(ctx, playerID, models.QualificationIntermediate)
	}
	court, err := models.ParseCourtID(destination)
	if err != nil {
		return err
	}
	return c.engine.MoveToCourt(ctx, playerID, court)
}

func (c *Controller) RequestReorder(ctx context.Context, tier models.Qualification, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Reorder(ctx, tier, ids)
}

func (c *Controller) SetCourtType(ctx context.Context, court models.CourtID, typ models.CourtType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.SetCourtType(ctx, court, typ)
}

func (c *Controller) Rotate(ctx context.Context, court models.CourtID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Rotate(ctx, court)
}

// AutoFill runs a fill immediately, outside the debouncer.
func (c *Controller) AutoFill(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.AutoFill(ctx)
}

// OnDragStart suppresses automatic fills until OnDragEnd.
func (c *Controller) OnDragStart(ctx context.Context) {
	log.Ctx(ctx).Debug().Str("component", "board").Msg("Drag started")
	c.debounce.DragStart()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hub.Broadcast(c.viewLocked())
}

// OnDragEnd lifts the suppression and requests a fresh fill.
func (c *Controller) OnDragEnd(ctx context.Context) {
	log.Ctx(ctx).Debug().Str("component", "board").Msg("Drag ended")
	c.debounce.DragEnd()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hub.Broadcast(c.viewLocked())
}

// Tick is the periodic safety net: it expires stale holds and requests a fill.
func (c *Controller) Tick() {
	held := c.guard.Sweep()
	c.logger.Debug().Int("held", held).Msg("Safety tick")
	c.debounce.Tick()
}

func (c *Controller) FillState() scheduler.State {
	return c.debounce.State()
}

// View returns the current board.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Subscribe returns a channel of board views, primed with the current one.
func (c *Controller) Subscribe() (<-chan View, func()) {
	views, cancel := c.hub.Register()
	c.mu.Lock()
	c.hub.Broadcast(c.viewLocked())
	c.mu.Unlock()
	return views, cancel
}

func (c *Controller) Connectivity(ctx context.Context) store.Connectivity {
	return c.gateway.CheckConnectivity(ctx)
}

// SaveSnapshot writes the local snapshot outside the normal change path.
func (c *Controller) SaveSnapshot() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil {
		return nil
	}
	return c.cache.Save(c.snapshotLocked())
}

// ApplyRemotePlayers merges a store snapshot. Records held by the pending-write
// set or carrying unsent changes keep their local state.
func (c *Controller) ApplyRemotePlayers(remote []models.Player) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := c.players.Merge(remote, func(id string) bool {
		return c.guard.Holding(syncer.PlayerKey(id))
	})
	c.logger.Debug().
		Int("added", result.Added).
		Int("updated", result.Updated).
		Int("removed", result.Removed).
		Int("adopted", result.Adopted).
		Int("kept", result.Kept).
		Msg("Merged remote players")
	if !result.Changed() {
		return
	}

	ctx := c.logger.WithContext(context.Background())
	c.engine.Refresh()
	c.engine.EnforceCapacity(ctx)
	c.publishLocked()
	c.debounce.Request("remote_update")
}

// ApplyRemoteCourtTypes records the store's court types and adopts those for
// game courts without a pending local change. Courts missing from types hold
// the default type.
func (c *Controller) ApplyRemoteCourtTypes(types map[models.CourtID]models.CourtType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, court := range models.AllCourts {
		typ, ok := types[court]
		if !ok || !typ.Valid() {
			typ = models.DefaultCourtType
		}
		c.confirmed[court] = typ
	}

	ctx := c.logger.WithContext(context.Background())
	c.applyingRemote = true
	defer func() { c.applyingRemote = false }()
	for _, court := range models.GameCourts {
		typ := c.confirmed[court]
		if c.courts.Type(court) == typ || c.guard.Holding(syncer.CourtKey(court)) {
			continue
		}
		if err := c.engine.SetCourtType(ctx, court, typ); err != nil {
			c.logger.Warn().Err(err).Str("court", string(court)).Msg("Remote court type rejected")
		}
	}
	c.publishLocked()
}

// PendingWork implements syncer.Source.
func (c *Controller) PendingWork() syncer.Batch {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Flushes are serialised, so the previous one has finished and any
	// create it left unconfirmed never reached the store.
	clear(c.creating)
	clear(c.abandoned)

	var batch syncer.Batch
	for _, write := range c.players.PendingWrites() {
		if write.Player.IsNew {
			c.creating[write.Player.ID] = true
			batch.Creates = append(batch.Creates, write)
		} else {
			batch.Updates = append(batch.Updates, write)
		}
	}
	batch.Deletions = c.players.PendingDeletions()
	for _, court := range c.dirtyCourtsLocked() {
		if batch.Courts == nil {
			batch.Courts = make(map[models.CourtID]models.CourtType)
		}
		batch.Courts[court] = c.courts.Type(court)
	}
	return batch
}

// ConfirmWork implements syncer.Source.
func (c *Controller) ConfirmWork(confirmation syncer.Confirmation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for tempID, id := range confirmation.Created {
		delete(c.creating, tempID)
		c.guard.Rekey(syncer.PlayerKey(tempID), syncer.PlayerKey(id))
		if c.abandoned[tempID] {
			delete(c.abandoned, tempID)
			if _, err := c.players.Remove(id); err != nil {
				c.players.Tombstone(id)
			}
			continue
		}
		if !c.players.Rekey(tempID, id) {
			if _, ok := c.players.Get(id); !ok {
				c.players.Tombstone(id)
			}
		}
	}
	for _, write := range confirmation.Written {
		if c.players.Confirm(write.Player.ID, write.Revision) {
			c.guard.Confirm(syncer.PlayerKey(write.Player.ID))
		}
	}
	for _, id := range confirmation.Deleted {
		c.players.ConfirmDeletion(id)
	}
	for court, typ := range confirmation.Courts {
		c.confirmed[court] = typ
		if c.courts.Type(court) == typ {
			c.guard.Confirm(syncer.CourtKey(court))
		}
	}

	if len(confirmation.Created) > 0 {
		c.engine.Refresh()
	}
	c.publishLocked()
	if len(c.players.PendingDeletions()) > 0 {
		c.sync.Kick()
	}
}

func (c *Controller) courtDirtyLocked(court models.CourtID) bool {
	confirmed, ok := c.confirmed[court]
	if !ok {
		confirmed = models.DefaultCourtType
	}
	return c.courts.Type(court) != confirmed
}

func (c *Controller) dirtyCourtsLocked() []models.CourtID {
	var dirty []models.CourtID
	for _, court := range models.AllCourts {
		if c.courtDirtyLocked(court) {
			dirty = append(dirty, court)
		}
	}
	return dirty
}

func (c *Controller) viewLocked() View {
	projection := c.engine.Projection()
	players := make(map[string]models.Player, c.players.Len())
	for _, p := range c.players.All() {
		players[p.ID] = p
	}
	assignments := make(map[models.CourtID][]string, len(projection.CourtAssignments))
	for court, ids := range projection.CourtAssignments {
		assignments[court] = slices.Clone(ids)
	}
	return View{
		AdvancedQueue:     slices.Clone(projection.AdvancedQueue),
		IntermediateQueue: slices.Clone(projection.IntermediateQueue),
		CourtAssignments:  assignments,
		CourtTypes:        c.courts.All(),
		Players:           players,
		Dragging:          c.debounce.Dragging(),
		PendingWrites:     len(c.players.PendingWrites()) + len(c.players.PendingDeletions()) + len(c.dirtyCourtsLocked()),
	}
}

func (c *Controller) snapshotLocked() localcache.Snapshot {
	return localcache.Snapshot{
		Players:          c.players.All(),
		CourtTypes:       c.courts.All(),
		PendingDeletions: c.players.PendingDeletions(),
		DirtyCourts:      c.dirtyCourtsLocked(),
		SavedAt:          c.clock.Now().UTC(),
	}
}

func (c *Controller) saveLocked() {
	if c.cache == nil {
		return
	}
	if err := c.cache.Save(c.snapshotLocked()); err != nil {
		c.logger.Error().Err(err).Str("path", c.cache.Path()).Msg("Failed to save board snapshot")
	}
}

// publishLocked pushes the current view to subscribers and the local snapshot.
func (c *Controller) publishLocked() {
	c.hub.Broadcast(c.viewLocked())
	c.saveLocked()
}
