package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/codr1/courtqueue/internal/models"
	"github.com/codr1/courtqueue/internal/registry"
	"github.com/codr1/courtqueue/internal/store"
)

const DefaultWorkers = 4

// Batch is a copy of the work waiting to be sent to the store.
type Batch struct {
	// Creates are players that only exist locally.
	Creates   []registry.Write
	Updates   []registry.Write
	Deletions []string
	Courts    map[models.CourtID]models.CourtType
}

func (b Batch) Empty() bool {
	return len(b.Creates) == 0 && len(b.Updates) == 0 && len(b.Deletions) == 0 && len(b.Courts) == 0
}

// Confirmation reports what the store accepted during one flush.
type Confirmation struct {
	// Created maps temporary local ids to store-assigned ids.
	Created map[string]string
	// Written carries store ids and the revisions that were sent.
	Written []registry.Write
	Deleted []string
	Courts  map[models.CourtID]models.CourtType
}

// Source owns the pending work.
type Source interface {
	PendingWork() Batch
	ConfirmWork(Confirmation)
}

// FlushResult summarises one flush.
type FlushResult struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Syncer drains pending work to the store with a bounded worker pool.
// Failed items stay pending and are retried on the next flush.
type Syncer struct {
	source  Source
	gateway store.Gateway
	workers int

	kick    chan struct{}
	flushMu sync.Mutex
}

func New(source Source, gateway store.Gateway, workers int) *Syncer {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Syncer{
		source:  source,
		gateway: gateway,
		workers: workers,
		kick:    make(chan struct{}, 1),
	}
}

// Kick asks the run loop for a flush without blocking.
func (s *Syncer) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run flushes on every kick until ctx is done.
func (s *Syncer) Run(ctx context.Context) error {
	logger := log.Ctx(ctx).With().Str("component", "syncer").Logger()
	logger.Info().Msg("Syncer started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Syncer stopped")
			return nil
		case <-s.kick:
			s.Flush(logger.WithContext(ctx))
		}
	}
}

type outcomeKind int

const (
	outcomeCreated outcomeKind = iota
	outcomeWritten
	outcomeDeleted
	outcomeCourt
)

type outcome struct {
	kind   outcomeKind
	write  registry.Write
	tempID string
	id     string
	court  models.CourtID
	typ    models.CourtType
}

// Flush sends the current batch and reports the confirmations to the source.
// Concurrent calls are serialised.
func (s *Syncer) Flush(ctx context.Context) FlushResult {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	logger := log.Ctx(ctx).With().Str("component", "syncer").Logger()
	batch := s.source.PendingWork()
	if batch.Empty() {
		return FlushResult{}
	}

	total := len(batch.Creates) + len(batch.Updates) + len(batch.Deletions) + len(batch.Courts)
	results := make(chan outcome, total)
	var failed atomic.Int32

	p := pool.New().WithMaxGoroutines(s.workers)
	for _, write := range batch.Creates {
		p.Go(func() {
			id, err := s.gateway.CreatePlayer(ctx, write.Player.Name, write.Player.Qualification)
			if err != nil {
				failed.Add(1)
				logger.Warn().Err(err).Str("player_id", write.Player.ID).Msg("Deferred player create failed")
				return
			}
			// The store queued the player with its own defaults; bring it in
			// line with the local record.
			if err := s.gateway.UpdatePlayerFields(ctx, id, models.FieldsOf(write.Player)); err != nil {
				logger.Warn().Err(err).Str("player_id", id).Msg("Created player left with store defaults")
			}
			written := write
			written.Player.ID = id
			results <- outcome{kind: outcomeCreated, write: written, tempID: write.Player.ID}
		})
	}
	for _, write := range batch.Updates {
		p.Go(func() {
			err := s.gateway.UpdatePlayerFields(ctx, write.Player.ID, models.FieldsOf(write.Player))
			if err != nil && !errors.Is(err, models.ErrNotFound) {
				failed.Add(1)
				logger.Warn().Err(err).Str("player_id", write.Player.ID).Msg("Player update failed")
				return
			}
			if err != nil {
				logger.Debug().Str("player_id", write.Player.ID).Msg("Player gone from store, dropping update")
			}
			results <- outcome{kind: outcomeWritten, write: write}
		})
	}
	for _, id := range batch.Deletions {
		p.Go(func() {
			if err := s.gateway.DeletePlayer(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
				failed.Add(1)
				logger.Warn().Err(err).Str("player_id", id).Msg("Player delete failed")
				return
			}
			results <- outcome{kind: outcomeDeleted, id: id}
		})
	}
	for court, typ := range batch.Courts {
		p.Go(func() {
			if err := s.gateway.SetCourtType(ctx, court, typ); err != nil {
				failed.Add(1)
				logger.Warn().Err(err).Str("court", string(court)).Msg("Court type write failed")
				return
			}
			results <- outcome{kind: outcomeCourt, court: court, typ: typ}
		})
	}
	p.Wait()
	close(results)

	confirmation := Confirmation{
		Created: make(map[string]string),
		Courts:  make(map[models.CourtID]models.CourtType),
	}
	succeeded := 0
	for result := range results {
		succeeded++
		switch result.kind {
		case outcomeCreated:
			confirmation.Created[result.tempID] = result.write.Player.ID
			confirmation.Written = append(confirmation.Written, result.write)
		case outcomeWritten:
			confirmation.Written = append(confirmation.Written, result.write)
		case outcomeDeleted:
			confirmation.Deleted = append(confirmation.Deleted, result.id)
		case outcomeCourt:
			confirmation.Courts[result.court] = result.typ
		}
	}
	s.source.ConfirmWork(confirmation)

	flushed := FlushResult{Attempted: total, Succeeded: succeeded, Failed: int(failed.Load())}
	event := logger.Debug()
	if flushed.Failed > 0 {
		event = logger.Warn()
	}
	event.
		Int("attempted", flushed.Attempted).
		Int("succeeded", flushed.Succeeded).
		Int("failed", flushed.Failed).
		Msg("Sync flush finished")
	return flushed
}
