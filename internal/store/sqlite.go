package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtqueue/internal/db"
	"github.com/codr1/courtqueue/internal/models"
)

const playerColumns = "id, name, name_key, qualification, status, sort_order, is_active"

type playerRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	NameKey       string `db:"name_key"`
	Qualification string `db:"qualification"`
	Status        string `db:"status"`
	SortOrder     int64  `db:"sort_order"`
	IsActive      bool   `db:"is_active"`
}

func (r playerRow) player() models.Player {
	return models.Player{
		ID:            r.ID,
		Name:          r.Name,
		Qualification: models.Qualification(r.Qualification),
		Status:        models.Status(r.Status),
		Order:         r.SortOrder,
		IsActive:      r.IsActive,
	}
}

type courtTypeRow struct {
	CourtID string `db:"court_id"`
	Type    string `db:"type"`
}

// SQLite is a Gateway backed by the local database.
type SQLite struct {
	db     *db.DB
	clock  clockwork.Clock
	logger zerolog.Logger

	mu         sync.Mutex
	nextSub    int
	playerSubs map[int]func([]models.Player)
	courtSubs  map[int]func(map[models.CourtID]models.CourtType)
}

var _ Gateway = (*SQLite)(nil)

func NewSQLite(database *db.DB, clock clockwork.Clock) *SQLite {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SQLite{
		db:         database,
		clock:      clock,
		logger:     log.With().Str("component", "sqlite_store").Logger(),
		playerSubs: make(map[int]func([]models.Player)),
		courtSubs:  make(map[int]func(map[models.CourtID]models.CourtType)),
	}
}

// unavailable classifies err. Validation and not-found errors pass through;
// anything else means the round-trip failed.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrNotFound) {
		return err
	}
	return &models.StoreUnavailableError{Op: op, Err: err}
}

func (s *SQLite) SubscribePlayers(fn func([]models.Player)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.playerSubs[id] = fn
	s.mu.Unlock()

	if players, err := s.listPlayers(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to load initial player snapshot")
	} else {
		fn(players)
	}

	return func() {
		s.mu.Lock()
		delete(s.playerSubs, id)
		s.mu.Unlock()
	}
}

func (s *SQLite) SubscribeCourtTypes(fn func(map[models.CourtID]models.CourtType)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.courtSubs[id] = fn
	s.mu.Unlock()

	if types, err := s.listCourtTypes(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to load initial court type snapshot")
	} else {
		fn(types)
	}

	return func() {
		s.mu.Lock()
		delete(s.courtSubs, id)
		s.mu.Unlock()
	}
}

func (s *SQLite) publishPlayers(ctx context.Context) {
	s.mu.Lock()
	subs := make([]func([]models.Player), 0, len(s.playerSubs))
	for _, fn := range s.playerSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	players, err := s.listPlayers(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load player snapshot for subscribers")
		return
	}
	for _, fn := range subs {
		fn(append([]models.Player(nil), players...))
	}
}

func (s *SQLite) publishCourtTypes(ctx context.Context) {
	s.mu.Lock()
	subs := make([]func(map[models.CourtID]models.CourtType), 0, len(s.courtSubs))
	for _, fn := range s.courtSubs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	types, err := s.listCourtTypes(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load court type snapshot for subscribers")
		return
	}
	for _, fn := range subs {
		copied := make(map[models.CourtID]models.CourtType, len(types))
		for court, typ := range types {
			copied[court] = typ
		}
		fn(copied)
	}
}

// CreatePlayer stores a new active player at the back of their queue.
func (s *SQLite) CreatePlayer(ctx context.Context, name string, qualification models.Qualification) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &models.ValidationError{Kind: models.ErrInvalidName, Detail: "name is required"}
	}
	if !qualification.Valid() {
		return "", &models.ValidationError{Kind: models.ErrInvalidQualification, Detail: fmt.Sprintf("unknown qualification %q", qualification)}
	}

	row := playerRow{
		ID:            uuid.NewString(),
		Name:          name,
		NameKey:       models.NameKey(name),
		Qualification: string(qualification),
		Status:        string(models.QueueStatus(qualification)),
		SortOrder:     s.clock.Now().UnixMilli(),
		IsActive:      true,
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO players (id, name, name_key, qualification, status, sort_order, is_active)
		VALUES (:id, :name, :name_key, :qualification, :status, :sort_order, :is_active)`, row)
	if err != nil {
		return "", unavailable("create player", err)
	}

	s.logger.Debug().Str("player_id", row.ID).Str("qualification", row.Qualification).Msg("Created player")
	s.publishPlayers(ctx)
	return row.ID, nil
}

// UpdatePlayerFields applies a partial update to one player.
func (s *SQLite) UpdatePlayerFields(ctx context.Context, id string, fields models.PlayerFields) error {
	if err := fields.Validate(); err != nil {
		return err
	}
	if fields.Empty() {
		return nil
	}

	err := s.db.RunInTx(ctx, func(tx *sqlx.Tx) error {
		var row playerRow
		err := tx.GetContext(ctx, &row, `SELECT `+playerColumns+` FROM players WHERE id = ?`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return &models.NotFoundError{Entity: "player", ID: id}
		}
		if err != nil {
			return fmt.Errorf("load player: %w", err)
		}

		player := row.player()
		fields.Apply(&player)
		_, err = tx.ExecContext(ctx, `
			UPDATE players
			SET name = ?, name_key = ?, qualification = ?, status = ?, sort_order = ?, is_active = ?, updated_at = ?
			WHERE id = ?`,
			player.Name, models.NameKey(player.Name), player.Qualification, player.Status,
			player.Order, player.IsActive, s.clock.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("update player: %w", err)
		}
		return nil
	})
	if err != nil {
		return unavailable("update player", err)
	}

	s.publishPlayers(ctx)
	return nil
}

func (s *SQLite) DeletePlayer(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM players WHERE id = ?`, id)
	if err != nil {
		return unavailable("delete player", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return &models.NotFoundError{Entity: "player", ID: id}
	}

	s.publishPlayers(ctx)
	return nil
}

func (s *SQLite) SetCourtType(ctx context.Context, court models.CourtID, typ models.CourtType) error {
	if !court.Valid() {
		return &models.ValidationError{Kind: models.ErrInvalidCourt, Detail: fmt.Sprintf("unknown court %q", court)}
	}
	if !typ.Valid() {
		return &models.ValidationError{Kind: models.ErrInvalidCourtType, Detail: fmt.Sprintf("unknown court type %q", typ)}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO court_types (court_id, type, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (court_id) DO UPDATE SET type = excluded.type, updated_at = excluded.updated_at`,
		court, typ, s.clock.Now().UTC())
	if err != nil {
		return unavailable("set court type", err)
	}

	s.publishCourtTypes(ctx)
	return nil
}

func (s *SQLite) ListPlayers(ctx context.Context) ([]models.Player, error) {
	players, err := s.listPlayers(ctx)
	if err != nil {
		return nil, unavailable("list players", err)
	}
	return players, nil
}

func (s *SQLite) listPlayers(ctx context.Context) ([]models.Player, error) {
	var rows []playerRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+playerColumns+` FROM players ORDER BY sort_order, id`); err != nil {
		return nil, fmt.Errorf("select players: %w", err)
	}
	out := make([]models.Player, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.player())
	}
	return out, nil
}

func (s *SQLite) listCourtTypes(ctx context.Context) (map[models.CourtID]models.CourtType, error) {
	var rows []courtTypeRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT court_id, type FROM court_types`); err != nil {
		return nil, fmt.Errorf("select court types: %w", err)
	}
	out := make(map[models.CourtID]models.CourtType, len(rows))
	for _, row := range rows {
		out[models.CourtID(row.CourtID)] = models.CourtType(row.Type)
	}
	return out, nil
}

// NameExists reports the active players whose name matches name, ignoring
// case and surrounding space.
func (s *SQLite) NameExists(ctx context.Context, name string) (NameMatch, error) {
	var rows []playerRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+playerColumns+` FROM players WHERE name_key = ? AND is_active = 1 ORDER BY sort_order`,
		models.NameKey(name))
	if err != nil {
		return NameMatch{}, unavailable("check name", err)
	}
	match := NameMatch{Matches: make([]models.Player, 0, len(rows))}
	for _, row := range rows {
		match.Matches = append(match.Matches, row.player())
	}
	match.Exists = len(match.Matches) > 0
	return match, nil
}

func (s *SQLite) CheckConnectivity(ctx context.Context) Connectivity {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return Connectivity{Connected: false, Message: err.Error()}
	}
	return Connectivity{Connected: true, Message: "ok"}
}
