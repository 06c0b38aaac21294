// internal/api/board/handlers.go
package board

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtqueue/internal/api/apiutil"
	courtboard "github.com/codr1/courtqueue/internal/board"
	"github.com/codr1/courtqueue/internal/models"
	"github.com/codr1/courtqueue/internal/store"
)

// Board is the state owner the handlers drive.
type Board interface {
	View() courtboard.View
	Subscribe() (<-chan courtboard.View, func())
	AddPlayer(ctx context.Context, name string, qualification models.Qualification) (courtboard.AddResult, error)
	RemovePlayer(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) (models.Player, error)
	RequestMove(ctx context.Context, playerID, destination string) error
	RequestReorder(ctx context.Context, tier models.Qualification, ids []string) error
	SetCourtType(ctx context.Context, court models.CourtID, typ models.CourtType) error
	Rotate(ctx context.Context, court models.CourtID) error
	AutoFill(ctx context.Context) bool
	OnDragStart(ctx context.Context)
	OnDragEnd(ctx context.Context)
	Connectivity(ctx context.Context) store.Connectivity
}

var (
	boardMu sync.RWMutex
	current Board
)

const (
	connectivityTimeout = 5 * time.Second
	// streamKeepAlive spaces comment lines on idle streams so proxies keep
	// the connection open.
	streamKeepAlive = 25 * time.Second
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(b Board) {
	boardMu.Lock()
	defer boardMu.Unlock()
	current = b
}

func loadBoard(w http.ResponseWriter, r *http.Request) Board {
	boardMu.RLock()
	b := current
	boardMu.RUnlock()
	if b == nil {
		log.Ctx(r.Context()).Error().Msg("Board handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
	return b
}

type addPlayerRequest struct {
	Name          string `json:"name" validate:"required,max=100"`
	Qualification string `json:"qualification" validate:"required"`
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type moveRequest struct {
	Destination string `json:"destination" validate:"required"`
}

type reorderRequest struct {
	PlayerIDs []string `json:"playerIds" validate:"required,dive,required"`
}

type courtTypeRequest struct {
	Type string `json:"type" validate:"required"`
}

type autoFillResponse struct {
	Changed bool            `json:"changed"`
	View    courtboard.View `json:"view"`
}

func writeView(w http.ResponseWriter, r *http.Request, b Board, status int) {
	if err := apiutil.WriteJSON(w, status, b.View()); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write board view")
	}
}

// GET /api/v1/board
func HandleBoard(w http.ResponseWriter, r *http.Request) {
	b := loadBoard(w, r)
	if b == nil {
		return
	}
	writeView(w, r, b, http.StatusOK)
}

// GET /api/v1/board/stream
func HandleBoardStream(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	b := loadBoard(w, r)
	if b == nil {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	// Streams outlive the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.Warn().Err(err).Msg("Write deadline not cleared for stream")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	views, cancel := b.Subscribe()
	defer cancel()
	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	logger.Info().Msg("Board stream opened")
	for {
		select {
		case <-r.Context().Done():
			logger.Info().Msg("Board stream closed")
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case view, open := <-views:
			if !open {
				return
			}
			data, err := sonic.Marshal(view)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to encode board view")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: board\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// POST /api/v1/players
func HandleAddPlayer(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	b := loadBoard(w, r)
	if b == nil {
		return
	}

	var req addPlayerRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	qualification, err := models.ParseQualification(req.Qualification)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	result, err := b.AddPlayer(r.Context(), req.Name, qualification)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Pending {
		status = http.StatusAccepted
	}
	if err := apiutil.WriteJSON(w, status, result); err != nil {
		logger.Error().Err(err).Msg("Failed to write add player response")
	}
}

// DELETE /api/v1/players/{id}
func HandleRemovePlayer(w http.ResponseWriter, r *http.Request) {
	b := loadBoard(w, r)
	if b == nil {
		return
	}
	id, err := apiutil.RequiredPathValue(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := b.RemovePlayer(r.Context(), id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeView(w, r, b, http.StatusOK)
}

// POST /api/v1/players/{id}/active
func HandleSetActive(w http.ResponseWriter, r *http.Request) {
	b := loadBoard(w, r)
	if b == nil {
		return
	}
	id, err := apiutil.RequiredPathValue(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req setActiveRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if _, err := b.SetActive(r.Context(), id, *req.Active); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeView(w, r, b, http.StatusOK)
}

// POST /api/v1/players/{id}/move
func HandleMove(w http.ResponseWriter, r *http.Request) {
	b := loadBoard(w, r)
	if b == nil {
		return
	}
	id, err := apiutil.RequiredPathValue(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req moveRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := b.RequestMove(r.Context(), id, req.Destination); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeView(w, r, b, http.StatusOK)
}

// POST /api/v1/queues/{tier}/order
func HandleReorder(w http.ResponseWriter, r *http.Request) {
	b := loadBoard(w, r)
	if b == nil {
		return
	}
	tier, err := models.ParseQualification(r.PathValue("tier"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req reorderRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := b.RequestReorder(r.Context(), tier, req.PlayerIDs); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeView(w, r, b, http.StatusOK)
}

// POST /api/v1/courts/{court}/type
func HandleSetCourtType(w http.ResponseWriter, r *http.Request) {
	b := loadBoard(w, r)
	if b == nil {
		return
	}
	court, err := models.ParseCourtID(r.PathValue("court"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req courtTypeRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	typ, err := models.ParseCourtType(req.Type)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := b.SetCourtType(r.Context(), court, typ); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeView(w, r, b, http.StatusOK)
}

// POST /api/v1/courts/{court}/rotate
func HandleRotate(w http.ResponseWriter, r *http.Request) {
	b := loadBoard(w, r)
	if b == nil {
		return
	}
	court, err := models.ParseCourtID(r.PathValue("court"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := b.Rotate(r.Context(), court); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeView(w, r, b, http.StatusOK)
}

// POST /api/v1/autofill
func HandleAutoFill(w http.ResponseWriter, r *http.Request) {
	b := loadBoard(w, r)
	if b == nil {
		return
	}
	changed := b.AutoFill(r.Context())
	if err := apiutil.WriteJSON(w, http.StatusOK, autoFillResponse{Changed: changed, View: b.View()}); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write auto-fill response")
	}
}

// POST /api/v1/drag/start
func HandleDragStart(w http.ResponseWriter, r *http.Request) {
	b := loadBoard(w, r)
	if b == nil {
		return
	}
	b.OnDragStart(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/drag/end
func HandleDragEnd(w http.ResponseWriter, r *http.Request) {
	b := loadBoard(w, r)
	if b == nil {
		return
	}
	b.OnDragEnd(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/connectivity
func HandleConnectivity(w http.ResponseWriter, r *http.Request) {
	b := loadBoard(w, r)
	if b == nil {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), connectivityTimeout)
	defer cancel()

	status := b.Connectivity(ctx)
	code := http.StatusOK
	if !status.Connected {
		code = http.StatusServiceUnavailable
	}
	if err := apiutil.WriteJSON(w, code, status); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write connectivity response")
	}
}
