package board

import "net/http"

// RegisterRoutes mounts the board API on mux.
func RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/board", HandleBoard)
	mux.HandleFunc("GET /api/v1/board/stream", HandleBoardStream)
	mux.HandleFunc("GET /api/v1/connectivity", HandleConnectivity)

	mux.HandleFunc("POST /api/v1/players", HandleAddPlayer)
	mux.HandleFunc("DELETE /api/v1/players/{id}", HandleRemovePlayer)
	mux.HandleFunc("POST /api/v1/players/{id}/active", HandleSetActive)
	mux.HandleFunc("POST /api/v1/players/{id}/move", HandleMove)
	mux.HandleFunc("POST /api/v1/queues/{tier}/order", HandleReorder)

	mux.HandleFunc("POST /api/v1/courts/{court}/type", HandleSetCourtType)
	mux.HandleFunc("POST /api/v1/courts/{court}/rotate", HandleRotate)
	mux.HandleFunc("POST /api/v1/autofill", HandleAutoFill)

	mux.HandleFunc("POST /api/v1/drag/start", HandleDragStart)
	mux.HandleFunc("POST /api/v1/drag/end", HandleDragEnd)
}
