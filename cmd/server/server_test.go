package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codr1/courtqueue/internal/config"
	"github.com/codr1/courtqueue/internal/ratelimit"
)

func TestNewServerRoutes(t *testing.T) {
	var cfg config.Config
	cfg.App.Port = 9090
	limiter := ratelimit.New(nil)
	defer limiter.Close()
	server := newServer(&cfg, nil, limiter)

	if server.Addr != ":9090" {
		t.Fatalf("Addr = %q, want :9090", server.Addr)
	}

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
		// Board handlers refuse to run without a board.
		{http.MethodGet, "/api/v1/board", http.StatusInternalServerError},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		server.Handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s %s missing X-Request-ID", tt.method, tt.path)
		}
	}
}
