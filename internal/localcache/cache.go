// Package localcache keeps a durable snapshot of the board on local disk so a
// restart without the store still has the last known state.
package localcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/codr1/courtqueue/internal/models"
)

// Snapshot is the cached board state. Players keep their sync flags so
// unsent work survives a restart.
type Snapshot struct {
	Players          []models.Player                     `json:"players"`
	CourtTypes       map[models.CourtID]models.CourtType `json:"courtTypes"`
	PendingDeletions []string                            `json:"pendingDeletions"`
	DirtyCourts      []models.CourtID                    `json:"dirtyCourts,omitempty"`
	SavedAt          time.Time                           `json:"savedAt"`
}

// File stores one snapshot as JSON at a fixed path.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

// Save replaces the stored snapshot. The write goes to a temporary file that
// is renamed into place.
func (f *File) Save(snapshot Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := sonic.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot. ok is false when nothing has been saved.
func (f *File) Load() (snapshot Snapshot, ok bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	if err := sonic.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, true, nil
}
