// internal/models/errors.go
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrDuplicateName    = errors.New("duplicate player name")
)

// Validation kinds.
var (
	ErrCourtInTraining       = errors.New("court is in training mode")
	ErrQualificationMismatch = errors.New("player qualification does not match court type")
	ErrCourtFull             = errors.New("court is full")
	ErrInvalidCourt          = errors.New("invalid court")
	ErrInvalidCourtType      = errors.New("invalid court type")
	ErrInvalidRotation       = errors.New("only game courts can be rotated")
	ErrInvalidQualification  = errors.New("invalid qualification")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrInvalidName           = errors.New("invalid name")
)

// ValidationError is a recoverable rejection; no state was changed.
type ValidationError struct {
	Kind   error
	Detail string
	// PairedCourt is set when a warm-up court was targeted and its game
	// court should be changed instead.
	PairedCourt CourtID
}

func (e *ValidationError) Error() string {
	kind := "validation failed"
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	if e.Detail == "" {
		return kind
	}
	return fmt.Sprintf("%s: %s", kind, e.Detail)
}

func (e *ValidationError) Unwrap() []error {
	if e.Kind == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Kind}
}

// NotFoundError reports an unknown player or court id.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// StoreUnavailableError wraps a failed round-trip to the remote store.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: store unavailable", e.Op)
	}
	return fmt.Sprintf("%s: store unavailable: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStoreUnavailable}
	}
	return []error{ErrStoreUnavailable, e.Err}
}

// DuplicateNameError blocks creation of a second active player with the same name.
type DuplicateNameError struct {
	Name    string
	Matches []string
}

func (e *DuplicateNameError) Error() string {
	if len(e.Matches) == 0 {
		return fmt.Sprintf("player %q already exists", e.Name)
	}
	return fmt.Sprintf("player %q already exists (%s)", e.Name, strings.Join(e.Matches, ", "))
}

func (e *DuplicateNameError) Unwrap() error {
	return ErrDuplicateName
}
