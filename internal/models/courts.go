// internal/models/courts.go
package models

import (
	"fmt"
	"strings"
)

// CourtCapacity is the most players a court may hold.
const CourtCapacity = 4

// CourtID names one of the eight fixed courts.
type CourtID string

const (
	G1 CourtID = "G1"
	G2 CourtID = "G2"
	G3 CourtID = "G3"
	G4 CourtID = "G4"
	W1 CourtID = "W1"
	W2 CourtID = "W2"
	W3 CourtID = "W3"
	W4 CourtID = "W4"
)

// GameCourts are the primary courts in balance order.
var GameCourts = []CourtID{G1, G2, G3, G4}

// WarmupCourts are the secondary courts, index-aligned with GameCourts.
var WarmupCourts = []CourtID{W1, W2, W3, W4}

// AllCourts lists G courts first, then W courts.
var AllCourts = []CourtID{G1, G2, G3, G4, W1, W2, W3, W4}

const (
	gamePrefix   = "G"
	warmupPrefix = "W"
)

func (c CourtID) Valid() bool {
	for _, known := range AllCourts {
		if c == known {
			return true
		}
	}
	return false
}

func (c CourtID) IsGame() bool {
	return c.Valid() && strings.HasPrefix(string(c), gamePrefix)
}

func (c CourtID) IsWarmup() bool {
	return c.Valid() && strings.HasPrefix(string(c), warmupPrefix)
}

// Pair returns the partner court: G_k for W_k and W_k for G_k.
func (c CourtID) Pair() CourtID {
	switch {
	case c.IsGame():
		return CourtID(warmupPrefix + strings.TrimPrefix(string(c), gamePrefix))
	case c.IsWarmup():
		return CourtID(gamePrefix + strings.TrimPrefix(string(c), warmupPrefix))
	}
	return ""
}

func ParseCourtID(value string) (CourtID, error) {
	c := CourtID(strings.ToUpper(strings.TrimSpace(value)))
	if !c.Valid() {
		return "", &ValidationError{Kind: ErrInvalidCourt, Detail: fmt.Sprintf("unknown court %q", value)}
	}
	return c, nil
}

// CourtType decides who may play on a court.
type CourtType string

const (
	CourtTypeAdvanced     CourtType = "advanced"
	CourtTypeIntermediate CourtType = "intermediate"
	CourtTypeTraining     CourtType = "training"
)

// DefaultCourtType applies to courts whose type was never set.
const DefaultCourtType = CourtTypeIntermediate

func (t CourtType) Valid() bool {
	switch t {
	case CourtTypeAdvanced, CourtTypeIntermediate, CourtTypeTraining:
		return true
	}
	return false
}

// Tier returns the qualification a court accepts. Training courts accept none.
func (t CourtType) Tier() (Qualification, bool) {
	switch t {
	case CourtTypeAdvanced:
		return QualificationAdvanced, true
	case CourtTypeIntermediate:
		return QualificationIntermediate, true
	}
	return "", false
}

func ParseCourtType(value string) (CourtType, error) {
	t := CourtType(strings.ToLower(strings.TrimSpace(value)))
	if !t.Valid() {
		return "", &ValidationError{Kind: ErrInvalidCourtType, Detail: fmt.Sprintf("unknown court type %q", value)}
	}
	return t, nil
}
