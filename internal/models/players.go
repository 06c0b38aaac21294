// internal/models/players.go
package models

import (
	"fmt"
	"strings"
)

// Qualification is the skill tier a player plays at.
type Qualification string

const (
	QualificationAdvanced     Qualification = "advanced"
	QualificationIntermediate Qualification = "intermediate"
)

// Qualifications lists the tiers in queue display order.
var Qualifications = []Qualification{QualificationAdvanced, QualificationIntermediate}

func (q Qualification) Valid() bool {
	return q == QualificationAdvanced || q == QualificationIntermediate
}

func ParseQualification(value string) (Qualification, error) {
	q := Qualification(strings.ToLower(strings.TrimSpace(value)))
	if !q.Valid() {
		return "", &ValidationError{Kind: ErrInvalidQualification, Detail: fmt.Sprintf("unknown qualification %q", value)}
	}
	return q, nil
}

// Status is either a queue tag or a court id.
type Status string

const (
	StatusQueueAdvanced     Status = "queue-advanced"
	StatusQueueIntermediate Status = "queue-intermediate"
)

// QueueStatus returns the queue tag for a tier.
func QueueStatus(q Qualification) Status {
	if q == QualificationAdvanced {
		return StatusQueueAdvanced
	}
	return StatusQueueIntermediate
}

func (s Status) IsQueue() bool {
	return s == StatusQueueAdvanced || s == StatusQueueIntermediate
}

// Court returns the court id carried by s, if any.
func (s Status) Court() (CourtID, bool) {
	c := CourtID(s)
	if c.Valid() {
		return c, true
	}
	return "", false
}

// Valid reports whether s is one of the ten recognised tags.
func (s Status) Valid() bool {
	if s.IsQueue() {
		return true
	}
	_, ok := s.Court()
	return ok
}

// QueueTier returns the tier of a queue tag.
func (s Status) QueueTier() (Qualification, bool) {
	switch s {
	case StatusQueueAdvanced:
		return QualificationAdvanced, true
	case StatusQueueIntermediate:
		return QualificationIntermediate, true
	}
	return "", false
}

// Player is a registry record. Order is a millisecond stamp that only matters
// while Status is a queue tag.
type Player struct {
	ID            string        `json:"id" db:"id"`
	Name          string        `json:"name" db:"name"`
	Qualification Qualification `json:"qualification" db:"qualification"`
	Status        Status        `json:"status" db:"status"`
	Order         int64         `json:"order" db:"sort_order"`
	IsActive      bool          `json:"isActive" db:"is_active"`

	// Sync state, not business state.
	Modified bool `json:"modified,omitempty" db:"-"`
	IsNew    bool `json:"isNew,omitempty" db:"-"`
}

// NameKey is the comparison key used for name uniqueness.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PlayerFields is a partial update. Nil fields are left untouched.
type PlayerFields struct {
	Name          *string
	Qualification *Qualification
	Status        *Status
	Order         *int64
	IsActive      *bool
}

func (f PlayerFields) Empty() bool {
	return f.Name == nil && f.Qualification == nil && f.Status == nil && f.Order == nil && f.IsActive == nil
}

// Validate checks every set field.
func (f PlayerFields) Validate() error {
	if f.Name != nil && strings.TrimSpace(*f.Name) == "" {
		return &ValidationError{Kind: ErrInvalidName, Detail: "name is required"}
	}
	if f.Qualification != nil && !f.Qualification.Valid() {
		return &ValidationError{Kind: ErrInvalidQualification, Detail: fmt.Sprintf("unknown qualification %q", *f.Qualification)}
	}
	if f.Status != nil && !f.Status.Valid() {
		return &ValidationError{Kind: ErrInvalidStatus, Detail: fmt.Sprintf("unknown status %q", *f.Status)}
	}
	return nil
}

// Apply copies the set fields onto p.
func (f PlayerFields) Apply(p *Player) {
	if f.Name != nil {
		p.Name = strings.TrimSpace(*f.Name)
	}
	if f.Qualification != nil {
		p.Qualification = *f.Qualification
	}
	if f.Status != nil {
		p.Status = *f.Status
	}
	if f.Order != nil {
		p.Order = *f.Order
	}
	if f.IsActive != nil {
		p.IsActive = *f.IsActive
	}
}

// FieldsOf returns a full update carrying every business field of p.
func FieldsOf(p Player) PlayerFields {
	name := p.Name
	qualification := p.Qualification
	status := p.Status
	order := p.Order
	active := p.IsActive
	return PlayerFields{
		Name:          &name,
		Qualification: &qualification,
		Status:        &status,
		Order:         &order,
		IsActive:      &active,
	}
}
