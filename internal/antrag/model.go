package antrag

import (
	"strings"
	"time"
)

// Status enumerates the decision lifecycle of an Antrag.
type Status string

const (
	StatusNeu        Status = "NEU"
	StatusAkzeptiert Status = "AKZEPTIERT"
	StatusAbgelehnt  Status = "ABGELEHNT"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusNeu:
		return StatusNeu, true
	case StatusAkzeptiert:
		return StatusAkzeptiert, true
	case StatusAbgelehnt:
		return StatusAbgelehnt, true
	default:
		return "", false
	}
}

// Antrag models a funding/resource request submitted by a member.
type Antrag struct {
	ID           string     `gorm:"column:id;primaryKey;size:190;not null"`
	ApplicantID  string     `gorm:"column:applicant_id;size:190;not null;index"`
	Title        string     `gorm:"column:title;size:500;not null"`
	Purpose      string     `gorm:"column:purpose;type:text;not null"`
	AmountCents  int64      `gorm:"column:amount_cents;not null;default:0"`
	Status       Status     `gorm:"column:status;size:32;not null;default:'NEU';index"`
	DecisionNote string     `gorm:"column:decision_note;type:text;not null;default:''"`
	DecidedBy    string     `gorm:"column:decided_by;size:190;not null;default:''"`
	DecidedAt    *time.Time `gorm:"column:decided_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Antrag) TableName() string {
	return "antraege"
}
