package statusreport

import (
	"strings"
	"time"
)

// Status enumerates the approval lifecycle of a status report.
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

// Report models an activity report submitted by a group.
type Report struct {
	ID           string     `gorm:"column:id;primaryKey;size:190;not null"`
	GroupID      string     `gorm:"column:group_id;size:190;not null;index"`
	SubmittedBy  string     `gorm:"column:submitted_by;size:190;not null"`
	Title        string     `gorm:"column:title;size:500;not null"`
	Body         string     `gorm:"column:body;type:text;not null"`
	PeriodLabel  string     `gorm:"column:period_label;size:190;not null;default:''"`
	Status       Status     `gorm:"column:status;size:32;not null;default:'NEU';index"`
	DecisionNote string     `gorm:"column:decision_note;type:text;not null;default:''"`
	DecidedBy    string     `gorm:"column:decided_by;size:190;not null;default:''"`
	DecidedAt    *time.Time `gorm:"column:decided_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Report) TableName() string {
	return "status_reports"
}
