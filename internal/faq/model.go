package faq

import (
	"strings"
	"time"
)

// Status enumerates the lifecycle of a FAQ entry.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusActive   Status = "ACTIVE"
	StatusArchived Status = "ARCHIVED"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusNew:
		return StatusNew, true
	case StatusActive:
		return StatusActive, true
	case StatusArchived:
		return StatusArchived, true
	default:
		return "", false
	}
}

// Entry models a single FAQ question/answer pair.
type Entry struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	Question     string    `gorm:"column:question;size:500;not null"`
	Answer       string    `gorm:"column:answer;type:text;not null"`
	Category     string    `gorm:"column:category;size:190;not null;index"`
	DisplayOrder int       `gorm:"column:display_order;not null;default:0"`
	Status       Status    `gorm:"column:status;size:32;not null;default:'NEW';index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "faq_entries"
}
