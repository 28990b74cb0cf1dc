package groups

import (
	"strings"
	"time"
)

// Status enumerates the lifecycle of a group.
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

// Group models a chapter sub-organization with an optional recurring meeting
// schedule expressed as a cron specification.
type Group struct {
	ID              string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name            string    `gorm:"column:name;size:320;not null;uniqueIndex"`
	Description     string    `gorm:"column:description;type:text;not null;default:''"`
	Status          Status    `gorm:"column:status;size:32;not null;default:'NEW';index"`
	ContactEmail    string    `gorm:"column:contact_email;size:320;not null;default:''"`
	MeetingSchedule string    `gorm:"column:meeting_schedule;size:190;not null;default:''"`
	MeetingLocation string    `gorm:"column:meeting_location;size:320;not null;default:''"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Group) TableName() string {
	return "groups"
}

// Member links a portal user to a group.
type Member struct {
	GroupID  string    `gorm:"column:group_id;primaryKey;size:190;not null"`
	UserID   string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	JoinedAt time.Time `gorm:"column:joined_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Member) TableName() string {
	return "group_members"
}

// ResponsiblePerson names a contact responsible for a group.
type ResponsiblePerson struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	GroupID   string    `gorm:"column:group_id;size:190;not null;index"`
	Name      string    `gorm:"column:name;size:320;not null"`
	Email     string    `gorm:"column:email;size:320;not null"`
	RoleLabel string    `gorm:"column:role_label;size:190;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (ResponsiblePerson) TableName() string {
	return "group_responsible_persons"
}
