package address

import (
	"strings"
	"time"
)

// Kind classifies the purpose of an address entry.
type Kind string

const (
	KindOffice       Kind = "OFFICE"
	KindMeetingPlace Kind = "MEETING_PLACE"
	KindMailing      Kind = "MAILING"
)

// ParseKind validates a raw kind value.
func ParseKind(raw string) (Kind, bool) {
	switch Kind(strings.ToUpper(strings.TrimSpace(raw))) {
	case KindOffice:
		return KindOffice, true
	case KindMeetingPlace:
		return KindMeetingPlace, true
	case KindMailing:
		return KindMailing, true
	default:
		return "", false
	}
}

// Address models a postal location used by the chapter.
type Address struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null"`
	Label      string    `gorm:"column:label;size:320;not null"`
	Street     string    `gorm:"column:street;size:320;not null"`
	Number     string    `gorm:"column:house_number;size:32;not null;default:''"`
	PostalCode string    `gorm:"column:postal_code;size:16;not null"`
	City       string    `gorm:"column:city;size:190;not null"`
	Latitude   *float64  `gorm:"column:latitude"`
	Longitude  *float64  `gorm:"column:longitude"`
	Kind       Kind      `gorm:"column:kind;size:32;not null;default:'OFFICE';index"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Address) TableName() string {
	return "addresses"
}
