package users

import (
	"strings"
	"time"
)

// User models a portal account. Roles are stored as a comma-joined list and
// become the user_roles claim of the session token.
type User struct {
	ID              string    `gorm:"column:id;primaryKey;size:190;not null"`
	Email           string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	DisplayName     string    `gorm:"column:display_name;size:320;not null"`
	PasswordHash    string    `gorm:"column:password_hash;size:190;not null"`
	Roles           string    `gorm:"column:roles;size:190;not null;default:'mitglied'"`
	Active          bool      `gorm:"column:active;not null;default:true"`
	NotifyOnFailure bool      `gorm:"column:notify_on_failure;not null;default:false"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// RoleList splits the stored roles column into individual role names.
func (u User) RoleList() []string {
	parts := strings.Split(u.Roles, ",")
	roles := make([]string, 0, len(parts))
	for _, part := range parts {
		role := strings.ToLower(strings.TrimSpace(part))
		if role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
