package schema

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

func AllRoles() []string {
	return []string{RoleAdmin, RoleEditor, RoleViewer}
}

func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RoleEditor || role == RoleViewer
}

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Username string `gorm:"unique;size:50;not null"`
	// Stored lowercased so that uniqueness is case insensitive.
	Email    string `gorm:"unique;size:254;not null"`
	Password []byte

	Role string `gorm:"size:20;not null;default:'viewer'"`

	CreatedAt time.Time
}

type Document struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Title       string `gorm:"size:200;not null"`
	Description string
	Type        string `gorm:"size:100;not null"`
	Category    string `gorm:"size:100;not null"`

	FilePath string `gorm:"size:500;not null"`
	FileName string `gorm:"size:255;not null"`

	Version int `gorm:"not null;default:1"`

	Permissions []DocumentPermission `gorm:"constraint:OnDelete:CASCADE"`
	Attributes  []DocumentAttribute  `gorm:"constraint:OnDelete:CASCADE"`

	CreatedBy uuid.UUID `gorm:"type:uuid;not null"`
	Creator   *User     `gorm:"foreignKey:CreatedBy"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d *Document) GetAttributes() map[string]string {
	attrs := make(map[string]string)
	for _, attr := range d.Attributes {
		attrs[attr.Key] = attr.Value
	}
	return attrs
}

func (d *Document) PermittedRoles() []string {
	roles := make([]string, 0, len(d.Permissions))
	for _, perm := range d.Permissions {
		roles = append(roles, perm.Role)
	}
	return roles
}

func (d *Document) PermitsRole(role string) bool {
	for _, perm := range d.Permissions {
		if perm.Role == role {
			return true
		}
	}
	return false
}

type DocumentPermission struct {
	DocumentId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Role       string    `gorm:"size:20;primaryKey"`
}

type DocumentAttribute struct {
	DocumentId uuid.UUID `gorm:"type:uuid;primaryKey"`
	Key        string    `gorm:"primaryKey"`
	Value      string
}

// AuditEntry rows are append only, nothing in the codebase updates or
// deletes them once created.
type AuditEntry struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserId   uuid.UUID `gorm:"type:uuid;not null;index"`
	Username string    `gorm:"size:50"`

	Action     string     `gorm:"size:50;not null;index"`
	TargetId   *uuid.UUID `gorm:"type:uuid"`
	TargetType string     `gorm:"size:50"`
	Details    string

	CreatedAt time.Time `gorm:"index"`
}

const (
	DashboardProject       = "project"
	DashboardFinancial     = "financial"
	DashboardEnvironmental = "environmental"
	DashboardStakeholder   = "stakeholder"
)

func IsValidDashboardType(dashboardType string) bool {
	switch dashboardType {
	case DashboardProject, DashboardFinancial, DashboardEnvironmental, DashboardStakeholder:
		return true
	}
	return false
}

type Dashboard struct {
	Type string `gorm:"size:50;primaryKey"`
	Data string `gorm:"not null"`

	UpdatedBy uuid.UUID `gorm:"type:uuid;not null"`
	UpdatedAt time.Time
}

func AllModels() []interface{} {
	return []interface{}{
		&User{}, &Document{}, &DocumentPermission{}, &DocumentAttribute{},
		&AuditEntry{}, &Dashboard{},
	}
}
