// Package models contains data structures for the application's domain models.
package models

import (
	"strings"
	"time"
)

// Role is the fixed capacity a user acts in. It is assigned at registration.
type Role string

const (
	RoleCustodian Role = "CUSTODIAN"
	RoleSupplier  Role = "SUPPLIER"
	RoleAdmin     Role = "ADMIN"
)

// ParseRole normalizes s into a Role. The empty string yields the default
// custodian role.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case "":
		return RoleCustodian, true
	case RoleCustodian:
		return RoleCustodian, true
	case RoleSupplier:
		return RoleSupplier, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// User is an account. As a planter it owns trees, as an owner it owns maps.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:120;not null" json:"name"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password     string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"size:16;not null;default:CUSTODIAN" json:"role"`
	ProfileImage string    `json:"profileImage,omitempty"`
	PlantedTrees []Tree    `gorm:"foreignKey:PlanterID" json:"-"`
	OwnedMaps    []Map     `gorm:"foreignKey:OwnerID" json:"-"`
	InvitedMaps  []Map     `gorm:"many2many:map_invitations;" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Planter is the public projection of a user attached to tree responses.
type Planter struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// PlanterOf projects u for embedding in tree payloads.
func PlanterOf(u *User) *Planter {
	if u == nil || u.ID == 0 {
		return nil
	}
	return &Planter{ID: u.ID, Name: u.Name, Role: u.Role, ProfileImage: u.ProfileImage}
}
