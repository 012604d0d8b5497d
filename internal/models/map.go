package models

import "time"

// PublicMapName is the ownerless map every user may view.
const PublicMapName = "Public"

// Map is a named, access-scoped collection of trees.
type Map struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:32;uniqueIndex;not null" json:"name"`
	OwnerID      *uint     `gorm:"index" json:"ownerId"`
	InvitedUsers []User    `gorm:"many2many:map_invitations;" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// IsPublic reports whether the map has no owner.
func (m *Map) IsPublic() bool {
	return m.OwnerID == nil
}

// VisibleTo applies the visibility rule: owner, invited user, or ownerless map.
// InvitedUsers must be loaded.
func (m *Map) VisibleTo(userID uint) bool {
	if m.IsPublic() {
		return true
	}
	if *m.OwnerID == userID {
		return true
	}
	for _, u := range m.InvitedUsers {
		if u.ID == userID {
			return true
		}
	}
	return false
}
