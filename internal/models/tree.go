package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TreeStatusPlanted is the status given to new trees.
const TreeStatusPlanted = "PLANTED"

// Tree is a planted seedling with its location and planter.
type Tree struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	TreeID      string       `gorm:"size:64;uniqueIndex;not null" json:"treeId"`
	Species     string       `gorm:"size:200;not null" json:"species"`
	PlantedDate time.Time    `gorm:"not null;index" json:"plantedDate"`
	Latitude    float64      `gorm:"not null" json:"latitude"`
	Longitude   float64      `gorm:"not null" json:"longitude"`
	Status      string       `gorm:"size:32;not null;default:PLANTED" json:"status"`
	PlanterID   uint         `gorm:"not null;index" json:"planterId"`
	Planter     User         `gorm:"foreignKey:PlanterID;constraint:OnDelete:CASCADE" json:"-"`
	Images      []TreeImage  `gorm:"foreignKey:TreeID;constraint:OnDelete:CASCADE" json:"images"`
	Updates     []TreeUpdate `gorm:"foreignKey:TreeID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt   time.Time    `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// NewTreeID returns a human readable identifier: T-<unix millis>-<8 hex>.
func NewTreeID(now time.Time) string {
	return fmt.Sprintf("T-%d-%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// BeforeCreate fills the defaults a new tree needs.
func (t *Tree) BeforeCreate(_ *gorm.DB) error {
	now := time.Now()
	if t.TreeID == "" {
		t.TreeID = NewTreeID(now)
	}
	if t.Status == "" {
		t.Status = TreeStatusPlanted
	}
	if t.PlantedDate.IsZero() {
		t.PlantedDate = now
	}
	return nil
}

// TreeImage is a photo attached to a tree.
type TreeImage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TreeID    uint      `gorm:"not null;index" json:"-"`
	URL       string    `gorm:"not null" json:"url"`
	Caption   *string   `json:"caption"`
	CreatedAt time.Time `json:"createdAt"`
}

// TreeUpdate is a progress log entry for a tree. The API only reads them.
type TreeUpdate struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TreeID      uint      `gorm:"not null;index" json:"-"`
	Description string    `gorm:"type:text;not null" json:"description"`
	ImageURL    *string   `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PlantView is the shape returned by the plant endpoints: the tree with its
// planter projection and images.
type PlantView struct {
	Tree
	Name      string    `json:"name"`
	PlantedAt time.Time `json:"plantedAt"`
	Planter   *Planter  `json:"planter"`
}

// NewPlantView builds the response shape for t.
func NewPlantView(t *Tree) PlantView {
	v := PlantView{
		Tree:      *t,
		Name:      t.Species,
		PlantedAt: t.PlantedDate,
		Planter:   PlanterOf(&t.Planter),
	}
	if v.Images == nil {
		v.Images = []TreeImage{}
	}
	return v
}

// PlantViews maps NewPlantView over trees.
func PlantViews(trees []Tree) []PlantView {
	out := make([]PlantView, 0, len(trees))
	for i := range trees {
		out = append(out, NewPlantView(&trees[i]))
	}
	return out
}
