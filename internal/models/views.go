package models

import "time"

// ImageRef is the reduced image shape used by the role views.
type ImageRef struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

// UpdateEntry is one row of a tree's progress log.
type UpdateEntry struct {
	ID          uint      `json:"id"`
	Description string    `json:"description"`
	ImageURL    *string   `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TreeRef identifies a tree inside a planter summary.
type TreeRef struct {
	ID uint `json:"id"`
}

// PlanterIdentity is the planter block of the supplier view.
type PlanterIdentity struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	ProfileImage *string   `json:"profileImage"`
	PlantedTrees []TreeRef `json:"plantedTrees"`
}

// CustodianTree is a tree as its own planter sees it.
type CustodianTree struct {
	ID          uint          `json:"id"`
	TreeID      string        `json:"treeId"`
	Species     string        `json:"species"`
	PlantedDate time.Time     `json:"plantedDate"`
	Latitude    float64       `json:"latitude"`
	Longitude   float64       `json:"longitude"`
	Status      string        `json:"status"`
	Images      []ImageRef    `json:"images"`
	Updates     []UpdateEntry `json:"updates"`
}

// SupplierTree is a tree as a supplier sees it: with its planter and at most
// one image, the latest.
type SupplierTree struct {
	ID          uint             `json:"id"`
	TreeID      string           `json:"treeId"`
	Species     string           `json:"species"`
	PlantedDate time.Time        `json:"plantedDate"`
	Latitude    float64          `json:"latitude"`
	Longitude   float64          `json:"longitude"`
	Status      string           `json:"status"`
	Planter     *PlanterIdentity `json:"planter"`
	Images      []ImageRef       `json:"images"`
}

// PlanterSummary is one entry of the public planter aggregate. It carries no
// contact details.
type PlanterSummary struct {
	ID       uint        `json:"id"`
	Name     string      `json:"name"`
	ImageURL *string     `json:"imageUrl"`
	Count    int         `json:"count"`
	Plants   []PlantView `json:"plants"`
}

func imageRef(img TreeImage) ImageRef {
	ref := ImageRef{URL: img.URL}
	if img.Caption != nil {
		ref.Caption = *img.Caption
	}
	return ref
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NewCustodianTree shapes t, whose Images and Updates must be loaded.
func NewCustodianTree(t *Tree) CustodianTree {
	out := CustodianTree{
		ID:          t.ID,
		TreeID:      t.TreeID,
		Species:     t.Species,
		PlantedDate: t.PlantedDate,
		Latitude:    t.Latitude,
		Longitude:   t.Longitude,
		Status:      t.Status,
		Images:      make([]ImageRef, 0, len(t.Images)),
		Updates:     make([]UpdateEntry, 0, len(t.Updates)),
	}
	for _, img := range t.Images {
		out.Images = append(out.Images, imageRef(img))
	}
	for _, u := range t.Updates {
		out.Updates = append(out.Updates, UpdateEntry{
			ID:          u.ID,
			Description: u.Description,
			ImageURL:    u.ImageURL,
			CreatedAt:   u.CreatedAt,
		})
	}
	return out
}

// NewSupplierTrees shapes trees whose Planter and Images (newest first) are
// loaded. Each planter's plantedTrees lists that planter's trees in the result.
func NewSupplierTrees(trees []Tree) []SupplierTree {
	byPlanter := make(map[uint][]TreeRef)
	for _, t := range trees {
		if t.Planter.ID != 0 {
			byPlanter[t.Planter.ID] = append(byPlanter[t.Planter.ID], TreeRef{ID: t.ID})
		}
	}

	out := make([]SupplierTree, 0, len(trees))
	for _, t := range trees {
		st := SupplierTree{
			ID:          t.ID,
			TreeID:      t.TreeID,
			Species:     t.Species,
			PlantedDate: t.PlantedDate,
			Latitude:    t.Latitude,
			Longitude:   t.Longitude,
			Status:      t.Status,
			Images:      []ImageRef{},
		}
		if t.Planter.ID != 0 {
			st.Planter = &PlanterIdentity{
				ID:           t.Planter.ID,
				Name:         t.Planter.Name,
				ProfileImage: optionalString(t.Planter.ProfileImage),
				PlantedTrees: byPlanter[t.Planter.ID],
			}
		}
		if len(t.Images) > 0 {
			st.Images = append(st.Images, imageRef(t.Images[0]))
		}
		out = append(out, st)
	}
	return out
}

// NewPlanterSummary shapes u, whose PlantedTrees must be loaded.
func NewPlanterSummary(u *User) PlanterSummary {
	plants := make([]PlantView, 0, len(u.PlantedTrees))
	for i := range u.PlantedTrees {
		t := u.PlantedTrees[i]
		t.Planter = *u
		t.Planter.PlantedTrees = nil
		plants = append(plants, NewPlantView(&t))
	}
	return PlanterSummary{
		ID:       u.ID,
		Name:     u.Name,
		ImageURL: optionalString(u.ProfileImage),
		Count:    len(plants),
		Plants:   plants,
	}
}
