package mapview

import (
	"time"

	"canopy/internal/models"
)

// TreeRecord is the part of a tree the map needs.
type TreeRecord struct {
	ID          uint      `json:"id"`
	TreeID      string    `json:"treeId"`
	Species     string    `json:"species"`
	Status      string    `json:"status"`
	PlantedAt   time.Time `json:"plantedAt"`
	Position    LatLng    `json:"position"`
	PlanterName string    `json:"planterName,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
}

// PlanterRecord is a planter with every tree they planted.
type PlanterRecord struct {
	ID       uint         `json:"id"`
	Name     string       `json:"name"`
	ImageURL string       `json:"imageUrl,omitempty"`
	Trees    []TreeRecord `json:"trees"`
}

// Data is what a Fetch returns. Only the slice for the view's mode is read.
type Data struct {
	Trees    []TreeRecord
	Planters []PlanterRecord
}

// TreeFromModel keeps the most recent image, if any.
func TreeFromModel(t *models.Tree) TreeRecord {
	r := TreeRecord{
		ID:          t.ID,
		TreeID:      t.TreeID,
		Species:     t.Species,
		Status:      t.Status,
		PlantedAt:   t.PlantedDate,
		Position:    LatLng{Lat: t.Latitude, Lng: t.Longitude},
		PlanterName: t.Planter.Name,
	}
	if n := len(t.Images); n > 0 {
		r.ImageURL = t.Images[n-1].URL
	}
	return r
}

func TreesFromModels(trees []models.Tree) []TreeRecord {
	out := make([]TreeRecord, 0, len(trees))
	for i := range trees {
		out = append(out, TreeFromModel(&trees[i]))
	}
	return out
}

// PlantersFromSummaries converts the planter aggregate.
func PlantersFromSummaries(summaries []models.PlanterSummary) []PlanterRecord {
	out := make([]PlanterRecord, 0, len(summaries))
	for _, s := range summaries {
		p := PlanterRecord{ID: s.ID, Name: s.Name, Trees: make([]TreeRecord, 0, len(s.Plants))}
		if s.ImageURL != nil {
			p.ImageURL = *s.ImageURL
		}
		for i := range s.Plants {
			tr := TreeFromModel(&s.Plants[i].Tree)
			tr.PlanterName = s.Name
			p.Trees = append(p.Trees, tr)
		}
		out = append(out, p)
	}
	return out
}
