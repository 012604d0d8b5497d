package mapview

import (
	"fmt"
	"strconv"
)

// Icon selects how a marker is drawn.
type Icon string

const (
	// IconTree marks a single tree.
	IconTree Icon = "tree"
	// IconCountBadge is a planter without a photo: a bubble with a count.
	IconCountBadge Icon = "count-badge"
	// IconProfileBadge is a planter photo with the count overlaid.
	IconProfileBadge Icon = "profile-badge"
)

// Kind says what a selection or marker refers to.
type Kind string

const (
	KindTree    Kind = "tree"
	KindPlanter Kind = "planter"
)

// Selection identifies a record on the map.
type Selection struct {
	Kind     Kind   `json:"kind"`
	ID       uint   `json:"id"`
	Position LatLng `json:"position"`
}

// PopupAction is a clickable entry in a popup. Dispatching it selects Target.
type PopupAction struct {
	Label  string    `json:"label"`
	Target Selection `json:"target"`
}

// Popup is the content shown when a marker is opened.
type Popup struct {
	Title    string        `json:"title"`
	Lines    []string      `json:"lines"`
	ImageURL string        `json:"imageUrl,omitempty"`
	Actions  []PopupAction `json:"actions"`
}

// Marker is one pin on the map.
type Marker struct {
	Key      string `json:"key"`
	Kind     Kind   `json:"kind"`
	ID       uint   `json:"id"`
	Position LatLng `json:"position"`
	Icon     Icon   `json:"icon"`
	Count    int    `json:"count,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Popup    Popup  `json:"popup"`
}

// IconFor picks the aggregate icon for a planter.
func IconFor(p PlanterRecord) Icon {
	if p.ImageURL != "" {
		return IconProfileBadge
	}
	return IconCountBadge
}

func treeSelection(t TreeRecord) Selection {
	return Selection{Kind: KindTree, ID: t.ID, Position: t.Position}
}

func treePopup(t TreeRecord) Popup {
	lines := []string{
		"Species: " + t.Species,
		"Status: " + t.Status,
	}
	if !t.PlantedAt.IsZero() {
		lines = append(lines, "Planted: "+t.PlantedAt.Format("2006-01-02"))
	}
	if t.PlanterName != "" {
		lines = append(lines, "Planted by: "+t.PlanterName)
	}
	return Popup{
		Title:    t.TreeID,
		Lines:    lines,
		ImageURL: t.ImageURL,
		Actions:  []PopupAction{{Label: "Zoom to tree", Target: treeSelection(t)}},
	}
}

func treeMarker(t TreeRecord) Marker {
	return Marker{
		Key:      "tree-" + strconv.FormatUint(uint64(t.ID), 10),
		Kind:     KindTree,
		ID:       t.ID,
		Position: t.Position,
		Icon:     IconTree,
		ImageURL: t.ImageURL,
		Popup:    treePopup(t),
	}
}

// planterMarker sits at the centroid of the planter's trees. A planter with
// no trees has no marker.
func planterMarker(p PlanterRecord) (Marker, bool) {
	center, ok := Centroid(p.Trees)
	if !ok {
		return Marker{}, false
	}

	actions := make([]PopupAction, 0, len(p.Trees))
	for _, t := range p.Trees {
		label := t.Species
		if t.TreeID != "" {
			label = fmt.Sprintf("%s (%s)", t.Species, t.TreeID)
		}
		actions = append(actions, PopupAction{Label: label, Target: treeSelection(t)})
	}

	noun := "trees"
	if len(p.Trees) == 1 {
		noun = "tree"
	}
	return Marker{
		Key:      "planter-" + strconv.FormatUint(uint64(p.ID), 10),
		Kind:     KindPlanter,
		ID:       p.ID,
		Position: center,
		Icon:     IconFor(p),
		Count:    len(p.Trees),
		ImageURL: p.ImageURL,
		Popup: Popup{
			Title:    p.Name,
			Lines:    []string{fmt.Sprintf("%d %s planted", len(p.Trees), noun)},
			ImageURL: p.ImageURL,
			Actions:  actions,
		},
	}, true
}
