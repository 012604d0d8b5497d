// Package mapview builds what the browser map draws: markers, popups, camera
// moves and the polling loop behind tracking mode. It holds no rendering code;
// the page script turns a Payload into Mapbox layers.
package mapview

import (
	"context"
	"errors"
	"sync"
)

// Mode selects what the markers represent.
type Mode string

const (
	// ModeTrees draws one marker per tree.
	ModeTrees Mode = "trees"
	// ModePlanters draws one marker per planter at the centroid of their trees.
	ModePlanters Mode = "planters"
)

// FetchFunc loads records when none were supplied.
type FetchFunc func(ctx context.Context) (Data, error)

var (
	// ErrNoSource is returned by Load when there is nothing to fetch from.
	ErrNoSource = errors.New("mapview: no records supplied and no fetch function")
	// ErrUnknownRecord is returned by Select for an ID the view does not hold.
	ErrUnknownRecord = errors.New("mapview: unknown record")
)

// Options configure a View. Supplying Trees or Planters (even empty) means
// Fetch is never called.
type Options struct {
	Mode     Mode
	Trees    []TreeRecord
	Planters []PlanterRecord
	Fetch    FetchFunc
	OnSelect func(Selection)
}

// View is the state of one map. It is safe for concurrent use.
type View struct {
	mu       sync.RWMutex
	mode     Mode
	supplied bool
	fetch    FetchFunc
	onSelect func(Selection)
	trees    []TreeRecord
	planters []PlanterRecord
	camera   Camera
}

func NewView(opts Options) *View {
	mode := opts.Mode
	if mode != ModePlanters {
		mode = ModeTrees
	}
	v := &View{
		mode:     mode,
		fetch:    opts.Fetch,
		onSelect: opts.OnSelect,
		trees:    opts.Trees,
		planters: opts.Planters,
		camera:   DefaultCamera,
	}
	switch mode {
	case ModeTrees:
		v.supplied = opts.Trees != nil
	case ModePlanters:
		v.supplied = opts.Planters != nil
	}
	return v
}

func (v *View) Mode() Mode {
	return v.mode
}

// Load fetches records unless they were supplied at construction, in which
// case it does nothing.
func (v *View) Load(ctx context.Context) error {
	if v.supplied {
		return nil
	}
	if v.fetch == nil {
		return ErrNoSource
	}
	data, err := v.fetch(ctx)
	if err != nil {
		return err
	}
	v.Replace(data)
	return nil
}

// Replace swaps the records for the view's mode.
func (v *View) Replace(data Data) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mode == ModePlanters {
		v.planters = data.Planters
	} else {
		v.trees = data.Trees
	}
}

// Markers are ordered like the records they come from.
func (v *View) Markers() []Marker {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.mode == ModePlanters {
		out := make([]Marker, 0, len(v.planters))
		for _, p := range v.planters {
			if m, ok := planterMarker(p); ok {
				out = append(out, m)
			}
		}
		return out
	}

	out := make([]Marker, 0, len(v.trees))
	for _, t := range v.trees {
		out = append(out, treeMarker(t))
	}
	return out
}

// Bounds covers every marker.
func (v *View) Bounds() (Bounds, bool) {
	markers := v.Markers()
	points := make([]LatLng, 0, len(markers))
	for _, m := range markers {
		points = append(points, m.Position)
	}
	return BoundsOf(points)
}

func (v *View) Camera() Camera {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.camera
}

// Select flies to the record with id in the current mode and reports it to
// OnSelect.
func (v *View) Select(id uint) error {
	sel, ok := v.lookup(id)
	if !ok {
		return ErrUnknownRecord
	}
	v.apply(sel)
	return nil
}

// Dispatch performs a popup action.
func (v *View) Dispatch(action PopupAction) {
	v.apply(action.Target)
}

func (v *View) lookup(id uint) (Selection, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.mode == ModePlanters {
		for _, p := range v.planters {
			if p.ID != id {
				continue
			}
			center, ok := Centroid(p.Trees)
			if !ok {
				return Selection{}, false
			}
			return Selection{Kind: KindPlanter, ID: id, Position: center}, true
		}
		return Selection{}, false
	}
	for _, t := range v.trees {
		if t.ID == id {
			return treeSelection(t), true
		}
	}
	return Selection{}, false
}

func (v *View) apply(sel Selection) {
	v.mu.Lock()
	v.camera = Camera{Center: sel.Position, Zoom: SelectZoom}
	cb := v.onSelect
	v.mu.Unlock()

	if cb != nil {
		cb(sel)
	}
}

// Payload is the JSON document handed to the page script. SelectZoom is the
// zoom the page flies to when a marker or popup action selects a record.
type Payload struct {
	Mode       Mode     `json:"mode"`
	Camera     Camera   `json:"camera"`
	SelectZoom float64  `json:"selectZoom"`
	Bounds     *Bounds  `json:"bounds,omitempty"`
	Markers    []Marker `json:"markers"`
}

func (v *View) Payload() Payload {
	p := Payload{Mode: v.mode, Camera: v.Camera(), SelectZoom: SelectZoom, Markers: v.Markers()}
	if b, ok := v.Bounds(); ok {
		p.Bounds = &b
	}
	return p
}
