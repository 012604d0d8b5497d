package mapview

// LatLng is a WGS84 position.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is the smallest box containing a set of positions.
type Bounds struct {
	SouthWest LatLng `json:"southWest"`
	NorthEast LatLng `json:"northEast"`
}

// Camera is where the map looks.
type Camera struct {
	Center LatLng  `json:"center"`
	Zoom   float64 `json:"zoom"`
}

const (
	// DefaultZoom shows most of the globe.
	DefaultZoom = 2
	// SelectZoom is used when flying to a selected record.
	SelectZoom = 16
)

// DefaultCamera is centered on Nairobi, where the first plantings were made.
var DefaultCamera = Camera{Center: LatLng{Lat: -1.2921, Lng: 36.8219}, Zoom: DefaultZoom}

// Centroid is the arithmetic mean of the trees' coordinates. ok is false for
// an empty slice.
func Centroid(trees []TreeRecord) (c LatLng, ok bool) {
	if len(trees) == 0 {
		return LatLng{}, false
	}
	for _, t := range trees {
		c.Lat += t.Position.Lat
		c.Lng += t.Position.Lng
	}
	n := float64(len(trees))
	c.Lat /= n
	c.Lng /= n
	return c, true
}

// BoundsOf covers every position. ok is false for an empty slice.
func BoundsOf(points []LatLng) (b Bounds, ok bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b = Bounds{SouthWest: points[0], NorthEast: points[0]}
	for _, p := range points[1:] {
		b.SouthWest.Lat = min(b.SouthWest.Lat, p.Lat)
		b.SouthWest.Lng = min(b.SouthWest.Lng, p.Lng)
		b.NorthEast.Lat = max(b.NorthEast.Lat, p.Lat)
		b.NorthEast.Lng = max(b.NorthEast.Lng, p.Lng)
	}
	return b, true
}
