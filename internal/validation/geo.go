package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseCoordinate parses a latitude or longitude field. The value must be a
// finite number within bound.
func ParseCoordinate(field, raw string, bound float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be a finite number", field)
	}
	if v < -bound || v > bound {
		return 0, fmt.Errorf("%s must be between %g and %g", field, -bound, bound)
	}
	return v, nil
}

// ParseLatitude parses a latitude in decimal degrees.
func ParseLatitude(raw string) (float64, error) {
	return ParseCoordinate("latitude", raw, 90)
}

// ParseLongitude parses a longitude in decimal degrees.
func ParseLongitude(raw string) (float64, error) {
	return ParseCoordinate("longitude", raw, 180)
}

// ParsePlantedAt accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func ParsePlantedAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("plantedAt must be an RFC 3339 timestamp or YYYY-MM-DD date")
}
