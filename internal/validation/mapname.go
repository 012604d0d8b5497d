package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinMapNameLength = 5
	MaxMapNameLength = 32
)

// NormalizeMapName trims name and checks its length.
func NormalizeMapName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinMapNameLength {
		return "", fmt.Errorf("map name must be at least %d characters", MinMapNameLength)
	}
	if n > MaxMapNameLength {
		return "", fmt.Errorf("map name must be at most %d characters", MaxMapNameLength)
	}
	if strings.ContainsAny(name, "/?#") {
		return "", fmt.Errorf("map name cannot contain '/', '?' or '#'")
	}
	return name, nil
}
