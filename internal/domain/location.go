package domain

import (
	"cmp"
	"errors"
	"strings"
)

// Location identifies where a report can be fetched from.
type Location struct {
	Label string `json:"label"`
	Path  string `json:"path"` // path+query relative to the report server root
}

// NewLocation builds a Location, rejecting an empty label.
func NewLocation(label, path string) (Location, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Location{}, errors.New("location label is required")
	}
	return Location{Label: label, Path: strings.TrimSpace(path)}, nil
}

// Equal reports whether two locations refer to the same place. Only the
// label takes part in the comparison.
func (l Location) Equal(other Location) bool {
	return l.Label == other.Label
}

func (l Location) String() string {
	return l.Label
}

// Resort is a location the user has chosen to follow.
type Resort struct {
	Location      Location `json:"location"`
	WakeupEnabled bool     `json:"wakeup_enabled"`
}

// NewResort wraps a location with wakeup disabled.
func NewResort(loc Location) Resort {
	return Resort{Location: loc}
}

// Name is the display name, used for ordering.
func (r Resort) Name() string {
	return r.Location.Label
}

func (r Resort) String() string {
	return r.Name()
}

// CompareResorts orders resorts by display name.
func CompareResorts(a, b Resort) int {
	return cmp.Compare(a.Name(), b.Name())
}

// FindResort returns the resort in list whose location equals loc.
func FindResort(loc Location, list []Resort) (Resort, bool) {
	for _, r := range list {
		if loc.Equal(r.Location) {
			return r, true
		}
	}
	return Resort{}, false
}
