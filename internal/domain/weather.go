package domain

import "time"

// Weather is one forecast entry embedded in a report.
type Weather struct {
	When        string    `json:"when"`
	Exact       time.Time `json:"exact"`
	Description string    `json:"description"`
	Units       SnowUnits `json:"units"`
}

// NewWeather builds a forecast entry. A zero exactUnix leaves Exact unset.
func NewWeather(when string, exactUnix int64, desc string, units SnowUnits) Weather {
	w := Weather{When: when, Description: desc, Units: units}
	if exactUnix != 0 {
		w.Exact = time.Unix(exactUnix, 0).UTC()
	}
	return w
}
