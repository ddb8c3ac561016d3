package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrNoConnection is the display text used when a fetch fails because the
// report server could not be reached at all.
const ErrNoConnection = "No network connection available"

// Report is the parsed result of one resort fetch.
//
// A Report is either successful (both error fields empty) or errored. Errored
// reports carry no measurements; see HasErrors.
type Report struct {
	Resort Resort `json:"resort"`

	Location          string   `json:"location,omitempty"`
	Date              string   `json:"date,omitempty"`
	WindAvg           string   `json:"wind_avg,omitempty"`
	TrailsOpen        int      `json:"trails_open"`
	TrailsTotal       int      `json:"trails_total"`
	TrailsPercentOpen string   `json:"trails_percent_open,omitempty"`
	LiftsOpen         int      `json:"lifts_open"`
	LiftsTotal        int      `json:"lifts_total"`
	SnowTotals        []string `json:"snow_totals"`
	DailySnow         []string `json:"daily_snow"`
	TempReadings      []string `json:"temp_readings"`
	FreshSnow         string   `json:"fresh_snow,omitempty"`
	SnowUnitsText     string   `json:"snow_units,omitempty"`
	SnowConditions    string   `json:"snow_conditions,omitempty"`
	Latitude          string   `json:"latitude,omitempty"`
	Longitude         string   `json:"longitude,omitempty"`
	LocationComments  string   `json:"location_comments,omitempty"`

	DetailsURL     string `json:"details_url,omitempty"`
	LocationURL    string `json:"location_url,omitempty"`
	WeatherURL     string `json:"weather_url,omitempty"`
	WeatherIcon    string `json:"weather_icon,omitempty"`
	FreshSourceURL string `json:"fresh_source_url,omitempty"`
	RequestURL     string `json:"request_url,omitempty"`

	Weather    []Weather  `json:"weather"`
	ServerInfo ServerInfo `json:"server_info"`

	LocalizedError string `json:"localized_error,omitempty"`
	ServerError    string `json:"server_error,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

func newReport(resort Resort) Report {
	return Report{
		Resort:       resort,
		SnowTotals:   []string{},
		DailySnow:    []string{},
		TempReadings: []string{},
		Weather:      []Weather{},
		ServerInfo:   UnknownServerInfo(),
		FetchedAt:    clock.Now(),
	}
}

// NewErrorReport builds an errored report without any parsing. msg is
// treated as display-ready text.
func NewErrorReport(resort Resort, msg string) Report {
	r := newReport(resort)
	r.LocalizedError = msg
	return r
}

// HasErrors reports whether either error field is set.
func (r Report) HasErrors() bool {
	return r.LocalizedError != "" || r.ServerError != ""
}

// HasServerError reports whether the server itself signalled a failure.
func (r Report) HasServerError() bool {
	return r.ServerError != ""
}

// NonLocalizedError joins the local and server-provided error texts.
func (r Report) NonLocalizedError() string {
	return r.LocalizedError + r.ServerError
}

// Units decodes the snow.units value.
func (r Report) Units() SnowUnits {
	return ParseSnowUnits(r.SnowUnitsText)
}

// FreshSnowTotal is the fresh snow rounded to the nearest whole unit, or -1
// when the report has no usable value.
func (r Report) FreshSnowTotal() int {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.FreshSnow), 32)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return -1
	}
	return int(math.Floor(v + 0.5))
}

func (r Report) HasFreshSnowTotal() bool {
	return r.FreshSnowTotal() >= 0
}

// MeetsPreference reports whether the fresh snow total reaches t. Reports
// without a fresh snow value never do.
func (r Report) MeetsPreference(t Threshold) bool {
	if !r.HasFreshSnowTotal() {
		return false
	}
	return t.Meets(float64(r.FreshSnowTotal()), r.Units())
}

// FreshString renders the fresh snow total with its unit, or "N/A".
func (r Report) FreshString() string {
	if !r.HasFreshSnowTotal() {
		return "N/A"
	}
	unit := ` "`
	if r.Units() == Centimeters {
		unit = " cm"
	}
	return strconv.Itoa(r.FreshSnowTotal()) + unit
}

// TrailsString renders open/total trails, falling back to the open count,
// then the open percentage, then "n/a".
func (r Report) TrailsString() string {
	switch {
	case r.TrailsTotal > 0:
		return strconv.Itoa(r.TrailsOpen) + "/" + strconv.Itoa(r.TrailsTotal)
	case r.TrailsOpen > 0:
		return strconv.Itoa(r.TrailsOpen)
	case r.TrailsPercentOpen != "":
		return r.TrailsPercentOpen
	default:
		return "n/a"
	}
}

func (r Report) LiftsString() string {
	switch {
	case r.LiftsTotal > 0:
		return strconv.Itoa(r.LiftsOpen) + "/" + strconv.Itoa(r.LiftsTotal)
	case r.LiftsOpen > 0:
		return strconv.Itoa(r.LiftsOpen)
	default:
		return "n/a"
	}
}

// SnowDepthsString joins the snow depth readings for display.
func (r Report) SnowDepthsString() string {
	return strings.Join(r.SnowTotals, ", ")
}

// DailyDetails joins the daily snow readings followed by the conditions text.
func (r Report) DailyDetails() string {
	parts := make([]string, 0, 2)
	if len(r.DailySnow) > 0 {
		parts = append(parts, strings.Join(r.DailySnow, ", "))
	}
	if r.SnowConditions != "" {
		parts = append(parts, r.SnowConditions)
	}
	return strings.Join(parts, " ")
}

func (r Report) HasGeo() bool {
	return r.Latitude != "" && r.Longitude != ""
}

// GeoURI returns a geo: URI for the resort coordinates.
func (r Report) GeoURI() string {
	return "geo:" + r.Latitude + "," + r.Longitude
}

func (r Report) HasLocationComments() bool {
	return r.LocationComments != ""
}

// clearMeasurements resets everything except identity, request details,
// server metadata and the error fields.
func (r *Report) clearMeasurements() {
	cleared := newReport(r.Resort)
	cleared.RequestURL = r.RequestURL
	cleared.ServerInfo = r.ServerInfo
	cleared.LocalizedError = r.LocalizedError
	cleared.ServerError = r.ServerError
	cleared.FetchedAt = r.FetchedAt
	*r = cleared
}
