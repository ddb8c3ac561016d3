package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// SnowUnits is the measurement unit of a snow amount.
type SnowUnits int

const (
	Inches SnowUnits = iota
	Centimeters
)

// CentimetersPerInch is the only unit conversion the service performs.
const CentimetersPerInch = 2.54

// ParseSnowUnits maps the "snow.units" value: "inches" (any case) is inches,
// everything else is centimeters.
func ParseSnowUnits(s string) SnowUnits {
	if strings.EqualFold(strings.TrimSpace(s), "inches") {
		return Inches
	}
	return Centimeters
}

func (u SnowUnits) String() string {
	if u == Centimeters {
		return "CENTIMETERS"
	}
	return "INCHES"
}

// Abbreviation is the short display suffix.
func (u SnowUnits) Abbreviation() string {
	if u == Centimeters {
		return "cm"
	}
	return "in"
}

func (u SnowUnits) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// ToCentimeters normalizes an amount expressed in u.
func ToCentimeters(amount float64, u SnowUnits) float64 {
	if u == Inches {
		return amount * CentimetersPerInch
	}
	return amount
}

// Threshold is a user-configured snow depth.
type Threshold struct {
	Depth int
	Units SnowUnits
}

// DefaultThreshold is used when no setting has been stored.
var DefaultThreshold = Threshold{Depth: 1, Units: Inches}

// ParseThreshold reads the persisted "depth,UNITS" form. It returns
// DefaultThreshold and false when the text cannot be parsed.
func ParseThreshold(s string) (Threshold, bool) {
	depthStr, unitStr, found := strings.Cut(s, ",")
	if !found {
		return DefaultThreshold, false
	}
	depth, err := strconv.Atoi(strings.TrimSpace(depthStr))
	if err != nil {
		return DefaultThreshold, false
	}
	units := Inches
	if strings.TrimSpace(unitStr) == Centimeters.String() {
		units = Centimeters
	}
	return Threshold{Depth: depth, Units: units}, true
}

// String returns the persisted form accepted by ParseThreshold.
func (t Threshold) String() string {
	return fmt.Sprintf("%d,%s", t.Depth, t.Units)
}

// Centimeters is the threshold normalized to centimeters.
func (t Threshold) Centimeters() float64 {
	return ToCentimeters(float64(t.Depth), t.Units)
}

// Meets reports whether amount (in units) is at or above the threshold.
func (t Threshold) Meets(amount float64, units SnowUnits) bool {
	return ToCentimeters(amount, units) >= t.Centimeters()
}
