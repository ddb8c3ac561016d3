package alert

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/ski-report-service/internal/domain"
)

// Matcher decides whether a forecast calls for enough snow to alert on.
type Matcher struct {
	threshold domain.Threshold
}

func NewMatcher(threshold domain.Threshold) *Matcher {
	return &Matcher{threshold: threshold}
}

func (m *Matcher) Threshold() domain.Threshold {
	return m.threshold
}

// HasSnowAlert reports whether any alert expression matches the forecast
// description with an expected accumulation at or above the threshold.
func (m *Matcher) HasSnowAlert(w domain.Weather, exprs []*regexp.Regexp) bool {
	for _, re := range exprs {
		amount, ok := expectedAccumulation(re, w.Description)
		if !ok {
			continue
		}
		if m.threshold.Meets(float64(amount), w.Units) {
			return true
		}
	}
	return false
}

// expectedAccumulation applies re to desc and parses its last capture group.
// An unparsable group counts as zero.
func expectedAccumulation(re *regexp.Regexp, desc string) (int, bool) {
	match := re.FindStringSubmatch(desc)
	if match == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(match[len(match)-1]))
	if err != nil {
		return 0, true
	}
	return n, true
}
