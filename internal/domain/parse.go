package domain

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

const (
	forecastWhenPrefix  = "weather.forecast.when."
	forecastDescPrefix  = "weather.forecast.desc."
	forecastExactPrefix = "weather.forecast.exact."
	alertRegexPrefix    = "alert.regex"

	// forecastSlots is the number of single-digit forecast indexes.
	forecastSlots = 10
)

// SplitKeyValue splits a protocol line on its first '=' and trims both
// sides. ok is false when the line has no separator or either trimmed side
// is empty.
func SplitKeyValue(line string) (key, value string, ok bool) {
	k, v, found := strings.Cut(line, "=")
	k, v = strings.TrimSpace(k), strings.TrimSpace(v)
	if !found || k == "" || v == "" {
		return "", "", false
	}
	return k, v, true
}

type forecastSlot struct {
	when  string
	desc  string
	exact int64
}

// ParseReport converts the lines of a report document into a Report for
// resort. It never fails: malformed lines and values are logged and skipped.
// info is attached to the result as the server metadata snapshot.
func ParseReport(lines []string, resort Resort, info ServerInfo, logger *slog.Logger) Report {
	r := newReport(resort)
	r.ServerInfo = info

	var slots [forecastSlots]forecastSlot
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := SplitKeyValue(line)
		if !ok {
			logger.Warn("invalid report line", "resort", resort.Name(), "line", line)
			continue
		}

		switch key {
		case "location":
			r.Location = value
		case "date":
			r.Date = value
		case "wind.avg":
			r.WindAvg = value
		case "details.url":
			r.DetailsURL = value
		case "location.info":
			r.LocationURL = value
		case "location.comments":
			r.LocationComments = value
		case "location.latitude":
			r.Latitude = value
		case "location.longitude":
			r.Longitude = value
		case "trails.open":
			r.TrailsOpen = parseCount(key, value, logger)
		case "trails.total":
			r.TrailsTotal = parseCount(key, value, logger)
		case "trails.percent.open":
			r.TrailsPercentOpen = value
		case "lifts.open":
			r.LiftsOpen = parseCount(key, value, logger)
		case "lifts.total":
			r.LiftsTotal = parseCount(key, value, logger)
		case "weather.url":
			r.WeatherURL = value
		case "weather.icon":
			r.WeatherIcon = value
		case "snow.conditions":
			r.SnowConditions = value
		case "snow.fresh":
			r.FreshSnow = value
		case "snow.units":
			r.SnowUnitsText = value
		case "snow.total":
			r.SnowTotals = strings.Fields(value)
		case "snow.daily":
			r.DailySnow = strings.Fields(value)
		case "temp.readings":
			r.TempReadings = strings.Fields(value)
		case "fresh.source.url":
			r.FreshSourceURL = value
		case "err.msg":
			r.ServerError = value
		case "err.msg.localized":
			r.LocalizedError = value
		case "cache.found":
			// marker only
		default:
			if !parseForecastKey(&slots, key, value, logger) {
				logger.Info("unknown report key", "resort", resort.Name(), "key", key)
			}
		}
	}

	units := r.Units()
	for _, s := range slots {
		if s.when != "" && s.desc != "" {
			r.Weather = append(r.Weather, NewWeather(s.when, s.exact, s.desc, units))
		}
	}

	if r.HasErrors() {
		r.clearMeasurements()
	}
	return r
}

// parseForecastKey stores a forecast slot value. It returns false when key
// is not a forecast key at all.
func parseForecastKey(slots *[forecastSlots]forecastSlot, key, value string, logger *slog.Logger) bool {
	var prefix string
	switch {
	case strings.HasPrefix(key, forecastWhenPrefix):
		prefix = forecastWhenPrefix
	case strings.HasPrefix(key, forecastDescPrefix):
		prefix = forecastDescPrefix
	case strings.HasPrefix(key, forecastExactPrefix):
		prefix = forecastExactPrefix
	default:
		return false
	}

	idx, ok := forecastIndex(strings.TrimPrefix(key, prefix))
	if !ok {
		logger.Warn("invalid forecast index", "key", key)
		return true
	}

	switch prefix {
	case forecastWhenPrefix:
		slots[idx].when = value
	case forecastDescPrefix:
		slots[idx].desc = value
	case forecastExactPrefix:
		exact, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			logger.Warn("invalid forecast time", "key", key, "value", value)
			return true
		}
		slots[idx].exact = exact
	}
	return true
}

func forecastIndex(s string) (int, bool) {
	if len(s) != 1 || s[0] < '0' || s[0] > '9' {
		return 0, false
	}
	return int(s[0] - '0'), true
}

// parseCount parses an integer field. Empty values and "n/a" are zero
// without a warning; anything else unparsable is zero with one.
func parseCount(key, value string, logger *slog.Logger) int {
	return parseIntOr(key, value, 0, logger)
}

func parseIntOr(key, value string, def int, logger *slog.Logger) int {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "n/a") {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		logger.Warn("invalid integer value", "key", key, "value", value)
		return def
	}
	return v
}

// ParseServerInfo converts a server metadata document. Missing or
// unparsable versions are UnknownVersion. Alert expressions that do not
// compile are logged and left out.
func ParseServerInfo(lines []string, logger *slog.Logger) ServerInfo {
	info := UnknownServerInfo()
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := SplitKeyValue(line)
		if !ok {
			logger.Warn("invalid server info line", "line", line)
			continue
		}

		switch {
		case key == "server.version":
			info.ServerVersion = parseIntOr(key, value, UnknownVersion, logger)
		case key == "ap.min.supported.version":
			info.MinSupportedVersion = parseIntOr(key, value, UnknownVersion, logger)
		case key == "ap.latest.version":
			info.LatestVersion = parseIntOr(key, value, UnknownVersion, logger)
		case strings.HasPrefix(key, alertRegexPrefix):
			re, err := regexp.Compile(value)
			if err != nil {
				logger.Warn("invalid alert expression", "key", key, "error", err)
				continue
			}
			info.AlertExpressions = append(info.AlertExpressions, re)
		default:
			logger.Debug("unknown server info key", "key", key)
		}
	}
	return info
}
