package domain

import "regexp"

// UnknownVersion marks a version that was not reported or could not be parsed.
const UnknownVersion = -1

// ServerInfo is the metadata a report server publishes about itself.
type ServerInfo struct {
	ServerVersion       int `json:"server_version"`
	MinSupportedVersion int `json:"min_supported_version"`
	LatestVersion       int `json:"latest_version"`

	// AlertExpressions are applied to forecast descriptions; the last
	// capture group of a match is the expected accumulation.
	AlertExpressions []*regexp.Regexp `json:"-"`
}

// UnknownServerInfo is the snapshot used when no server could be reached.
func UnknownServerInfo() ServerInfo {
	return ServerInfo{
		ServerVersion:       UnknownVersion,
		MinSupportedVersion: UnknownVersion,
		LatestVersion:       UnknownVersion,
	}
}

// AlertPatterns returns the source text of the compiled alert expressions.
func (s ServerInfo) AlertPatterns() []string {
	out := make([]string, 0, len(s.AlertExpressions))
	for _, re := range s.AlertExpressions {
		out = append(out, re.String())
	}
	return out
}
