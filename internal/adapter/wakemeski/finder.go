package wakemeski

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/couchcryptid/ski-report-service/internal/domain"
)

const locationFinderPath = "/location_finder.php"

// Finder lists the regions and locations a report server knows about.
type Finder struct {
	server *Server
	logger *slog.Logger
}

func NewFinder(server *Server, logger *slog.Logger) *Finder {
	return &Finder{server: server, logger: logger}
}

// Regions returns the sorted region names.
func (f *Finder) Regions(ctx context.Context) ([]string, error) {
	lines, err := f.server.Fetch(ctx, locationFinderPath)
	if err != nil {
		return nil, fmt.Errorf("fetch regions: %w", err)
	}
	regions := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			regions = append(regions, line)
		}
	}
	slices.Sort(regions)
	return regions, nil
}

// Locations returns the locations of region, sorted by their source line.
// Lines that are not "label = path" are logged and skipped.
func (f *Finder) Locations(ctx context.Context, region string) ([]domain.Location, error) {
	lines, err := f.server.FetchWithID(ctx, locationFinderPath+"?region="+url.QueryEscape(region))
	if err != nil {
		return nil, fmt.Errorf("fetch locations for %s: %w", region, err)
	}
	slices.Sort(lines)

	locations := make([]domain.Location, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		label, path, ok := domain.SplitKeyValue(line)
		if !ok {
			f.logger.Warn("bad location line", "region", region, "line", line)
			continue
		}
		loc, err := domain.NewLocation(label, path)
		if err != nil {
			f.logger.Warn("bad location line", "region", region, "line", line, "error", err)
			continue
		}
		locations = append(locations, loc)
	}
	return locations, nil
}
