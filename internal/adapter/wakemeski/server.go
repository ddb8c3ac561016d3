package wakemeski

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ski-report-service/internal/domain"
	"github.com/couchcryptid/ski-report-service/internal/observability"
)

const serverInfoPath = "/server_info.php"

// Server selects the best report server from a list of candidates and
// remembers the choice. The selection is kept until Reset or, when a TTL is
// configured, until it expires.
type Server struct {
	client     *Client
	candidates []string
	deviceID   string
	ttl        time.Duration
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu         sync.Mutex
	selected   bool
	url        string
	info       domain.ServerInfo
	selectedAt time.Time
}

// ServerOptions configures a Server.
type ServerOptions struct {
	Candidates []string
	DeviceID   string
	TTL        time.Duration // zero keeps the selection until Reset
	Clock      clockwork.Clock
}

// NewServer creates a selector over opts.Candidates, in preference order.
func NewServer(client *Client, opts ServerOptions, metrics *observability.Metrics, logger *slog.Logger) *Server {
	clk := opts.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	candidates := make([]string, 0, len(opts.Candidates))
	for _, c := range opts.Candidates {
		candidates = append(candidates, strings.TrimRight(c, "/"))
	}
	deviceID := opts.DeviceID
	if deviceID == "" {
		deviceID = "unknown"
	}
	return &Server{
		client:     client,
		candidates: candidates,
		deviceID:   deviceID,
		ttl:        opts.TTL,
		clock:      clk,
		metrics:    metrics,
		logger:     logger,
	}
}

// URL returns the selected server root, selecting one first if needed.
func (s *Server) URL(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureSelectedLocked(ctx)
	return s.url
}

// Info returns the metadata of the selected server.
func (s *Server) Info(ctx context.Context) domain.ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureSelectedLocked(ctx)
	return s.info
}

// Reset forgets the current selection.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = false
	s.url = ""
	s.info = domain.ServerInfo{}
}

// FetchURL returns the absolute URL for path on the selected server.
func (s *Server) FetchURL(ctx context.Context, path string) string {
	return s.URL(ctx) + path
}

// Fetch retrieves path from the selected server.
func (s *Server) Fetch(ctx context.Context, path string) ([]string, error) {
	return s.client.FetchLines(ctx, s.FetchURL(ctx, path))
}

// FetchWithID retrieves path with the device id appended as a query parameter.
func (s *Server) FetchWithID(ctx context.Context, path string) ([]string, error) {
	return s.Fetch(ctx, s.withID(path))
}

func (s *Server) withID(path string) string {
	return path + "&id=" + url.QueryEscape(s.deviceID)
}

func (s *Server) ensureSelectedLocked(ctx context.Context) {
	if s.selected && (s.ttl <= 0 || s.clock.Since(s.selectedAt) < s.ttl) {
		return
	}
	s.url, s.info = s.findServerURL(ctx)
	s.selected = true
	s.selectedAt = s.clock.Now()
}

// findServerURL queries every candidate and keeps the one reporting the
// highest version. Ties keep the earlier candidate. When no candidate
// reports a version the first one is used with unknown metadata.
func (s *Server) findServerURL(ctx context.Context) (string, domain.ServerInfo) {
	if len(s.candidates) == 0 {
		return "", domain.UnknownServerInfo()
	}

	bestURL := s.candidates[0]
	best := domain.UnknownServerInfo()
	for _, candidate := range s.candidates {
		info := s.fetchServerInfo(ctx, candidate)
		if info.ServerVersion != domain.UnknownVersion && info.ServerVersion > best.ServerVersion {
			bestURL = candidate
			best = info
		}
	}

	outcome := "selected"
	if best.ServerVersion == domain.UnknownVersion {
		outcome = "default"
	}
	s.metrics.ServerSelections.WithLabelValues(outcome).Inc()
	s.logger.Info("report server selected", "url", bestURL, "version", best.ServerVersion, "outcome", outcome)
	return bestURL, best
}

func (s *Server) fetchServerInfo(ctx context.Context, base string) domain.ServerInfo {
	lines, err := s.client.FetchLines(ctx, base+serverInfoPath)
	if err != nil {
		s.logger.Info("server info unavailable", "url", base, "error", err)
		return domain.UnknownServerInfo()
	}
	return domain.ParseServerInfo(lines, s.logger)
}
