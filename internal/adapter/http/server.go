package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/ski-report-service/internal/alert"
	"github.com/couchcryptid/ski-report-service/internal/domain"
)

// Reports is the report controller as seen by the HTTP layer.
type Reports interface {
	sharedobs.ReadinessChecker
	GetSortedReportList() []domain.Report
	IsBusy() bool
	Pending() int
	ForceLoadReports(background bool)
	AddResort(r domain.Resort)
	RemoveResort(r domain.Resort)
	RemoveAllReportsAndAlerts(ctx context.Context) error
}

// Resorts is the followed-resort list.
type Resorts interface {
	Resorts() []domain.Resort
	Find(label string) (domain.Resort, bool)
	Add(ctx context.Context, r domain.Resort) (bool, error)
	Remove(ctx context.Context, loc domain.Location) (domain.Resort, bool, error)
	SetWakeup(ctx context.Context, label string, enabled bool) (domain.Resort, bool, error)
}

// AlertView reads and acknowledges stored alerts.
type AlertView interface {
	AlertResorts(ctx context.Context) ([]alert.AlertResort, error)
	Alerts(ctx context.Context, resortID int64) ([]alert.Alert, error)
	Acknowledge(ctx context.Context) (int64, error)
	Close() error
}

// AlertOpener opens an AlertView for the duration of one request.
type AlertOpener func(ctx context.Context) (AlertView, error)

// LocationFinder lists regions and the locations inside them.
type LocationFinder interface {
	Regions(ctx context.Context) ([]string, error)
	Locations(ctx context.Context, region string) ([]domain.Location, error)
}

// Deps are the collaborators behind the JSON endpoints.
type Deps struct {
	Reports Reports
	Resorts Resorts
	Alerts  AlertOpener
	Finder  LocationFinder
}

// Server exposes health, readiness, metrics and the report JSON API.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the API routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Reports))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /reports", s.handleReports)
	mux.HandleFunc("POST /reports/reload", s.handleReload)
	mux.HandleFunc("DELETE /reports", s.handleRemoveAll)

	mux.HandleFunc("GET /resorts", s.handleResorts)
	mux.HandleFunc("POST /resorts", s.handleAddResort)
	mux.HandleFunc("GET /resorts/{label}", s.handleGetResort)
	mux.HandleFunc("PATCH /resorts/{label}", s.handleUpdateResort)
	mux.HandleFunc("DELETE /resorts/{label}", s.handleRemoveResort)

	mux.HandleFunc("GET /alerts", s.handleAlerts)
	mux.HandleFunc("POST /alerts/ack", s.handleAcknowledge)

	mux.HandleFunc("GET /regions", s.handleRegions)
	mux.HandleFunc("GET /regions/{region}/locations", s.handleLocations)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type reportsResponse struct {
	Busy    bool            `json:"busy"`
	Pending int             `json:"pending"`
	Reports []domain.Report `json:"reports"`
}

func (s *Server) handleReports(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, reportsResponse{
		Busy:    s.deps.Reports.IsBusy(),
		Pending: s.deps.Reports.Pending(),
		Reports: s.deps.Reports.GetSortedReportList(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, _ *http.Request) {
	s.deps.Reports.ForceLoadReports(false)
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "reload queued"})
}

func (s *Server) handleRemoveAll(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Reports.RemoveAllReportsAndAlerts(r.Context()); err != nil {
		s.serverError(w, "remove all reports failed", err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleResorts(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Resorts.Resorts())
}

type addResortRequest struct {
	Label         string `json:"label"`
	Path          string `json:"path"`
	WakeupEnabled bool   `json:"wakeup_enabled"`
}

func (s *Server) handleAddResort(w http.ResponseWriter, r *http.Request) {
	var req addResortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	loc, err := domain.NewLocation(req.Label, req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if loc.Path == "" {
		writeError(w, http.StatusBadRequest, "location path is required")
		return
	}

	resort := domain.Resort{Location: loc, WakeupEnabled: req.WakeupEnabled}
	added, err := s.deps.Resorts.Add(r.Context(), resort)
	if err != nil {
		s.serverError(w, "save resort failed", err)
		return
	}
	if !added {
		writeError(w, http.StatusConflict, "resort already exists")
		return
	}
	s.deps.Reports.AddResort(resort)
	sharedobs.WriteJSON(w, http.StatusAccepted, resort)
}

func (s *Server) handleRemoveResort(w http.ResponseWriter, r *http.Request) {
	resort, ok, err := s.deps.Resorts.Remove(r.Context(), domain.Location{Label: r.PathValue("label")})
	if err != nil {
		s.serverError(w, "delete resort failed", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "resort not found")
		return
	}
	s.deps.Reports.RemoveResort(resort)
	sharedobs.WriteJSON(w, http.StatusAccepted, resort)
}

func (s *Server) handleGetResort(w http.ResponseWriter, r *http.Request) {
	resort, ok := s.deps.Resorts.Find(r.PathValue("label"))
	if !ok {
		writeError(w, http.StatusNotFound, "resort not found")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, resort)
}

type updateResortRequest struct {
	WakeupEnabled *bool `json:"wakeup_enabled"`
}

// handleUpdateResort changes the wake-up flag. The next load carries it.
func (s *Server) handleUpdateResort(w http.ResponseWriter, r *http.Request) {
	var req updateResortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WakeupEnabled == nil {
		writeError(w, http.StatusBadRequest, "wakeup_enabled is required")
		return
	}
	resort, ok, err := s.deps.Resorts.SetWakeup(r.Context(), r.PathValue("label"), *req.WakeupEnabled)
	if err != nil {
		s.serverError(w, "update resort failed", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "resort not found")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, resort)
}

type alertResortResponse struct {
	alert.AlertResort
	Items []alert.Alert `json:"items"`
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Alerts(r.Context())
	if err != nil {
		s.serverError(w, "open alerts failed", err)
		return
	}
	defer view.Close()

	resorts, err := view.AlertResorts(r.Context())
	if err != nil {
		s.serverError(w, "list alert resorts failed", err)
		return
	}

	out := make([]alertResortResponse, 0, len(resorts))
	for _, ar := range resorts {
		items, err := view.Alerts(r.Context(), ar.ID)
		if err != nil {
			s.serverError(w, "list alerts failed", err)
			return
		}
		out = append(out, alertResortResponse{AlertResort: ar, Items: items})
	}
	sharedobs.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Alerts(r.Context())
	if err != nil {
		s.serverError(w, "open alerts failed", err)
		return
	}
	defer view.Close()

	n, err := view.Acknowledge(r.Context())
	if err != nil {
		s.serverError(w, "acknowledge alerts failed", err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]int64{"acknowledged": n})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.deps.Finder.Regions(r.Context())
	if err != nil {
		s.upstreamError(w, "list regions failed", err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, regions)
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	region := r.PathValue("region")
	locations, err := s.deps.Finder.Locations(r.Context(), region)
	if err != nil {
		s.upstreamError(w, "list locations failed", err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, locations)
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) upstreamError(w http.ResponseWriter, msg string, err error) {
	s.logger.Warn(msg, "error", err)
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
