package wakemeski

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/ski-report-service/internal/domain"
	"github.com/couchcryptid/ski-report-service/internal/observability"
)

// ReportLoader fetches and parses resort reports from the selected server.
type ReportLoader struct {
	server  *Server
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewReportLoader creates a loader on top of server.
func NewReportLoader(server *Server, metrics *observability.Metrics, logger *slog.Logger) *ReportLoader {
	return &ReportLoader{server: server, metrics: metrics, logger: logger}
}

// LoadReport fetches the report for resort. It always returns a Report;
// transport failures produce an errored one.
func (l *ReportLoader) LoadReport(ctx context.Context, resort domain.Resort) domain.Report {
	return l.load(ctx, resort, "")
}

// LoadReportNoCache is LoadReport with server-side caching bypassed.
func (l *ReportLoader) LoadReportNoCache(ctx context.Context, resort domain.Resort) domain.Report {
	return l.load(ctx, resort, "&nocache=1")
}

func (l *ReportLoader) load(ctx context.Context, resort domain.Resort, suffix string) domain.Report {
	path := "/" + resort.Location.Path + suffix
	requestURL := l.server.FetchURL(ctx, path)

	start := time.Now()
	lines, err := l.server.FetchWithID(ctx, path)
	l.metrics.ReportFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		l.metrics.ReportFetches.WithLabelValues("error").Inc()
		l.logger.Warn("report fetch failed", "resort", resort.Name(), "url", requestURL, "error", err)
		r := domain.NewErrorReport(resort, errorMessage(err))
		r.RequestURL = requestURL
		return r
	}

	l.metrics.ReportFetches.WithLabelValues("success").Inc()
	r := domain.ParseReport(lines, resort, l.server.Info(ctx), l.logger.With("resort", resort.Name()))
	r.RequestURL = requestURL
	return r
}
