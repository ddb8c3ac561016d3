package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v2"

	kafkaadapter "github.com/couchcryptid/ski-report-service/internal/adapter/kafka"
	"github.com/couchcryptid/ski-report-service/internal/adapter/wakemeski"
	"github.com/couchcryptid/ski-report-service/internal/alert"
	"github.com/couchcryptid/ski-report-service/internal/config"
	"github.com/couchcryptid/ski-report-service/internal/observability"
)

// service bundles the collaborators shared by every command.
type service struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	server  *wakemeski.Server
	loader  *wakemeski.ReportLoader
	finder  *wakemeski.CachedFinder
	kafka   *kafkaadapter.Writer
}

func newService(cfg *config.Config) *service {
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := wakemeski.NewClient(cfg.FetchTimeout, cfg.FetchRateLimit, cfg.FetchBurst, logger)
	server := wakemeski.NewServer(client, wakemeski.ServerOptions{
		Candidates: cfg.ReportServers,
		DeviceID:   cfg.DeviceID,
		TTL:        cfg.ServerInfoTTL,
	}, metrics, logger)

	s := &service{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		server:  server,
		loader:  wakemeski.NewReportLoader(server, metrics, logger),
		finder:  wakemeski.NewCachedFinder(wakemeski.NewFinder(server, logger), cfg.LocationCacheSize, metrics),
	}

	if cfg.KafkaEnabled {
		s.kafka = kafkaadapter.NewWriter(cfg, nil, logger)
		logger.Info("kafka alert notifications enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAlertTopic)
	} else {
		logger.Info("kafka alert notifications disabled")
	}
	return s
}

// setup loads configuration and builds the service for a command.
func setup() (*service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cli.Exit("failed to load config: "+err.Error(), ExitUsageError)
	}
	return newService(cfg), nil
}

func (s *service) notifier() alert.Notifier {
	logNotifier := alert.NewLogNotifier(s.logger)
	if s.kafka == nil {
		return logNotifier
	}
	return alert.MultiNotifier{logNotifier, s.kafka}
}

// openAlerts opens the alert store for one unit of work.
func (s *service) openAlerts(_ context.Context) (*alert.Manager, error) {
	return alert.Open(alert.Options{
		DBPath:               s.cfg.AlertDBPath,
		Threshold:            s.cfg.AlertThreshold,
		NotificationsEnabled: s.cfg.AlertNotificationsEnabled,
		Notifier:             s.notifier(),
	}, s.metrics, s.logger)
}

func (s *service) close() {
	if s.kafka == nil {
		return
	}
	if err := s.kafka.Close(); err != nil {
		s.logger.Error("kafka writer close error", "error", err)
	}
}
