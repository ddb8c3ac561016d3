package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/ski-report-service/internal/domain"
)

const defaultReportServers = "http://bettykrocks.com/skireport,http://wakemeski.com/skireport"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Report server configuration.
	ReportServers     []string
	DeviceID          string
	FetchTimeout      time.Duration
	FetchRateLimit    float64
	FetchBurst        int
	ServerInfoTTL     time.Duration
	LocationCacheSize int

	// Controller configuration.
	Resorts         []domain.Resort
	ResortDBPath    string
	ReloadInterval  time.Duration
	WakeupThreshold domain.Threshold

	// Alert configuration.
	AlertDBPath               string
	AlertThreshold            domain.Threshold
	AlertNotificationsEnabled bool

	// Kafka alert notifications.
	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaAlertTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}

	reloadInterval, err := parsePositiveDuration("RELOAD_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	serverInfoTTL, err := time.ParseDuration(sharedcfg.EnvOrDefault("SERVER_INFO_TTL", "0s"))
	if err != nil || serverInfoTTL < 0 {
		return nil, errors.New("invalid SERVER_INFO_TTL")
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("FETCH_RATE_LIMIT", "2"), 64)
	if err != nil || rateLimit <= 0 {
		return nil, errors.New("invalid FETCH_RATE_LIMIT: must be a positive number")
	}

	burst, err := parsePositiveInt("FETCH_BURST", 4)
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("LOCATION_CACHE_SIZE", 256)
	if err != nil {
		return nil, err
	}

	threshold, ok := domain.ParseThreshold(sharedcfg.EnvOrDefault("ALERT_THRESHOLD", "6,INCHES"))
	if !ok {
		return nil, errors.New("invalid ALERT_THRESHOLD: expected depth,UNITS")
	}

	wakeup, ok := domain.ParseThreshold(sharedcfg.EnvOrDefault("WAKEUP_THRESHOLD", "8,INCHES"))
	if !ok {
		return nil, errors.New("invalid WAKEUP_THRESHOLD: expected depth,UNITS")
	}

	resorts, err := ParseResorts(os.Getenv("RESORTS"))
	if err != nil {
		return nil, fmt.Errorf("invalid RESORTS: %w", err)
	}

	alertDBPath := sharedcfg.EnvOrDefault("ALERT_DB_PATH", "alerts.db")

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ReportServers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("REPORT_SERVERS", defaultReportServers)),
		DeviceID:          sharedcfg.EnvOrDefault("DEVICE_ID", "unknown"),
		FetchTimeout:      fetchTimeout,
		FetchRateLimit:    rateLimit,
		FetchBurst:        burst,
		ServerInfoTTL:     serverInfoTTL,
		LocationCacheSize: cacheSize,

		Resorts:         resorts,
		ResortDBPath:    sharedcfg.EnvOrDefault("RESORT_DB_PATH", alertDBPath),
		ReloadInterval:  reloadInterval,
		WakeupThreshold: wakeup,

		AlertDBPath:               alertDBPath,
		AlertThreshold:            threshold,
		AlertNotificationsEnabled: sharedcfg.EnvOrDefault("ALERT_NOTIFICATIONS_ENABLED", "true") == "true",

		KafkaEnabled:    os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic: sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "ski-alerts"),
	}

	if len(cfg.ReportServers) == 0 {
		return nil, errors.New("REPORT_SERVERS is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaAlertTopic == "" {
		return nil, errors.New("KAFKA_ALERT_TOPIC is required")
	}

	return cfg, nil
}

// ParseResorts reads a "Label=path;Label=path" list. Empty input is an empty list.
func ParseResorts(s string) ([]domain.Resort, error) {
	var resorts []domain.Resort
	for _, item := range strings.Split(s, ";") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		label, path, ok := domain.SplitKeyValue(item)
		if !ok {
			return nil, fmt.Errorf("entry %q is not Label=path", item)
		}
		loc, err := domain.NewLocation(label, path)
		if err != nil {
			return nil, err
		}
		resorts = append(resorts, domain.NewResort(loc))
	}
	return resorts, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
