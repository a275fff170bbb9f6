package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Incident inputs.
	CrashCSV string
	CrimeCSV string

	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string

	BatchSize          int
	BatchFlushInterval time.Duration

	// Surface outputs. Empty optional paths disable that export.
	SurfacePath      string
	GeoJSONPath      string
	TimePatternsPath string
	SQLitePath       string

	// Routing.
	GraphPath       string
	RebuildSchedule string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	// MapboxBBox is minLng,minLat,maxLng,maxLat, or nil for no restriction.
	MapboxBBox []float64
}

// LoadDotEnv reads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s"))
	if err != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxBBox, err := parseBBox(os.Getenv("MAPBOX_BBOX"))
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		CrashCSV: os.Getenv("CRASH_CSV"),
		CrimeCSV: os.Getenv("CRIME_CSV"),

		KafkaEnabled:     os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic: sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-incidents"),
		KafkaSinkTopic:   sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "risk-surface-cells"),
		KafkaGroupID:     sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "saferoute"),

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		SurfacePath:      sharedcfg.EnvOrDefault("SURFACE_PATH", "data/risk_surface.json"),
		GeoJSONPath:      os.Getenv("GEOJSON_PATH"),
		TimePatternsPath: os.Getenv("TIME_PATTERNS_PATH"),
		SQLitePath:       os.Getenv("SQLITE_PATH"),

		GraphPath:       sharedcfg.EnvOrDefault("GRAPH_PATH", "data/street_graph.json"),
		RebuildSchedule: os.Getenv("REBUILD_SCHEDULE"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
		MapboxBBox:      mapboxBBox,
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}
	if cfg.SurfacePath == "" {
		return nil, errors.New("SURFACE_PATH is required")
	}
	if cfg.RebuildSchedule != "" {
		if _, err := cron.ParseStandard(cfg.RebuildSchedule); err != nil {
			return nil, fmt.Errorf("invalid REBUILD_SCHEDULE: %w", err)
		}
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// HasIncidentSource reports whether any CSV file or Kafka input is configured.
func (c *Config) HasIncidentSource() bool {
	return c.CrashCSV != "" || c.CrimeCSV != "" || c.KafkaEnabled
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

// parseBBox reads "minLng,minLat,maxLng,maxLat". Empty input yields nil.
func parseBBox(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, errors.New("invalid MAPBOX_BBOX: want minLng,minLat,maxLng,maxLat")
	}
	box := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAPBOX_BBOX: %w", err)
		}
		box[i] = v
	}
	if box[0] >= box[2] || box[1] >= box[3] {
		return nil, errors.New("invalid MAPBOX_BBOX: min must be below max")
	}
	return box, nil
}
