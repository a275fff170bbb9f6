package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBroker   = "localhost:9092"
	testMapboxToken = "pk.test-token"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.CrashCSV)
	assert.Empty(t, cfg.CrimeCSV)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "raw-incidents", cfg.KafkaSourceTopic)
	assert.Equal(t, "risk-surface-cells", cfg.KafkaSinkTopic)
	assert.Equal(t, "saferoute", cfg.KafkaGroupID)
	assert.Equal(t, "data/risk_surface.json", cfg.SurfacePath)
	assert.Empty(t, cfg.GeoJSONPath)
	assert.Empty(t, cfg.TimePatternsPath)
	assert.Empty(t, cfg.SQLitePath)
	assert.Equal(t, "data/street_graph.json", cfg.GraphPath)
	assert.Empty(t, cfg.RebuildSchedule)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.Nil(t, cfg.MapboxBBox)
	assert.False(t, cfg.HasIncidentSource())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("CRASH_CSV", "crashes.csv")
	t.Setenv("CRIME_CSV", "crimes.csv")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("SURFACE_PATH", "out/surface.json")
	t.Setenv("GEOJSON_PATH", "out/grid.geojson")
	t.Setenv("TIME_PATTERNS_PATH", "out/patterns.json")
	t.Setenv("SQLITE_PATH", "out/surface.db")
	t.Setenv("GRAPH_PATH", "manhattan.osm")
	t.Setenv("REBUILD_SCHEDULE", "0 3 * * *")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("MAPBOX_BBOX", "-74.3, 40.4, -73.6, 41.0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "crashes.csv", cfg.CrashCSV)
	assert.Equal(t, "crimes.csv", cfg.CrimeCSV)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, "out/surface.json", cfg.SurfacePath)
	assert.Equal(t, "out/grid.geojson", cfg.GeoJSONPath)
	assert.Equal(t, "out/patterns.json", cfg.TimePatternsPath)
	assert.Equal(t, "out/surface.db", cfg.SQLitePath)
	assert.Equal(t, "manhattan.osm", cfg.GraphPath)
	assert.Equal(t, "0 3 * * *", cfg.RebuildSchedule)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1*time.Second, cfg.BatchFlushInterval)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.Equal(t, []float64{-74.3, 40.4, -73.6, 41.0}, cfg.MapboxBBox)
	assert.True(t, cfg.HasIncidentSource())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "not-a-duration"}, "SHUTDOWN_TIMEOUT"},
		{"negative shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, "SHUTDOWN_TIMEOUT"},
		{"batch size zero", map[string]string{"BATCH_SIZE": "0"}, "BATCH_SIZE"},
		{"batch size too large", map[string]string{"BATCH_SIZE": "9999"}, "BATCH_SIZE"},
		{"flush interval", map[string]string{"BATCH_FLUSH_INTERVAL": "not-a-duration"}, "BATCH_FLUSH_INTERVAL"},
		{"mapbox timeout", map[string]string{"MAPBOX_TIMEOUT": "bad"}, "MAPBOX_TIMEOUT"},
		{"mapbox without token", map[string]string{"MAPBOX_ENABLED": "true"}, "MAPBOX_TOKEN"},
		{"bbox arity", map[string]string{"MAPBOX_BBOX": "1,2,3"}, "MAPBOX_BBOX"},
		{"bbox number", map[string]string{"MAPBOX_BBOX": "a,2,3,4"}, "MAPBOX_BBOX"},
		{"bbox inverted", map[string]string{"MAPBOX_BBOX": "-73,40,-74,41"}, "MAPBOX_BBOX"},
		{"rebuild schedule", map[string]string{"REBUILD_SCHEDULE": "every tuesday"}, "REBUILD_SCHEDULE"},
		{"kafka without brokers", map[string]string{"KAFKA_ENABLED": "true", "KAFKA_BROKERS": " , "}, "KAFKA_BROKERS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_KafkaSettingsIgnoredWhenDisabled(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " , ")
	_, err := Load()
	require.NoError(t, err)
}

func TestLoad_MapboxTokenImpliesEnabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MapboxEnabled)
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CRASH_CSV=from-dotenv.csv\nLOG_LEVEL=warn\n"), 0o600))

	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("CRASH_CSV", "")
	os.Unsetenv("CRASH_CSV") //nolint:errcheck // restored by t.Setenv cleanup

	require.NoError(t, LoadDotEnv(path))
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv.csv", cfg.CrashCSV)
	assert.Equal(t, "error", cfg.LogLevel, "existing variables win")
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}
