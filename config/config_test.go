package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/factor/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "factor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, config.DriverMemory, cfg.Store.Driver)
	assert.Equal(t, config.DestinationNone, cfg.Events.Destination)
	assert.Empty(t, cfg.Events.KafkaBrokers)
	assert.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())
	assert.Equal(t, time.Minute, cfg.Scheduler.DueScanInterval)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
server:
  address: ":9090"
  base_path: /factor
store:
  driver: postgres
  dsn: postgres://factor@localhost/factor
events:
  destination: kafka
  kafka_brokers: ["kafka-1:9092", "kafka-2:9092"]
scheduler:
  due_scan_interval: 30s
log:
  level: debug
  format: json
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "/factor", cfg.Server.BasePath)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, config.DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, "factor.invoice", cfg.Events.TopicPrefix)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.DueScanInterval)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, `
store:
  driver: sqlite
  dsn: file:factor.db
`)
	t.Setenv("FACTOR_STORE_DRIVER", "mongo")
	t.Setenv("FACTOR_STORE_DSN", "mongodb://localhost:27017")
	t.Setenv("FACTOR_STORE_DATABASE", "factor")
	t.Setenv("FACTOR_SCHEDULER_DUE_SCAN_INTERVAL", "5m")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.DriverMongo, cfg.Store.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Store.DSN)
	assert.Equal(t, "factor", cfg.Store.Database)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.DueScanInterval)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "store:\n  driver: cassandra\n"},
		{"postgres without dsn", "store:\n  driver: postgres\n"},
		{"mongo without database", "store:\n  driver: mongo\n  dsn: mongodb://localhost\n"},
		{"kafka without brokers", "events:\n  destination: kafka\n"},
		{"redis without address", "events:\n  destination: redis\n"},
		{"relative base path", "server:\n  base_path: factor\n"},
		{"unknown log level", "log:\n  level: verbose\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
