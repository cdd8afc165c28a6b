package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "events.db", cfg.Database.Path)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "", cfg.Redis.Addr)
	assert.False(t, cfg.Redis.Enabled())

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "iot/eldercare", cfg.MQTT.TopicPrefix)

	assert.Equal(t, 15*time.Second, cfg.Rules.TickInterval)
	assert.Equal(t, 1800*time.Second, cfg.Rules.HeartbeatTimeout)
	assert.Equal(t, 120*time.Second, cfg.Rules.PrealertAntiSpam)
	assert.Equal(t, 20.0, cfg.Rules.DefaultDwellMinutes)
	assert.Equal(t, "prealert_config.json", cfg.Rules.RoomConfigPath)

	assert.Equal(t, StateBackendMemory, cfg.Cache.PrealertStateBackend)
	assert.Equal(t, "eldercare:alerts", cfg.Cache.AlertStream)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "test-user")
	t.Setenv("DB_PASSWORD", "test-password")
	t.Setenv("DB_NAME", "test-db")
	t.Setenv("REDIS_ADDR", "test-redis:6380")
	t.Setenv("PREALERT_STATE_BACKEND", "redis")
	t.Setenv("RULES_TICK_INTERVAL", "5s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "test-user", cfg.Database.User)
	assert.Equal(t, "test-password", cfg.Database.Password)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "host=test-host port=6543 user=test-user password=test-password dbname=test-db sslmode=disable",
		cfg.Database.GetDSN())

	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, StateBackendRedis, cfg.Cache.PrealertStateBackend)
	assert.Equal(t, 5*time.Second, cfg.Rules.TickInterval)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	contents := `
database:
  driver: sqlite
  path: /var/lib/eldercare/events.db
mqtt:
  broker: tcp://broker:1883
rules:
  tick_interval: 30s
  heartbeat_timeout: 45m
  timezone: UTC
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	t.Setenv("MQTT_BROKER", "tcp://override:1883")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/eldercare/events.db", cfg.Database.GetDSN())
	assert.Equal(t, "tcp://override:1883", cfg.MQTT.Broker)
	assert.Equal(t, 30*time.Second, cfg.Rules.TickInterval)
	assert.Equal(t, 45*time.Minute, cfg.Rules.HeartbeatTimeout)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("RULES_HEARTBEAT_TIMEOUT", "soon")

	_, err := Load("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "RULES_HEARTBEAT_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "unknown database driver"},
		{"redis backend without redis", func(c *Config) { c.Cache.PrealertStateBackend = StateBackendRedis }, "redis address is required"},
		{"unknown backend", func(c *Config) { c.Cache.PrealertStateBackend = "etcd" }, "unknown pre-alert state backend"},
		{"zero tick", func(c *Config) { c.Rules.TickInterval = 0 }, "rules.tick_interval must be positive"},
		{"zero dwell", func(c *Config) { c.Rules.DefaultDwellMinutes = 0 }, "rules.default_dwell_minutes must be positive"},
		{"bad timezone", func(c *Config) { c.Rules.Timezone = "Mars/Olympus" }, "invalid rules.timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnv(t *testing.T) {
	value := getEnv("ELDERCARE_TEST_KEY", "default-value")
	assert.Equal(t, "default-value", value)

	t.Setenv("ELDERCARE_TEST_KEY", "env-value")
	value = getEnv("ELDERCARE_TEST_KEY", "default-value")
	assert.Equal(t, "env-value", value)
}
