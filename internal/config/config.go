package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Supported pre-alert state backends.
const (
	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"
)

var (
	errUnknownDriver       = errors.New("unknown database driver")
	errUnknownStateBackend = errors.New("unknown pre-alert state backend")
	errRedisRequired       = errors.New("redis address is required for the redis pre-alert state backend")
	errNonPositive         = errors.New("must be positive")
)

// DatabaseConfig describes the shared telemetry/alert store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"` // sqlite file
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// GetDSN returns the connection string for the configured driver.
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == DriverPostgres {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
	}
	return c.Path
}

// RedisConfig is optional; an empty Addr disables every redis component.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a redis address is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// MQTTConfig describes the escalation bus.
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            byte          `yaml:"qos"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

// RulesConfig holds the evaluation loop settings.
type RulesConfig struct {
	TickInterval        time.Duration `yaml:"tick_interval"`
	StoreTimeout        time.Duration `yaml:"store_timeout"`
	HeartbeatTimeout    time.Duration `yaml:"heartbeat_timeout"`
	PrealertAntiSpam    time.Duration `yaml:"prealert_antispam"`
	DefaultDwellMinutes float64       `yaml:"default_dwell_minutes"`
	RoomConfigPath      string        `yaml:"room_config_path"`
	Timezone            string        `yaml:"timezone"`
}

// CacheConfig controls the redis-backed extras.
type CacheConfig struct {
	AlertKeyPrefix       string        `yaml:"alert_key_prefix"`
	AlertTTL             time.Duration `yaml:"alert_ttl"`
	StateKeyPrefix       string        `yaml:"state_key_prefix"`
	PrealertStateBackend string        `yaml:"prealert_state_backend"`
	AlertStream          string        `yaml:"alert_stream"`
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the daemon configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Rules    RulesConfig    `yaml:"rules"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}

	cfg.Database.Driver = DriverSQLite
	cfg.Database.Path = "events.db"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "eldercare"
	cfg.Database.SSLMode = "disable"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "eldercare-rules"
	cfg.MQTT.TopicPrefix = "iot/eldercare"
	cfg.MQTT.ConnectTimeout = 5 * time.Second
	cfg.MQTT.PublishTimeout = 2 * time.Second

	cfg.Rules.TickInterval = 15 * time.Second
	cfg.Rules.StoreTimeout = 10 * time.Second
	cfg.Rules.HeartbeatTimeout = 1800 * time.Second
	cfg.Rules.PrealertAntiSpam = 120 * time.Second
	cfg.Rules.DefaultDwellMinutes = 20
	cfg.Rules.RoomConfigPath = "prealert_config.json"
	cfg.Rules.Timezone = "Local"

	cfg.Cache.AlertKeyPrefix = "eldercare:"
	cfg.Cache.AlertTTL = 60 * time.Second
	cfg.Cache.StateKeyPrefix = "eldercare:prealert:"
	cfg.Cache.PrealertStateBackend = StateBackendMemory
	cfg.Cache.AlertStream = "eldercare:alerts"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	return cfg
}

// Load builds the configuration: defaults, then the YAML file at path (if any),
// then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		contents, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("DB_PATH", c.Database.Path)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", c.MQTT.TopicPrefix)

	c.Rules.RoomConfigPath = getEnv("RULES_ROOM_CONFIG_PATH", c.Rules.RoomConfigPath)
	c.Rules.Timezone = getEnv("RULES_TIMEZONE", c.Rules.Timezone)

	c.Cache.PrealertStateBackend = getEnv("PREALERT_STATE_BACKEND", c.Cache.PrealertStateBackend)
	c.Cache.AlertStream = getEnv("ALERT_STREAM", c.Cache.AlertStream)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	var err error
	if c.Database.Port, err = getEnvInt("DB_PORT", c.Database.Port); err != nil {
		return err
	}
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.Rules.TickInterval, err = getEnvDuration("RULES_TICK_INTERVAL", c.Rules.TickInterval); err != nil {
		return err
	}
	if c.Rules.HeartbeatTimeout, err = getEnvDuration("RULES_HEARTBEAT_TIMEOUT", c.Rules.HeartbeatTimeout); err != nil {
		return err
	}
	if c.Rules.PrealertAntiSpam, err = getEnvDuration("RULES_PREALERT_ANTISPAM", c.Rules.PrealertAntiSpam); err != nil {
		return err
	}

	return nil
}

// Validate checks the typed configuration once at load time.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: %q", errUnknownDriver, c.Database.Driver)
	}

	switch c.Cache.PrealertStateBackend {
	case StateBackendMemory:
	case StateBackendRedis:
		if !c.Redis.Enabled() {
			return errRedisRequired
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownStateBackend, c.Cache.PrealertStateBackend)
	}

	durations := map[string]time.Duration{
		"rules.tick_interval":     c.Rules.TickInterval,
		"rules.store_timeout":     c.Rules.StoreTimeout,
		"rules.heartbeat_timeout": c.Rules.HeartbeatTimeout,
		"rules.prealert_antispam": c.Rules.PrealertAntiSpam,
		"mqtt.connect_timeout":    c.MQTT.ConnectTimeout,
		"mqtt.publish_timeout":    c.MQTT.PublishTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s %w", name, errNonPositive)
		}
	}

	if c.Rules.DefaultDwellMinutes <= 0 {
		return fmt.Errorf("rules.default_dwell_minutes %w", errNonPositive)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid rules.timezone: %w", err)
	}

	return nil
}

// Location returns the time zone used for night window evaluation.
func (c *Config) Location() (*time.Location, error) {
	if c.Rules.Timezone == "" || c.Rules.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Rules.Timezone)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
