// Package config loads factord settings from a YAML file and FACTOR_*
// environment variables.
package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FACTOR_STORE_DRIVER.
const EnvPrefix = "FACTOR"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Event destinations.
const (
	DestinationNone   = "none"
	DestinationMemory = "memory"
	DestinationKafka  = "kafka"
	DestinationRedis  = "redis"
)

// Configuration is the full factord configuration.
type Configuration struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Store     StoreConfig     `mapstructure:"store" validate:"required"`
	Events    EventsConfig    `mapstructure:"events"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address" validate:"required"`
	BasePath        string        `mapstructure:"base_path" validate:"omitempty,startswith=/"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// StoreConfig selects and connects the persistence backend.
type StoreConfig struct {
	Driver   string `mapstructure:"driver" validate:"required,oneof=memory postgres sqlite mongo"`
	DSN      string `mapstructure:"dsn" validate:"required_unless=Driver memory"`
	Database string `mapstructure:"database" validate:"required_if=Driver mongo"`
}

// EventsConfig selects where committed events are published.
type EventsConfig struct {
	Destination  string   `mapstructure:"destination" validate:"oneof=none memory kafka redis"`
	TopicPrefix  string   `mapstructure:"topic_prefix"`
	KafkaBrokers []string `mapstructure:"kafka_brokers" validate:"required_if=Destination kafka"`
	RedisAddr    string   `mapstructure:"redis_addr" validate:"required_if=Destination redis"`
	RedisMaxLen  int64    `mapstructure:"redis_max_len" validate:"gte=0"`
}

// SchedulerConfig configures the due-date watcher.
type SchedulerConfig struct {
	Disabled        bool          `mapstructure:"disabled"`
	DueScanInterval time.Duration `mapstructure:"due_scan_interval" validate:"gte=0"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Configuration {
	return Configuration{
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
		},
		Events: EventsConfig{
			Destination: DestinationNone,
			TopicPrefix: "factor.invoice",
		},
		Scheduler: SchedulerConfig{
			DueScanInterval: time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration. When path is empty it looks for factor.yaml in
// the working directory, ./config and /etc/factor; a missing file is not an
// error. Environment variables override file values.
func Load(path string) (*Configuration, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("factor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/factor")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "config: read")
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override keys
// absent from the file.
func setDefaults(v *viper.Viper, d Configuration) {
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.database", d.Store.Database)
	v.SetDefault("events.destination", d.Events.Destination)
	v.SetDefault("events.topic_prefix", d.Events.TopicPrefix)
	v.SetDefault("events.kafka_brokers", d.Events.KafkaBrokers)
	v.SetDefault("events.redis_addr", d.Events.RedisAddr)
	v.SetDefault("events.redis_max_len", d.Events.RedisMaxLen)
	v.SetDefault("scheduler.disabled", d.Scheduler.Disabled)
	v.SetDefault("scheduler.due_scan_interval", d.Scheduler.DueScanInterval)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate checks the configuration.
func (c Configuration) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return errors.Wrap(err, "config: invalid")
	}
	return nil
}

// SlogLevel returns the slog level for Level.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
