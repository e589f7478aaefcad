// Package config loads the optional flowline YAML configuration file.
//
// Values are resolved in three layers: built-in defaults, the YAML file, then
// FLOWLINE_* environment variables for secrets. Command-line flags that were set
// explicitly override all of them (see cmd/flowline).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dukex/flowline/pkg/mailer"
	"gopkg.in/yaml.v3"
)

const (
	EventsProviderNone      = "none"
	EventsProviderGoChannel = "gochannel"
	EventsProviderKafka     = "kafka"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	DatabaseURL string `yaml:"database_url"`
	Port        int    `yaml:"port"`
	PluginsPath string `yaml:"plugins_path"`

	Log       LogConfig         `yaml:"log"`
	Engine    EngineConfig      `yaml:"engine"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`
	SMTP      mailer.SMTPConfig `yaml:"smtp"`
	MQTT      MQTTConfig        `yaml:"mqtt"`
	Redis     RedisConfig       `yaml:"redis"`
	Events    EventsConfig      `yaml:"events"`
	InfluxDB  InfluxDBConfig    `yaml:"influxdb"`
	Tracing   TracingConfig     `yaml:"tracing"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig tunes the deferred task poller and the step executors.
type EngineConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
}

// SchedulerConfig drives the embedded cron runner of `serve`.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Spec is the cron expression of the deferred task poller.
	Spec string `yaml:"spec"`
	// Workflows starts active scheduled workflows on their own cron expressions.
	Workflows bool `yaml:"workflows"`
}

// MQTTConfig enables the mqtt_publish action when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RedisConfig enables the redis_publish action when Addr is set. EventQueue
// names a list that `serve` consumes to start workflows.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	EventQueue string `yaml:"event_queue"`
}

type EventsConfig struct {
	Provider     string   `yaml:"provider"`
	KafkaBrokers []string `yaml:"kafka_brokers"`
	ServiceName  string   `yaml:"service_name"`
}

// InfluxDBConfig enables the lifecycle metrics sink when URL is set.
type InfluxDBConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DatabaseURL: "sqlite://flowline.db",
		Port:        9091,
		PluginsPath: "./plugins",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Engine: EngineConfig{
			BatchSize:    50,
			MaxRetries:   3,
			RetryBackoff: 5 * time.Minute,
			HTTPTimeout:  30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:   true,
			Spec:      "@every 1m",
			Workflows: true,
		},
		SMTP: mailer.SMTPConfig{
			Port: 25,
			From: "flowline@localhost",
		},
		MQTT: MQTTConfig{
			ClientID: "flowline",
		},
		Events: EventsConfig{
			Provider:    EventsProviderGoChannel,
			ServiceName: "flowline",
		},
		Tracing: TracingConfig{
			ServiceName: "flowline",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults with
// environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = yaml.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides reads secrets that should not live in the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLOWLINE_SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}

	if v := os.Getenv("FLOWLINE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	if v := os.Getenv("FLOWLINE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("FLOWLINE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "database_url is required")
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.Engine.BatchSize < 1 {
		errs = append(errs, "engine.batch_size must be positive")
	}

	if c.Engine.MaxRetries < 1 {
		errs = append(errs, "engine.max_retries must be positive")
	}

	if c.Engine.RetryBackoff <= 0 {
		errs = append(errs, "engine.retry_backoff must be positive")
	}

	if c.Scheduler.Enabled && c.Scheduler.Spec == "" {
		errs = append(errs, "scheduler.spec is required when the scheduler is enabled")
	}

	switch c.Events.Provider {
	case EventsProviderNone, EventsProviderGoChannel:
	case EventsProviderKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			errs = append(errs, "events.kafka_brokers is required for the kafka provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("events.provider %q is not one of none, gochannel, kafka", c.Events.Provider))
	}

	if c.InfluxDB.URL != "" && (c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb.url is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}
