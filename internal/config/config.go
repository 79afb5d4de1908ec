package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "TETHER_"

// Config holds all tether configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Scheduler SchedulerConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Hooks     HooksConfig
}

type ServerConfig struct {
	Bind string
	Port int
}

type DatabaseConfig struct {
	Path string // empty: store.DefaultDBPath()
}

type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Pretty bool
}

type SchedulerConfig struct {
	Timezone string        // IANA name; empty means the host's local zone
	MinGap   time.Duration // minimum time between notifications
	Interval time.Duration // periodic measure + evaluate; 0 disables the timer
	LockTTL  time.Duration
	LockWait time.Duration // how long a pass waits for a held Redis lock
}

// RedisConfig enables the shared scheduler lock. Empty Addr means an
// in-process lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig enables notification hand-off to a broker. No brokers means
// notifications are only logged.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type HooksConfig struct {
	Enabled bool
	Timeout int // seconds
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
		Scheduler: SchedulerConfig{
			MinGap:   2 * time.Hour,
			Interval: 30 * time.Minute,
			LockTTL:  time.Minute,
			LockWait: 5 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic: "tether.notifications",
		},
		Hooks: HooksConfig{
			Enabled: true,
			Timeout: 10,
		},
	}
}

// Load returns Default() overridden by TETHER_* environment variables.
// A .env file in the working directory is read first when present;
// variables already set in the environment win over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv applies overrides from lookup on top of Default().
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	e := envReader{lookup: lookup}

	cfg.Server.Bind = e.str("BIND", cfg.Server.Bind)
	cfg.Server.Port = e.integer("PORT", cfg.Server.Port)
	cfg.Database.Path = e.str("DB_PATH", cfg.Database.Path)
	cfg.Logging.Level = e.str("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Pretty = e.boolean("LOG_PRETTY", cfg.Logging.Pretty)
	cfg.Scheduler.Timezone = e.str("TIMEZONE", cfg.Scheduler.Timezone)
	cfg.Scheduler.MinGap = e.duration("MIN_GAP", cfg.Scheduler.MinGap)
	cfg.Scheduler.Interval = e.duration("EVAL_INTERVAL", cfg.Scheduler.Interval)
	cfg.Scheduler.LockTTL = e.duration("LOCK_TTL", cfg.Scheduler.LockTTL)
	cfg.Scheduler.LockWait = e.duration("LOCK_WAIT", cfg.Scheduler.LockWait)
	cfg.Redis.Addr = e.str("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = e.str("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = e.integer("REDIS_DB", cfg.Redis.DB)
	cfg.Kafka.Brokers = e.list("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.Topic = e.str("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Hooks.Enabled = e.boolean("HOOKS_ENABLED", cfg.Hooks.Enabled)
	cfg.Hooks.Timeout = e.integer("HOOKS_TIMEOUT", cfg.Hooks.Timeout)

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Scheduler.MinGap <= 0 {
		return fmt.Errorf("scheduler min gap must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.get(key); ok {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return def
	}
	return n
}

func (e *envReader) boolean(key string, def bool) bool {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return def
	}
	return d
}

func (e *envReader) list(key string, def []string) []string {
	v, ok := e.get(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
