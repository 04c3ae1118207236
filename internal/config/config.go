package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingDSN is returned by Validate when no database location is configured.
var ErrMissingDSN = errors.New("database url is required (DATABASE_URL or POSTGRES_DSN)")

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	Greeting              string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	RunMigrations    bool
	ConnMaxIdleSec   int32
	ConnMaxLifeSec   int32
	AcquireTimeoutMs int
	QueryTimeoutMs   int
}

// RedisConfig holds Redis connection values. An empty Addr disables the hit feed.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	FeedStream string
	FeedMaxLen int64
	FeedBuffer int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "hit-counter"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "127.0.0.1"),
			Port:                  getEnv("APP_PORT", "3000"),
			Version:               getEnv("APP_VERSION", "dev"),
			Greeting:              getEnv("APP_GREETING", "Navigate to `/hit/foo` to increment the hit count for `foo`"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:              getEnv("DATABASE_URL", os.Getenv("POSTGRES_DSN")),
			MaxConns:         int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:         int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:    getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec:   int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec:   int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
			AcquireTimeoutMs: getEnvAsInt("POSTGRES_ACQUIRE_TIMEOUT_MS", 2000),
			QueryTimeoutMs:   getEnvAsInt("POSTGRES_QUERY_TIMEOUT_MS", 5000),
		},
		Redis: RedisConfig{
			Addr:       os.Getenv("REDIS_ADDR"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         redisDB,
			FeedStream: getEnv("REDIS_FEED_STREAM", "hits:feed"),
			FeedMaxLen: int64(getEnvAsInt("REDIS_FEED_MAXLEN", 10000)),
			FeedBuffer: getEnvAsInt("REDIS_FEED_BUFFER", 256),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// Validate reports configuration that would prevent the service from starting.
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return ErrMissingDSN
	}
	if c.Postgres.MinConns > c.Postgres.MaxConns && c.Postgres.MaxConns > 0 {
		return fmt.Errorf("POSTGRES_MIN_CONNS (%d) exceeds POSTGRES_MAX_CONNS (%d)", c.Postgres.MinConns, c.Postgres.MaxConns)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AcquireTimeout bounds how long a caller waits for a pooled connection.
func (p PostgresConfig) AcquireTimeout() time.Duration {
	if p.AcquireTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(p.AcquireTimeoutMs) * time.Millisecond
}

// QueryTimeout bounds each statement round trip.
func (p PostgresConfig) QueryTimeout() time.Duration {
	if p.QueryTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(p.QueryTimeoutMs) * time.Millisecond
}

// FeedEnabled reports whether hits are mirrored to a Redis stream.
func (r RedisConfig) FeedEnabled() bool {
	return r.Addr != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
