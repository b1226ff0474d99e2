// Package config loads server settings from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/mmynk/groupcart/internal/groupcart"
)

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Engine  EngineConfig
	Clients ClientsConfig
}

type ServerConfig struct {
	Port int
}

type DBConfig struct {
	Path string
}

// RedisConfig is optional. With an empty Addr slot locks stay in SQLite and
// events go to the log.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	EventsChannel string
}

type AuthConfig struct {
	JWTSecret     string
	TokenDuration time.Duration
}

type EngineConfig struct {
	CASAttempts          int
	CASBackoff           time.Duration
	OrderAttempts        int
	OrderBackoff         time.Duration
	InviteTTL            time.Duration
	OrderingTimeout      time.Duration
	SweepInterval        time.Duration
	ReapAfter            time.Duration
	MaxLockMinutes       int
	MaxQuantity          int
	IdempotencyRetention time.Duration

	// BackgroundJobs runs the sweep and reap loops inside the server. Turn
	// it off when groupcartctl runs them from cron instead.
	BackgroundJobs bool
}

// Options converts the engine settings for groupcart.New.
func (c EngineConfig) Options() groupcart.Options {
	return groupcart.Options{
		CASAttempts:          c.CASAttempts,
		CASBackoff:           c.CASBackoff,
		OrderAttempts:        c.OrderAttempts,
		OrderBackoff:         c.OrderBackoff,
		InviteTTL:            c.InviteTTL,
		OrderingTimeout:      c.OrderingTimeout,
		MaxLockMinutes:       c.MaxLockMinutes,
		MaxQuantity:          int64(c.MaxQuantity),
		ReapAfter:            c.ReapAfter,
		IdempotencyRetention: c.IdempotencyRetention,
	}
}

type ClientsConfig struct {
	CatalogURL string
	OrderURL   string
	Timeout    time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		DB: DBConfig{
			Path: getEnv("DB_PATH", "./data/groupcart.db"),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", ""),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			EventsChannel: getEnv("REDIS_EVENTS_CHANNEL", "groupcart.events"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", "change-me-in-production"),
			TokenDuration: getEnvAsDuration("JWT_TOKEN_DURATION", 24*time.Hour),
		},
		Engine: EngineConfig{
			CASAttempts:          getEnvAsInt("CAS_ATTEMPTS", 3),
			CASBackoff:           getEnvAsDuration("CAS_BACKOFF", 10*time.Millisecond),
			OrderAttempts:        getEnvAsInt("ORDER_ATTEMPTS", 2),
			OrderBackoff:         getEnvAsDuration("ORDER_BACKOFF", 200*time.Millisecond),
			InviteTTL:            getEnvAsDuration("INVITE_TTL", 48*time.Hour),
			OrderingTimeout:      getEnvAsDuration("ORDERING_TIMEOUT", 2*time.Minute),
			SweepInterval:        getEnvAsDuration("SWEEP_INTERVAL", 30*time.Second),
			ReapAfter:            getEnvAsDuration("REAP_AFTER", time.Hour),
			MaxLockMinutes:       getEnvAsInt("MAX_LOCK_MINUTES", 120),
			MaxQuantity:          getEnvAsInt("MAX_QUANTITY", 99),
			IdempotencyRetention: getEnvAsDuration("IDEMPOTENCY_RETENTION", 24*time.Hour),
			BackgroundJobs:       getEnvAsBool("BACKGROUND_JOBS", true),
		},
		Clients: ClientsConfig{
			CatalogURL: getEnv("CATALOG_URL", "http://localhost:8081"),
			OrderURL:   getEnv("ORDER_SERVICE_URL", "http://localhost:8082"),
			Timeout:    getEnvAsDuration("CLIENT_TIMEOUT", 10*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
