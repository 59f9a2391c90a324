package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName      = "Tipster"
	defaultAppEnv       = "development"
	defaultLogLevel     = "info"
	defaultPort         = "9999"
	defaultHTTPTimeout  = 30 * time.Second
	defaultAccessTTL    = time.Hour
	defaultRefreshTTL   = 30 * 24 * time.Hour
	defaultShutdownWait = 10 * time.Second
	devJWTSecret        = "tipster-dev-secret"
)

// Config captures runtime configuration for both the client and the
// development backend, loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	LogLevel string

	// Client settings. An empty BackendURL runs the client against the
	// in-process backend.
	BackendURL    string
	BackendAPIKey string
	TokenPath     string
	HTTPTimeout   time.Duration

	// Development backend settings.
	Port            string
	JWTSecret       string
	DatabaseURL     string
	RedisURL        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ShutdownPeriod  time.Duration
}

// Load reads configuration from the environment, after sourcing a local
// .env file when one exists.
func Load() (Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		BackendURL:      os.Getenv("BACKEND_URL"),
		BackendAPIKey:   os.Getenv("BACKEND_API_KEY"),
		TokenPath:       os.Getenv("TOKEN_PATH"),
		HTTPTimeout:     defaultHTTPTimeout,
		Port:            getEnv("PORT", defaultPort),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		AccessTokenTTL:  defaultAccessTTL,
		RefreshTokenTTL: defaultRefreshTTL,
		ShutdownPeriod:  defaultShutdownWait,
	}

	for _, d := range []struct {
		env  string
		dest *time.Duration
	}{
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod},
	} {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.env, err)
			}
			*d.dest = parsed
		}
	}

	if cfg.BackendURL != "" && cfg.BackendAPIKey == "" {
		return Config{}, fmt.Errorf("BACKEND_API_KEY must be set when BACKEND_URL is set")
	}

	if cfg.TokenPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home dir for token path: %w", err)
		}
		cfg.TokenPath = filepath.Join(home, ".tipster", "session.json")
	}

	if cfg.JWTSecret == "" {
		if !IsDev(cfg.AppEnv) {
			return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
		cfg.JWTSecret = devJWTSecret
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the environment name means development.
func IsDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local", "test", "":
		return true
	}
	return false
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
