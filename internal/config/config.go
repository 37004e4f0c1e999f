package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 60 * 24 * time.Hour

var ErrMissingSecret = errors.New("FLAPPER_SECRET is required")

type Config struct {
	Addr        string
	Env         string
	LogLevel    string
	DBDriver    string
	DBDSN       string
	Secret      string
	TokenTTL    time.Duration
	DetailCache int
}

func (c Config) Development() bool {
	return c.Env == EnvDevelopment
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	addr := envString("FLAPPER_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	cfg := Config{
		Addr:        addr,
		Env:         envString("FLAPPER_ENV", EnvProduction),
		LogLevel:    envString("FLAPPER_LOG_LEVEL", "info"),
		DBDriver:    envString("FLAPPER_DB_DRIVER", DriverSQLite),
		DBDSN:       envString("FLAPPER_DB_DSN", "flapper.db"),
		Secret:      os.Getenv("FLAPPER_SECRET"),
		TokenTTL:    envDuration("FLAPPER_TOKEN_TTL", DefaultTokenTTL),
		DetailCache: envInt("FLAPPER_DETAIL_CACHE", 128),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Secret == "" {
		return ErrMissingSecret
	}
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported FLAPPER_DB_DRIVER %q", c.DBDriver)
	}
	if c.TokenTTL <= 0 {
		return errors.New("FLAPPER_TOKEN_TTL must be positive")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
