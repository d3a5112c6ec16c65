// Package config carries environment-backed defaults for the CLI. Flags
// always win over the environment; the environment wins over built-ins.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the tunable defaults.
type Config struct {
	// DBPath is the default corpus path when --db is not given.
	DBPath string `env:"COORDNET_DB"`
	// LogLevel is a zerolog level name.
	LogLevel string `env:"COORDNET_LOG_LEVEL" envDefault:"info"`
	// NCPUs is the default worker count for compute and resolve_urls.
	// Zero means one worker per CPU core for compute and 8 workers for
	// resolve_urls.
	NCPUs int `env:"COORDNET_N_CPUS" envDefault:"0"`
	// HTTPTimeout bounds each URL resolution request.
	HTTPTimeout time.Duration `env:"COORDNET_HTTP_TIMEOUT" envDefault:"15s"`
	// MaxRedirects bounds each URL resolution chain.
	MaxRedirects int `env:"COORDNET_MAX_REDIRECTS" envDefault:"5"`
	// FromHeader is an optional contact address sent with resolver requests.
	FromHeader string `env:"COORDNET_FROM_HEADER"`
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	// A missing .env file is the common case, not an error.
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parsing environment config: %w", err)
	}
	return cfg, nil
}
