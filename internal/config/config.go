package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dukerupert/chorechamp/internal/middleware"
)

// Config holds process configuration read from CHORECHAMP_* environment variables.
type Config struct {
	Port          string        `env:"PORT"           envDefault:"8080"`
	DBPath        string        `env:"DB_PATH"        envDefault:"chorechamp.db"`
	JWTSecret     string        `env:"JWT_SECRET"`
	TokenTTL      time.Duration `env:"TOKEN_TTL"      envDefault:"168h"`
	PostmarkToken string        `env:"POSTMARK_TOKEN"`
	FromEmail     string        `env:"FROM_EMAIL"`
	ClientURL     string        `env:"CLIENT_URL"     envDefault:"http://localhost:3000"`
	CORSOrigins   []string      `env:"CORS_ORIGINS"   envSeparator:"," envDefault:"http://localhost:3000"`
	LogLevel      string        `env:"LOG_LEVEL"      envDefault:"info"`
	LogFile       string        `env:"LOG_FILE"`
	Timezone      string        `env:"TIMEZONE"       envDefault:"Local"`

	// Per-route budgets in "<requests>/<window>" form.
	LoginLimit    middleware.Limit `env:"LOGIN_RATE_LIMIT"    envDefault:"10/1m"`
	RegisterLimit middleware.Limit `env:"REGISTER_RATE_LIMIT" envDefault:"10/1m"`
	InviteLimit   middleware.Limit `env:"INVITE_RATE_LIMIT"   envDefault:"20/1h"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	return parse(env.Options{Prefix: "CHORECHAMP_"})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.JWTSecret = strings.TrimSpace(cfg.JWTSecret)
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("CHORECHAMP_JWT_SECRET is required")
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, errors.New("token ttl must be positive")
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}

	origins := cfg.CORSOrigins[:0]
	for _, o := range cfg.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORSOrigins = origins
	return cfg, nil
}

// Location resolves the configured time zone used for calendar-day chore math.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
