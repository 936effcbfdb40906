package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if GRIDLOCK_CONFIG is set
//  3. env (prefix GRIDLOCK_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("GRIDLOCK_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: GRIDLOCK_ADDR, GRIDLOCK_DATABASE_URL, ...
	// Map env keys like GRIDLOCK_SESSION_TTL_SECONDS -> session_ttl_seconds.
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("GRIDLOCK_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "gridlock_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	// Basic validation
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if cfg.SessionTTLSeconds <= 0 {
		return nil, fmt.Errorf("%w: session_ttl_seconds must be positive", ErrInvalidConfig)
	}
	if cfg.RateLimitPerMinute <= 0 {
		return nil, fmt.Errorf("%w: rate_limit_per_minute must be positive", ErrInvalidConfig)
	}
	if cfg.IncidentRadiusMeters <= 0 {
		return nil, fmt.Errorf("%w: incident_radius_meters must be positive", ErrInvalidConfig)
	}
	return &cfg, nil
}
