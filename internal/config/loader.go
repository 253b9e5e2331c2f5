package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/schema"
)

// Environment variables read by Load.
const (
	EnvPrefix = "TABULATOR_"
	EnvFile   = "TABULATOR_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if TABULATOR_CONFIG is set
//  3. env (prefix TABULATOR_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	if path := os.Getenv(EnvFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// TABULATOR_QUEUE_SIZE -> queue_size. Underscores are kept to match the
	// flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// The file path itself is not a setting.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg.Genders = splitList(cfg.Genders)
	if len(cfg.Genders) == 0 {
		cfg.Genders = append([]string(nil), DefaultGenders...)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks field constraints and compiles the schema.
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	genders := c.GenderList()
	seen := make(map[model.Gender]bool, len(genders))
	for _, g := range genders {
		if g == model.PartitionAll {
			return fmt.Errorf("%w: %q is reserved and cannot be a gender", ErrInvalidConfig, model.PartitionAll)
		}
		if seen[g] {
			return fmt.Errorf("%w: gender %q listed twice", ErrInvalidConfig, g)
		}
		seen[g] = true
	}
	for i, r := range c.Roster {
		if !seen[model.Gender(r.Gender).Normalize()] {
			return fmt.Errorf("%w: roster[%d]: unknown gender %q", ErrInvalidConfig, i, r.Gender)
		}
	}

	def, err := c.definition()
	if err != nil {
		return err
	}
	compiled, err := schema.Compile(def, genders)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.compiled = compiled
	return nil
}

func (c *Config) definition() (schema.Definition, error) {
	if c.Schema != nil {
		return *c.Schema, nil
	}
	def, err := schema.Edition(c.SchemaEdition)
	if err != nil {
		return schema.Definition{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return def, nil
}
