// Package config defines service configuration and how it is loaded.
//
// Values are layered: defaults from New, then an optional YAML file, then
// TABULATOR_* environment variables. Load also compiles the category schema,
// so a bad schema stops the process at startup.
package config

import (
	"context"
	"runtime"
	"strings"

	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/schema"
)

// RosterEntry is a candidate registered at startup.
type RosterEntry struct {
	Number   int    `koanf:"number" validate:"gte=1"`
	Name     string `koanf:"name" validate:"required"`
	Gender   string `koanf:"gender" validate:"required"`
	ImageURL string `koanf:"image_url" validate:"omitempty,url"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format" validate:"omitempty,oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" validate:"required"`

	// QueueSize bounds the in-memory submission queue.
	QueueSize int `koanf:"queue_size" validate:"gte=1"`

	// WorkerCount sets the number of persistence workers.
	WorkerCount int `koanf:"worker_count" validate:"gte=1"`

	// DedupeShards sets the number of shards of the submission guard.
	DedupeShards int `koanf:"dedupe_shards" validate:"gte=1"`

	// RankingConcurrency bounds per-candidate evaluations during a ranking.
	RankingConcurrency int `koanf:"ranking_concurrency" validate:"gte=1"`

	// Genders is the gender enumeration in tie-break order.
	Genders []string `koanf:"genders"`

	// SchemaEdition names a built-in schema. Ignored when Schema is set.
	SchemaEdition string `koanf:"schema_edition"`

	// Schema is an inline schema definition.
	Schema *schema.Definition `koanf:"schema" validate:"-"`

	// Roster seeds candidates at startup.
	Roster []RosterEntry `koanf:"roster" validate:"dive"`

	compiled *schema.Schema
}

// DefaultGenders is used when no gender enumeration is configured.
var DefaultGenders = []string{"male", "female"} //nolint:gochecknoglobals // read-only default

// New returns a Config holding the defaults. Context is accepted first to
// follow the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		QueueSize:          10_000,
		WorkerCount:        runtime.NumCPU() * 2,
		DedupeShards:       64,
		RankingConcurrency: runtime.NumCPU(),
		SchemaEdition:      schema.DefaultEdition,
	}
}

// GenderList returns the normalized gender enumeration.
func (c *Config) GenderList() []model.Gender {
	out := make([]model.Gender, 0, len(c.Genders))
	for _, g := range c.Genders {
		out = append(out, model.Gender(g).Normalize())
	}
	return out
}

// CompiledSchema returns the schema compiled by Load, or nil for a Config
// that was not loaded.
func (c *Config) CompiledSchema() *schema.Schema { return c.compiled }

// splitList flattens comma separated entries such as "male,female" from env.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
