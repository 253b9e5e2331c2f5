package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/tabulator/internal/config"
	"github.com/okian/tabulator/internal/domain/model"
	"github.com/okian/tabulator/internal/domain/schema"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tabulator.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfigDefaults(t *testing.T) {
	convey.Convey("Given no file and no environment", t, func() {
		t.Setenv(config.EnvFile, "")
		cfg, err := config.Load(context.Background())

		convey.Convey("Then defaults are used and the default edition compiles", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.DedupeShards, convey.ShouldEqual, 64)
			convey.So(cfg.GenderList(), convey.ShouldResemble, []model.Gender{"male", "female"})
			convey.So(cfg.CompiledSchema(), convey.ShouldNotBeNil)
			convey.So(cfg.CompiledSchema().Edition(), convey.ShouldEqual, schema.DefaultEdition)
		})
	})
}

func TestConfigEnvironment(t *testing.T) {
	convey.Convey("Given environment overrides", t, func() {
		t.Setenv(config.EnvFile, "")
		t.Setenv("TABULATOR_ADDR", ":8080")
		t.Setenv("TABULATOR_QUEUE_SIZE", "64")
		t.Setenv("TABULATOR_WORKER_COUNT", "3")
		t.Setenv("TABULATOR_SCHEMA_EDITION", "classic-5")
		t.Setenv("TABULATOR_GENDERS", "Female, Male")

		cfg, err := config.Load(context.Background())

		convey.Convey("Then they override the defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
			convey.So(cfg.GenderList(), convey.ShouldResemble, []model.Gender{"female", "male"})
			convey.So(cfg.CompiledSchema().Edition(), convey.ShouldEqual, "classic-5")
		})
	})

	convey.Convey("Given an unknown edition", t, func() {
		t.Setenv(config.EnvFile, "")
		t.Setenv("TABULATOR_SCHEMA_EDITION", "nope")
		_, err := config.Load(context.Background())
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		convey.So(errors.Is(err, schema.ErrUnknownEdition), convey.ShouldBeTrue)
	})

	convey.Convey("Given a reserved gender name", t, func() {
		t.Setenv(config.EnvFile, "")
		t.Setenv("TABULATOR_GENDERS", "male,all")
		_, err := config.Load(context.Background())
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
	})

	convey.Convey("Given a zero queue size", t, func() {
		t.Setenv(config.EnvFile, "")
		t.Setenv("TABULATOR_QUEUE_SIZE", "0")
		_, err := config.Load(context.Background())
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
	})
}

func TestConfigFile(t *testing.T) {
	convey.Convey("Given a YAML file with an inline schema and roster", t, func() {
		path := writeFile(t, `
addr: ":7070"
log_level: debug
genders: [female, male]
schema:
  edition: pageant-lite
  categories:
    - key: talent
      label: Talent
      weight: 40
    - key: gown
      label: Gown
      weight: 60
      judging_order: interleaved
      gender_sequence: [female, male]
  totals:
    - key: overall_total
      filter: overall
      label: Overall Total
      policy: mean
      categories: [talent, gown]
      full_breakdown: true
roster:
  - number: 1
    name: Ana
    gender: female
  - number: 1
    name: Ben
    gender: male
`)
		t.Setenv(config.EnvFile, path)
		t.Setenv("TABULATOR_ADDR", ":6060")

		cfg, err := config.Load(context.Background())

		convey.Convey("Then the file is applied below the environment", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
			convey.So(cfg.Roster, convey.ShouldHaveLength, 2)
			convey.So(cfg.Roster[1].Name, convey.ShouldEqual, "Ben")
		})

		convey.Convey("Then the inline schema wins over the edition", func() {
			s := cfg.CompiledSchema()
			convey.So(s.Edition(), convey.ShouldEqual, "pageant-lite")
			convey.So(s.CategoryKeys(), convey.ShouldResemble, []string{"talent", "gown"})
			_, ok := s.Catalog().Resolve("top_gown")
			convey.So(ok, convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a schema whose total references an unknown category", t, func() {
		path := writeFile(t, `
schema:
  edition: broken
  categories:
    - key: talent
      label: Talent
  totals:
    - key: overall_total
      filter: overall
      label: Overall
      policy: mean
      categories: [talent, swimsuit]
`)
		t.Setenv(config.EnvFile, path)
		_, err := config.Load(context.Background())

		convey.Convey("Then loading fails with an invalid config", func() {
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(errors.Is(err, schema.ErrInvalidSchema), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a roster entry with an unknown gender", t, func() {
		path := writeFile(t, `
roster:
  - number: 4
    name: Kim
    gender: other
`)
		t.Setenv(config.EnvFile, path)
		_, err := config.Load(context.Background())
		convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
	})

	convey.Convey("Given a missing file", t, func() {
		t.Setenv(config.EnvFile, filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := config.Load(context.Background())
		convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
	})
}
