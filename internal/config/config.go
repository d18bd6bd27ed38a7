// internal/config/config.go
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"novacred-engine/internal/clean"
	"novacred-engine/internal/domain"
)

//go:embed default.yml
var defaultYAML []byte

type Bound struct {
	Field     string  `yaml:"field"`
	Op        string  `yaml:"op"`
	Threshold float64 `yaml:"threshold"`
}

type Outputs struct {
	Dir     string `yaml:"dir"`
	CSV     bool   `yaml:"csv"`
	JSON    bool   `yaml:"json"`
	SQLite  bool   `yaml:"sqlite"`
	Report  bool   `yaml:"report"`
	Metrics bool   `yaml:"metrics"`
}

type Config struct {
	Input struct {
		Path string `yaml:"path"`
	} `yaml:"input"`

	Output Outputs `yaml:"output"`

	Audit struct {
		ReferenceDate       string  `yaml:"reference_date"`
		MinAge              int     `yaml:"min_age"`
		MaxAge              int     `yaml:"max_age"`
		AdultAge            int     `yaml:"adult_age"`
		CreditOutlierMonths float64 `yaml:"credit_outlier_months"`
		StrictReview        bool    `yaml:"strict_review"`
	} `yaml:"audit"`

	Bounds []Bound `yaml:"bounds"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default is the embedded default.yml.
func Default() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// Load reads path over the defaults: keys the file omits keep their
// default value.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// PipelineOptions converts the audit section and bound table into cleaning
// options. Call NormalizeAndValidate first for readable error messages.
func (c Config) PipelineOptions() (clean.Options, error) {
	ref, err := time.Parse("2006-01-02", c.Audit.ReferenceDate)
	if err != nil {
		return clean.Options{}, fmt.Errorf("audit.reference_date: %w", err)
	}
	opts := clean.Options{
		ReferenceDate:       ref,
		MinAge:              c.Audit.MinAge,
		MaxAge:              c.Audit.MaxAge,
		AdultAge:            c.Audit.AdultAge,
		CreditOutlierMonths: c.Audit.CreditOutlierMonths,
		Strict:              c.Audit.StrictReview,
	}
	for _, b := range c.Bounds {
		opts.Bounds = append(opts.Bounds, clean.Bound{
			Field:     domain.Field(b.Field),
			Op:        b.Op,
			Threshold: b.Threshold,
		})
	}
	return opts, nil
}
