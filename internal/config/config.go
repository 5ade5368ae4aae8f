// Package config resolves tmaxfit run settings.
//
// Settings are layered, later layers winning:
//
//	defaults (struct tags) → environment (TMAXFIT_*) → CUE run file → flags
//
// Flags are applied by the CLI; this package covers the other three.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v6"

	"github.com/roach88/tmaxfit/internal/engine"
	"github.com/roach88/tmaxfit/internal/posterior"
)

// Config is the resolved set of run settings.
type Config struct {
	// Storage
	DBPath string `env:"TMAXFIT_DB" envDefault:"tmaxfit.db"`

	// Sampling
	Seed       uint64 `env:"TMAXFIT_SEED" envDefault:"42"`
	Chains     uint64 `env:"TMAXFIT_CHAINS" envDefault:"4"`
	Tuning     uint64 `env:"TMAXFIT_TUNING" envDefault:"500"`
	Samples    uint64 `env:"TMAXFIT_SAMPLES" envDefault:"500"`
	StepBudget uint64 `env:"TMAXFIT_STEP_BUDGET" envDefault:"1000000"`

	// Summary
	Grid         int     `env:"TMAXFIT_GRID" envDefault:"100"`
	CredibleMass float64 `env:"TMAXFIT_CREDIBLE_MASS" envDefault:"0.9"`

	// Plots
	PlotWidth  int `env:"TMAXFIT_PLOT_WIDTH" envDefault:"800"`
	PlotHeight int `env:"TMAXFIT_PLOT_HEIGHT" envDefault:"480"`

	// Observability
	LogLevel   string `env:"TMAXFIT_LOG_LEVEL" envDefault:"info"`
	MetricsOut string `env:"TMAXFIT_METRICS_OUT"`
}

// Load builds a Config from defaults and the environment, then applies
// the CUE run file at path when path is not empty.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, &Error{Code: ErrCodeEnv, Message: err.Error()}
	}
	if path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// RunConfig returns the engine configuration.
func (c *Config) RunConfig() engine.RunConfig {
	return engine.RunConfig{
		BaseSeed:    c.Seed,
		ChainCount:  c.Chains,
		TuningSteps: c.Tuning,
		SampleSteps: c.Samples,
	}
}

// SummaryOptions returns the posterior options the config selects.
func (c *Config) SummaryOptions() []posterior.Option {
	return []posterior.Option{
		posterior.WithGrid(c.Grid),
		posterior.WithCredibleMass(c.CredibleMass),
	}
}

// Level parses LogLevel. Unknown names fall back to info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate checks the resolved config. It runs after every layer,
// flags included, has been applied.
func (c *Config) Validate() error {
	if err := c.RunConfig().Validate(); err != nil {
		return &Error{Code: ErrCodeInvalid, Message: err.Error()}
	}
	if c.Grid < 2 {
		return &Error{Code: ErrCodeInvalid, Message: fmt.Sprintf("grid must be at least 2, got %d", c.Grid)}
	}
	if c.CredibleMass <= 0 || c.CredibleMass >= 1 {
		return &Error{Code: ErrCodeInvalid, Message: fmt.Sprintf("credible mass must be in (0, 1), got %g", c.CredibleMass)}
	}
	if c.PlotWidth <= 0 || c.PlotHeight <= 0 {
		return &Error{Code: ErrCodeInvalid, Message: fmt.Sprintf("plot size must be positive, got %dx%d", c.PlotWidth, c.PlotHeight)}
	}
	return nil
}
