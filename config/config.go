// Package config loads the settings shared by the meshwarp CLI and server.
package config

import (
	"errors"
	"fmt"
	"os"

	meshwarp "github.com/gino07172002/testMeshWarp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a meshwarp process.
type Config struct {
	Addr     string `yaml:"addr"`
	LogLevel string `yaml:"log_level"`

	GridSize         int     `yaml:"grid_size"`
	MaxAngle         float64 `yaml:"max_angle"` // <= 0 disables the angle filter
	HitRadius        float64 `yaml:"hit_radius"`
	Workers          int     `yaml:"workers"`
	Direct           bool    `yaml:"direct"`
	PruneTransparent bool    `yaml:"prune_transparent"`
	ReindexEvery     int     `yaml:"reindex_every"`

	LineWidth float64 `yaml:"line_width"`
}

// Default returns the built-in configuration.
func Default() Config {
	opts := meshwarp.DefaultOptions()
	return Config{
		Addr:         ":8080",
		LogLevel:     "info",
		GridSize:     opts.GridSize,
		MaxAngle:     opts.MaxAngle,
		HitRadius:    opts.HitRadius,
		Workers:      opts.Workers,
		ReindexEvery: opts.ReindexEvery,
		LineWidth:    1,
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return c, c.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.GridSize <= 0:
		return errors.New("config: grid_size must be positive")
	case c.MaxAngle > 180:
		return errors.New("config: max_angle must not exceed 180")
	case c.HitRadius <= 0:
		return errors.New("config: hit_radius must be positive")
	case c.Workers <= 0:
		return errors.New("config: workers must be positive")
	case c.ReindexEvery < 0:
		return errors.New("config: reindex_every must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SessionOptions converts the configuration into session options. A
// non-positive max_angle disables the triangulation angle filter.
func (c Config) SessionOptions(logger *zap.Logger) meshwarp.Options {
	maxAngle := c.MaxAngle
	if maxAngle <= 0 {
		maxAngle = -1
	}
	return meshwarp.Options{
		GridSize:         c.GridSize,
		MaxAngle:         maxAngle,
		HitRadius:        c.HitRadius,
		Workers:          c.Workers,
		Direct:           c.Direct,
		PruneTransparent: c.PruneTransparent,
		ReindexEvery:     c.ReindexEvery,
		Logger:           logger,
	}
}

// Logger builds a zap logger at the configured level. The debug level uses
// the human readable development encoder.
func (c Config) Logger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	zc := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
