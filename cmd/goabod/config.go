package main

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hed1ad/goabod/pkg/detectors"
)

// Config is read from GOABOD_* variables; command-line flags override it.
type Config struct {
	Detector      string  `envconfig:"GOABOD_DETECTOR" default:"abod"`
	Method        string  `envconfig:"GOABOD_METHOD" default:"fast"`
	Neighbors     int     `envconfig:"GOABOD_NEIGHBORS"`
	Contamination float64 `envconfig:"GOABOD_CONTAMINATION" default:"0.1"`
	Algorithm     string  `envconfig:"GOABOD_ALGORITHM" default:"auto"`
	LeafSize      int     `envconfig:"GOABOD_LEAF_SIZE" default:"30"`
	Workers       int     `envconfig:"GOABOD_WORKERS"`
	Trees         int     `envconfig:"GOABOD_TREES" default:"100"`
	SampleSize    int     `envconfig:"GOABOD_SAMPLE_SIZE" default:"256"`
	Seed          int64   `envconfig:"GOABOD_SEED" default:"42"`
	Header        bool    `envconfig:"GOABOD_CSV_HEADER" default:"true"`
	LogLevel      string  `envconfig:"GOABOD_LOG_LEVEL" default:"info"`
	LogFormat     string  `envconfig:"GOABOD_LOG_FORMAT" default:"console"`
}

// LoadConfig reads the environment. Neighbors and Workers stay zero unless set,
// which leaves each detector's own default in place.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("envconfig.Process: %w", err)
	}
	return cfg, nil
}

// detectorConfig resolves the settings shared by every detector.
func (c Config) detectorConfig() detectors.Config {
	dc := detectors.DefaultConfig()
	dc.Contamination = c.Contamination
	dc.RandomSeed = c.Seed
	if c.Workers > 0 {
		dc.Workers = c.Workers
	}
	return dc
}

// NewLogger builds a zap logger writing to stderr.
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", detectors.ErrInvalidConfig, level)
	}

	var zc zap.Config
	switch format {
	case "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("%w: log format %q", detectors.ErrInvalidConfig, format)
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build()
}
