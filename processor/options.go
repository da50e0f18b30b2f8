package processor

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/timzifer/motorhome/config"
	"github.com/timzifer/motorhome/homing"
	"github.com/timzifer/motorhome/telemetry"
)

// WithLogger provides a custom logger instance for the processor. Without it
// the logger is built from the definition's logging section.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.logger = logger
		cfg.customLogger = true
		return nil
	}
}

// WithConfigPath configures the processor to load the definition from path.
// Only a path-based processor can reload or watch.
func WithConfigPath(path string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.configPath = strings.TrimSpace(path)
		return nil
	}
}

// WithConfig supplies an already loaded definition.
func WithConfig(cfgData *config.Config) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.config = cfgData
		return nil
	}
}

// WithOutputDir overrides the definition's output_dir.
func WithOutputDir(dir string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return errors.New("output directory must not be empty")
		}
		cfg.outputDir = dir
		return nil
	}
}

// WithRenderer replaces the embedded template engine.
func WithRenderer(renderer homing.Renderer) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if renderer == nil {
			return errors.New("renderer must not be nil")
		}
		cfg.renderer = renderer
		return nil
	}
}

// WithTelemetry injects a collector instance overriding the definition's
// telemetry section.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if collector == nil {
			collector = telemetry.Noop()
		}
		cfg.telemetry = collector
		cfg.telemetryProvided = true
		return nil
	}
}
