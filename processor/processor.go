package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/timzifer/motorhome/config"
	"github.com/timzifer/motorhome/homing"
	"github.com/timzifer/motorhome/internal/logging"
	"github.com/timzifer/motorhome/internal/reload"
	"github.com/timzifer/motorhome/render"
	"github.com/timzifer/motorhome/telemetry"
)

// Option configures the processor during construction.
type Option func(*settings) error

type settings struct {
	config            *config.Config
	configPath        string
	outputDir         string
	renderer          homing.Renderer
	logger            zerolog.Logger
	customLogger      bool
	telemetry         telemetry.Collector
	telemetryProvided bool
}

// Processor turns homing definitions into PLC files. It owns the logger,
// renderer and telemetry derived from the definition and rebuilds them on
// Reload.
type Processor struct {
	mu sync.Mutex

	config     *config.Config
	configPath string
	outputDir  string

	renderer       homing.Renderer
	customRenderer bool

	collector       telemetry.Collector
	customTelemetry bool

	logger       zerolog.Logger
	customLogger bool
	cleanup      func()
}

// New constructs a processor with the supplied options. Either WithConfig or
// WithConfigPath is required.
func New(ctx context.Context, opts ...Option) (*Processor, error) {
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cfg := settings{
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		if cfg.configPath == "" {
			return nil, errors.New("definition path required")
		}
		loaded, err := config.Load(cfg.configPath)
		if err != nil {
			return nil, fmt.Errorf("load definition: %w", err)
		}
		cfg.config = loaded
	}

	proc := &Processor{
		configPath:      cfg.configPath,
		outputDir:       cfg.outputDir,
		renderer:        cfg.renderer,
		customRenderer:  cfg.renderer != nil,
		collector:       cfg.telemetry,
		customTelemetry: cfg.telemetryProvided,
		logger:          cfg.logger,
		customLogger:    cfg.customLogger,
		cleanup:         func() {},
	}
	if err := proc.apply(cfg.config); err != nil {
		return nil, err
	}
	return proc, nil
}

// apply installs cfg and everything derived from it.
func (p *Processor) apply(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("definition must not be nil")
	}

	logger := p.logger
	cleanup := func() {}
	if !p.customLogger {
		l, c, err := logging.Setup(cfg.Logging)
		if err != nil {
			return err
		}
		logger, cleanup = l, c
	}

	renderer := p.renderer
	if !p.customRenderer {
		opts := []render.Option{render.WithLogger(logger)}
		if cfg.Templates != "" {
			opts = append(opts, render.WithTemplateDir(cfg.Templates))
		}
		engine, err := render.New(opts...)
		if err != nil {
			cleanup()
			return err
		}
		renderer = engine
	}

	collector := p.collector
	if !p.customTelemetry {
		c, err := newTelemetryCollector(cfg.Telemetry)
		if err != nil {
			logger.Warn().Err(err).Msg("telemetry disabled")
			c = telemetry.Noop()
		}
		collector = c
	}

	p.mu.Lock()
	old := p.cleanup
	p.config = cfg
	p.logger = logger
	p.cleanup = cleanup
	p.renderer = renderer
	p.collector = collector
	p.mu.Unlock()
	if old != nil {
		old()
	}
	return nil
}

// Config returns the active definition.
func (p *Processor) Config() *config.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

// OutputDir returns the directory PLC files are written to.
func (p *Processor) OutputDir() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outputDirLocked()
}

func (p *Processor) outputDirLocked() string {
	switch {
	case p.outputDir != "":
		return p.outputDir
	case p.config != nil && p.config.OutputDir != "":
		return p.config.OutputDir
	case p.configPath != "":
		if info, err := os.Stat(p.configPath); err == nil && info.IsDir() {
			return p.configPath
		}
		return filepath.Dir(p.configPath)
	default:
		return "."
	}
}

// Reload reads the definition again from the configured path.
func (p *Processor) Reload() error {
	if p.configPath == "" {
		return errors.New("reload not supported without definition path")
	}
	cfg, err := config.Load(p.configPath)
	if err != nil {
		p.collector.IncGenerationError("load")
		return fmt.Errorf("load definition: %w", err)
	}
	return p.apply(cfg)
}

// Watch generates once and again whenever a definition file or template
// override changes, until ctx is cancelled. Every outcome is passed to
// onResult; a failed reload keeps the previous definition active.
func (p *Processor) Watch(ctx context.Context, onResult func(*Report, error)) error {
	if p.configPath == "" {
		return errors.New("watch requires a definition path")
	}
	if onResult == nil {
		onResult = func(*Report, error) {}
	}
	onResult(p.Generate(ctx))

	cfg := p.Config()
	watcher, err := reload.NewWatcher(p.configPath, cfg, templateFiles(cfg), reload.WithLogger(p.logger))
	if err != nil {
		return err
	}
	return watcher.Run(ctx, func(files []string) {
		for _, file := range files {
			p.collector.IncHotReload(file)
		}
		p.logger.Info().Strs("files", files).Msg("definition changed")
		if err := p.Reload(); err != nil {
			onResult(nil, err)
			return
		}
		cfg := p.Config()
		if err := watcher.Update(p.configPath, cfg, templateFiles(cfg)...); err != nil {
			p.logger.Error().Err(err).Msg("failed to update definition watcher")
		}
		onResult(p.Generate(ctx))
	})
}

// WriteMetrics dumps the collected metrics to path, or to the definition's
// telemetry textfile when path is empty.
func (p *Processor) WriteMetrics(path string) error {
	p.mu.Lock()
	collector := p.collector
	if path == "" && p.config != nil {
		path = p.config.Telemetry.Textfile
	}
	p.mu.Unlock()
	if path == "" {
		return nil
	}
	writer, ok := collector.(textfileWriter)
	if !ok {
		return fmt.Errorf("telemetry collector %T cannot write %s", collector, path)
	}
	return writer.WriteTextfile(path)
}

// Close releases resources managed by the processor.
func (p *Processor) Close() {
	p.mu.Lock()
	cleanup := p.cleanup
	p.cleanup = func() {}
	p.mu.Unlock()
	if cleanup != nil {
		cleanup()
	}
}

func templateFiles(cfg *config.Config) []string {
	if cfg == nil || cfg.Templates == "" {
		return nil
	}
	files, err := doublestar.FilepathGlob(filepath.Join(cfg.Templates, "**", "*"+render.Extension))
	if err != nil {
		return nil
	}
	return files
}
