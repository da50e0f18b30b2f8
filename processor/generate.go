package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/timzifer/motorhome/config"
	"github.com/timzifer/motorhome/homing"
	"github.com/timzifer/motorhome/telemetry"
)

// PlcReport describes one generated PLC.
type PlcReport struct {
	Plc        int
	Name       string
	Controller string
	Path       string
	Source     string
	Groups     int
	Motors     int
	Snippets   int
	// Text holds the rendered PLC for Plan; Generate leaves it empty.
	Text string
}

// Report summarises one generation run.
type Report struct {
	RunID    string
	Plcs     []PlcReport
	Duration time.Duration
}

// Generate writes every PLC of the active definition. PLCs are produced in
// definition order; the first failure stops the run and the returned report
// lists the PLCs written before it.
func (p *Processor) Generate(ctx context.Context) (*Report, error) {
	return p.run(ctx, false)
}

// Plan runs the full generation without touching the output directory and
// returns the rendered text of every PLC. The output directories must
// still exist.
func (p *Processor) Plan(ctx context.Context) (*Report, error) {
	return p.run(ctx, true)
}

func (p *Processor) run(ctx context.Context, dryRun bool) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	cfg := p.config
	outDir := p.outputDirLocked()
	renderer := p.renderer
	collector := p.collector
	logger := p.logger
	p.mu.Unlock()

	report := &Report{RunID: uuid.NewString()}
	logger = logger.With().Str("run", report.RunID).Logger()

	scratch := ""
	if dryRun {
		dir, err := os.MkdirTemp("", "motorhome-plan-")
		if err != nil {
			return report, fmt.Errorf("create plan directory: %w", err)
		}
		defer os.RemoveAll(dir)
		scratch = dir
	}

	gen := generator{
		session:   homing.NewSession(renderer, homing.WithSessionLogger(logger)),
		collector: collector,
		logger:    logger,
	}
	start := time.Now()
	for _, pc := range cfg.Plcs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		target := plcPath(outDir, pc)
		entry := PlcReport{
			Plc:        pc.Plc,
			Name:       pc.Name,
			Controller: pc.ControllerName(),
			Path:       target,
			Source:     pc.Source.File,
			Motors:     len(pc.Motors),
			Groups:     len(pc.Groups),
		}
		path := target
		if dryRun {
			if _, err := os.Stat(filepath.Dir(target)); err != nil {
				collector.IncGenerationError("output")
				return report, fmt.Errorf("plc %d: %w: %s", pc.Plc, homing.ErrOutputDir, filepath.Dir(target))
			}
			path = filepath.Join(scratch, fmt.Sprintf("PLC%d.pmc", pc.Plc))
		}
		snippets, stage, err := gen.plc(pc, path)
		if err != nil {
			collector.IncGenerationError(stage)
			return report, fmt.Errorf("plc %d (%s): %w", pc.Plc, describeSource(pc.Source), err)
		}
		entry.Snippets = snippets
		if dryRun {
			text, err := os.ReadFile(path)
			if err != nil {
				return report, fmt.Errorf("read plan for plc %d: %w", pc.Plc, err)
			}
			entry.Text = string(text)
		} else {
			collector.IncPlcGenerated(entry.Controller)
		}
		report.Plcs = append(report.Plcs, entry)
	}
	report.Duration = time.Since(start)
	collector.ObserveGeneration(report.Duration)
	logger.Info().Int("plcs", len(report.Plcs)).Dur("duration", report.Duration).Bool("dry_run", dryRun).Msg("generation finished")
	return report, nil
}

func plcPath(outDir string, pc config.PlcConfig) string {
	file := pc.OutputFile()
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(outDir, file)
}

func describeSource(ref config.ModuleReference) string {
	switch {
	case ref.File != "":
		return ref.File
	case ref.Package != "":
		return ref.Package
	default:
		return "inline"
	}
}

// generator drives a homing session from definition documents.
type generator struct {
	session   *homing.Session
	collector telemetry.Collector
	logger    zerolog.Logger
}

// plc generates one PLC and returns the number of snippets it holds. On
// failure stage names the part of the definition that was rejected.
func (g generator) plc(pc config.PlcConfig, path string) (int, string, error) {
	controller, err := homing.ParseControllerType(pc.ControllerName())
	if err != nil {
		return 0, "controller", err
	}
	var opts []homing.PlcOption
	if pc.Timeout.Duration > 0 {
		opts = append(opts, homing.WithTimeout(pc.Timeout.Duration))
	}

	snippets := 0
	stage := "plc"
	err = g.session.WithPlc(pc.Plc, controller, path, func(plc *homing.Plc) error {
		stage = "motors"
		for _, m := range pc.Motors {
			if err := g.session.Motor(m.Axis, m.Jdist); err != nil {
				return err
			}
		}
		stage = "groups"
		for _, gc := range pc.Groups {
			if err := g.group(gc); err != nil {
				return fmt.Errorf("group %d: %w", gc.Group, err)
			}
		}
		for _, group := range plc.Groups() {
			for _, t := range group.Templates() {
				if t.Kind() == homing.TemplateSnippet {
					g.collector.IncSnippet(t.Name())
					snippets++
				}
			}
		}
		stage = "write"
		return nil
	}, opts...)
	return snippets, stage, err
}

func (g generator) group(gc config.GroupConfig) error {
	post, err := homing.ParsePostHome(gc.PostHome)
	if err != nil {
		return err
	}
	return g.session.WithGroup(gc.Group, gc.Axes, func(*homing.Group) error {
		if gc.Comment != nil {
			text := gc.Comment.Post
			if text == "" && post.Kind() != homing.PostHomeNone {
				text = post.String()
			}
			if err := g.session.Comment(gc.Comment.HType, text); err != nil {
				return err
			}
		}
		return g.steps(gc.Steps)
	}, homing.WithPostHome(post))
}

func (g generator) steps(steps []config.StepConfig) error {
	for i, step := range steps {
		kind, err := step.Kind()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		switch kind {
		case config.StepSequence:
			err = g.session.RunSequence(step.Sequence, step.Args)
		case config.StepSnippet:
			err = g.session.Snippet(step.Snippet, step.Args)
		case config.StepCommand:
			err = g.session.Command(step.Command)
		case config.StepOnlyAxes:
			nested := step.Steps
			err = g.session.WithOnlyAxes(step.OnlyAxes, func() error { return g.steps(nested) })
		}
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, kind, err)
		}
	}
	return nil
}
