package legacy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/timzifer/motorhome/config"
)

// Option configures a conversion.
type Option func(*converter)

type converter struct {
	logger zerolog.Logger
	name   string
}

// WithLogger sets the logger that reports skipped script constructs.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *converter) {
		c.logger = logger
	}
}

// WithName sets the name of the produced definition.
func WithName(name string) Option {
	return func(c *converter) {
		c.name = name
	}
}

func newConverter(opts []Option) converter {
	c := converter{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// Convert interprets a v1 script once per target and returns the equivalent
// v2 definition. Without targets every branch of the script is converted
// and numbered by DefaultTargets.
func Convert(ctx context.Context, src []byte, targets []Target, opts ...Option) (*config.Config, error) {
	c := newConverter(opts)
	if len(targets) == 0 {
		targets = DefaultTargets(src)
	}
	if len(targets) == 0 {
		return nil, errors.New(`script has no "if name == ..." branches`)
	}
	s, err := parseScript(ctx, src, c.logger)
	if err != nil {
		return nil, err
	}
	defer s.close()

	cfg := &config.Config{Name: c.name}
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recorded, err := s.run(target.Name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", target.File, err)
		}
		plc, err := recorded.definition(target)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", target.File, err)
		}
		c.logger.Debug().Str("name", target.Name).Int("plc", target.Plc).Int("groups", len(plc.Groups)).Msg("converted branch")
		cfg.Plcs = append(cfg.Plcs, plc)
	}
	return cfg, nil
}

type document struct {
	Package     string             `yaml:"package"`
	Name        string             `yaml:"name,omitempty"`
	Description string             `yaml:"description,omitempty"`
	Plcs        []config.PlcConfig `yaml:"plcs"`
}

// Marshal renders cfg as a v2 YAML definition. Only the package, name,
// description and PLCs are written; the package is derived from the name
// unless cfg carries one.
func Marshal(cfg *config.Config) ([]byte, error) {
	if cfg == nil {
		return nil, errors.New("definition must not be nil")
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	doc := document{
		Package:     packageName(cfg),
		Name:        cfg.Name,
		Description: cfg.Description,
		Plcs:        cfg.Plcs,
	}
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode definition: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode definition: %w", err)
	}
	return buf.Bytes(), nil
}

// DefaultPackage is used when no package can be derived from the name.
const DefaultPackage = "homing"

func packageName(cfg *config.Config) string {
	if cfg.Source.Package != "" {
		parts := strings.Split(cfg.Source.Package, ".")
		return parts[len(parts)-1]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(cfg.Name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "_"):
			b.WriteRune('_')
		}
	}
	name := strings.TrimRight(b.String(), "_")
	if name == "" || unicode.IsDigit(rune(name[0])) {
		return DefaultPackage
	}
	return name
}

// ConvertFile converts the script at in and writes the definition to out.
// files are PLC file names as included by Master.pmc; when empty every
// branch is converted.
func ConvertFile(ctx context.Context, in, out string, files []string, opts ...Option) (*config.Config, error) {
	src, err := os.ReadFile(in)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	targets, err := ParseTargets(files)
	if err != nil {
		return nil, err
	}
	cfg, err := Convert(ctx, src, targets, opts...)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", in, err)
	}
	cfg.Description = fmt.Sprintf("Converted from %s", filepath.Base(in))
	data, err := Marshal(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return nil, fmt.Errorf("write definition: %w", err)
	}
	return cfg, nil
}
