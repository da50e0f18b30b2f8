// Package render turns homing PLCs into PMAC source text using the embedded
// snippet templates.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"text/template"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/timzifer/motorhome/homing"
)

// Extension is appended to template names to find their files.
const Extension = ".pmc.tmpl"

//go:embed templates/*.pmc.tmpl
var embedded embed.FS

// SnippetData is passed to every snippet template.
type SnippetData struct {
	Plc   *homing.Plc
	Group *homing.Group
	Args  any
}

// Engine renders PLCs. It is safe for concurrent use once constructed.
type Engine struct {
	templates *template.Template
	overrides []string
	logger    zerolog.Logger
}

// Option configures an Engine.
type Option func(*engineSettings) error

type engineSettings struct {
	logger       zerolog.Logger
	overrideDirs []string
}

// WithLogger sets the logger used to report template overrides.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *engineSettings) error {
		s.logger = logger
		return nil
	}
}

// WithTemplateDir loads templates from dir on top of the embedded set. Any
// file matching **/*.pmc.tmpl replaces the embedded template of the same name.
func WithTemplateDir(dir string) Option {
	return func(s *engineSettings) error {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return nil
		}
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("template dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("template dir %s is not a directory", dir)
		}
		s.overrideDirs = append(s.overrideDirs, dir)
		return nil
	}
}

// New parses the embedded templates and any overrides.
func New(opts ...Option) (*Engine, error) {
	settings := engineSettings{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&settings); err != nil {
			return nil, err
		}
	}

	e := &Engine{logger: settings.logger}
	root := template.New("motorhome")
	root.Funcs(template.FuncMap{"expand": e.expand})
	if err := parseFS(root, embedded, "templates/*"+Extension); err != nil {
		return nil, err
	}
	for _, dir := range settings.overrideDirs {
		names, err := parseOverrides(root, dir)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			e.logger.Info().Str("template", name).Str("dir", dir).Msg("template overridden")
		}
		e.overrides = append(e.overrides, names...)
	}
	e.templates = root
	return e, nil
}

func parseFS(root *template.Template, fsys fs.FS, pattern string) error {
	files, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return fmt.Errorf("list templates: %w", err)
	}
	sort.Strings(files)
	for _, file := range files {
		if _, err := parseFile(root, fsys, file); err != nil {
			return err
		}
	}
	return nil
}

func parseOverrides(root *template.Template, dir string) ([]string, error) {
	fsys := os.DirFS(dir)
	files, err := doublestar.Glob(fsys, "**/*"+Extension)
	if err != nil {
		return nil, fmt.Errorf("list templates in %s: %w", dir, err)
	}
	sort.Strings(files)
	names := make([]string, 0, len(files))
	for _, file := range files {
		name, err := parseFile(root, fsys, file)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func parseFile(root *template.Template, fsys fs.FS, file string) (string, error) {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", file, err)
	}
	name := path.Base(file)
	if _, err := root.New(name).Parse(string(data)); err != nil {
		return "", fmt.Errorf("parse template %s: %w", file, err)
	}
	return name, nil
}

// Render executes the template called name. "plc" expects a *homing.Plc and
// snippet names expect a SnippetData.
func (e *Engine) Render(name string, data any) (string, error) {
	file := strings.TrimSuffix(name, Extension) + Extension
	if e.templates.Lookup(file) == nil {
		return "", fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, file, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Templates lists the available template names without their extension.
func (e *Engine) Templates() []string {
	var names []string
	for _, t := range e.templates.Templates() {
		if strings.HasSuffix(t.Name(), Extension) {
			names = append(names, strings.TrimSuffix(t.Name(), Extension))
		}
	}
	sort.Strings(names)
	return names
}

// Overrides lists the templates replaced by WithTemplateDir.
func (e *Engine) Overrides() []string {
	return append([]string{}, e.overrides...)
}

// expand renders one entry of a group's template list. Axis filter entries
// change the group's active axes for the entries that follow and produce no
// text of their own.
func (e *Engine) expand(g *homing.Group, t homing.Template) (string, error) {
	switch t.Kind() {
	case homing.TemplateText:
		return t.Text(), nil
	case homing.TemplateAxisFilter:
		if err := g.ApplyAxisFilter(t.Axes()); err != nil {
			return "", err
		}
		return "", nil
	case homing.TemplateSnippet:
		text, err := e.Render(t.Name(), SnippetData{Plc: g.Plc(), Group: g, Args: t.Args()})
		if err != nil {
			return "", fmt.Errorf("snippet %s: %w", t.Name(), err)
		}
		return strings.TrimRight(text, "\n"), nil
	default:
		return "", fmt.Errorf("unknown template kind %s", t.Kind())
	}
}
