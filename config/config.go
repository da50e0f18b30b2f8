package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "600s" or "10m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// ModuleReference captures metadata about the configuration source that defined an entry.
type ModuleReference struct {
	File        string `json:"file,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Package     string `json:"package,omitempty"`
}

// ModuleInclude describes a referenced configuration module.
type ModuleInclude struct {
	Path        string
	Name        string
	Description string
}

// UnmarshalYAML allows module includes to be declared either as scalar strings or structured objects.
func (m *ModuleInclude) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return errors.New("module include node is nil")
	}
	switch value.Kind {
	case yaml.ScalarNode:
		var path string
		if err := value.Decode(&path); err != nil {
			return fmt.Errorf("decode module path: %w", err)
		}
		m.Path = strings.TrimSpace(path)
		return nil
	case yaml.MappingNode:
		var raw struct {
			Path        string `yaml:"path"`
			Name        string `yaml:"name"`
			Description string `yaml:"description"`
		}
		if err := value.Decode(&raw); err != nil {
			return fmt.Errorf("decode module include: %w", err)
		}
		if raw.Path == "" {
			return errors.New("module include missing path")
		}
		m.Path = raw.Path
		m.Name = raw.Name
		m.Description = raw.Description
		return nil
	default:
		return fmt.Errorf("unsupported module include node kind %d", value.Kind)
	}
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig configures generation metrics. Textfile names a file the
// metrics are written to in the node exporter textfile format.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
	Textfile string `yaml:"textfile,omitempty"`
}

// MotorConfig declares one axis of a PLC.
type MotorConfig struct {
	Axis  int `yaml:"axis"`
	Jdist int `yaml:"jdist,omitempty"`
}

// CommentConfig produces the per-axis comment block of a group.
type CommentConfig struct {
	HType string `yaml:"htype"`
	Post  string `yaml:"post,omitempty"`
}

// StepConfig is one entry of a group's program. Exactly one of Sequence,
// Snippet, Command or OnlyAxes is set. OnlyAxes steps carry nested Steps.
type StepConfig struct {
	Sequence string                 `yaml:"sequence,omitempty"`
	Snippet  string                 `yaml:"snippet,omitempty"`
	Command  string                 `yaml:"command,omitempty"`
	OnlyAxes []int                  `yaml:"only_axes,omitempty"`
	Args     map[string]interface{} `yaml:"args,omitempty"`
	Steps    []StepConfig           `yaml:"steps,omitempty"`
}

// StepKind identifies which action a step performs.
type StepKind string

const (
	StepSequence StepKind = "sequence"
	StepSnippet  StepKind = "snippet"
	StepCommand  StepKind = "command"
	StepOnlyAxes StepKind = "only_axes"
)

// Kind returns the action of the step or an error when zero or several are set.
func (s StepConfig) Kind() (StepKind, error) {
	var kinds []StepKind
	if s.Sequence != "" {
		kinds = append(kinds, StepSequence)
	}
	if s.Snippet != "" {
		kinds = append(kinds, StepSnippet)
	}
	if s.Command != "" {
		kinds = append(kinds, StepCommand)
	}
	if len(s.OnlyAxes) > 0 {
		kinds = append(kinds, StepOnlyAxes)
	}
	switch len(kinds) {
	case 0:
		return "", errors.New("step must set one of sequence, snippet, command or only_axes")
	case 1:
	default:
		return "", fmt.Errorf("step sets several actions: %v", kinds)
	}
	if kinds[0] != StepOnlyAxes && len(s.Steps) > 0 {
		return "", fmt.Errorf("%s step cannot contain nested steps", kinds[0])
	}
	if (kinds[0] == StepCommand || kinds[0] == StepOnlyAxes) && len(s.Args) > 0 {
		return "", fmt.Errorf("%s step does not take args", kinds[0])
	}
	return kinds[0], nil
}

// GroupConfig declares a group of axes homed together. PostHome accepts the
// legacy notation ("i", "h", "r100", ...), an action name or a number.
type GroupConfig struct {
	Group    int            `yaml:"group"`
	Axes     []int          `yaml:"axes"`
	PostHome interface{}    `yaml:"post_home,omitempty"`
	Comment  *CommentConfig `yaml:"comment,omitempty"`
	Steps    []StepConfig   `yaml:"steps"`
}

// PlcConfig declares one generated homing PLC.
type PlcConfig struct {
	Plc         int             `yaml:"plc"`
	Name        string          `yaml:"name,omitempty"`
	Description string          `yaml:"description,omitempty"`
	Controller  string          `yaml:"controller,omitempty"`
	File        string          `yaml:"file,omitempty"`
	Timeout     Duration        `yaml:"timeout,omitempty"`
	Motors      []MotorConfig   `yaml:"motors"`
	Groups      []GroupConfig   `yaml:"groups"`
	Source      ModuleReference `yaml:"-"`
}

// ControllerName returns the configured controller, "brick" when unset.
func (p PlcConfig) ControllerName() string {
	if strings.TrimSpace(p.Controller) == "" {
		return "brick"
	}
	return p.Controller
}

// OutputFile returns the PLC file name. Without an explicit file the name
// follows the PLC<n>_<name>_HM.pmc convention of motion areas.
func (p PlcConfig) OutputFile() string {
	if strings.TrimSpace(p.File) != "" {
		return p.File
	}
	if p.Name != "" {
		return fmt.Sprintf("PLC%d_%s_HM.pmc", p.Plc, p.Name)
	}
	return fmt.Sprintf("PLC%d_HM.pmc", p.Plc)
}

// Config is the root of a homing definition.
type Config struct {
	Name        string          `yaml:"name,omitempty"`
	Description string          `yaml:"description,omitempty"`
	Logging     LoggingConfig   `yaml:"logging"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Modules     []ModuleInclude `yaml:"modules"`
	OutputDir   string          `yaml:"output_dir,omitempty"`
	Templates   string          `yaml:"templates,omitempty"`
	HotReload   bool            `yaml:"hot_reload,omitempty"`
	Plcs        []PlcConfig     `yaml:"plcs"`
	Source      ModuleReference `yaml:"-"`
}

type moduleContext struct {
	packagePath []string
	values      map[string]*yaml.Node
}

type moduleResult struct {
	cfg         *Config
	packageName string
	packagePath []string
}

// Load reads a definition file or directory, follows its module includes and
// validates the result against the definition schema.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	visited := make(map[string]struct{})
	ctx := moduleContext{values: make(map[string]*yaml.Node)}

	var result *moduleResult
	if info.IsDir() {
		result, err = loadDir(abs, visited, ctx)
	} else {
		result, err = loadFile(abs, visited, ctx)
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &Config{}, nil
	}
	if err := validatePlcs(result.cfg); err != nil {
		return nil, err
	}
	return result.cfg, nil
}

func readDocument(path string) (*yaml.Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if isCueFile(path) {
		raw, err = cueToJSON(raw, path)
		if err != nil {
			return nil, err
		}
	}

	var document yaml.Node
	if err := yaml.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if len(document.Content) == 0 || document.Content[0] == nil {
		return nil, fmt.Errorf("config %s is empty", path)
	}
	root := document.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config %s: top-level document must be a mapping", path)
	}
	return root, nil
}

func loadFile(path string, visited map[string]struct{}, ctx moduleContext) (*moduleResult, error) {
	if _, ok := visited[path]; ok {
		return nil, fmt.Errorf("config include cycle detected at %s", path)
	}
	visited[path] = struct{}{}
	defer delete(visited, path)

	root, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	pkgName, err := extractPackageName(root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if pkgName == "" {
		return nil, fmt.Errorf("%s: package name is required", path)
	}
	if err := ensureIdentifier(pkgName, "package"); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	fullPath := append([]string{}, ctx.packagePath...)
	if len(fullPath) == 0 {
		fullPath = append(fullPath, pkgName)
	} else if expected := fullPath[len(fullPath)-1]; expected != pkgName {
		return nil, fmt.Errorf("package mismatch: expected %q, got %q", expected, pkgName)
	}
	packagePath := strings.Join(fullPath, ".")

	baseDir := filepath.Dir(path)
	values := copyValueMap(ctx.values)
	if err := loadValuesIntoMap(root, baseDir, values); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := resolveValueTags(root, values); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := validateDocument(root, path); err != nil {
		return nil, err
	}

	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.OutputDir = resolveRelative(baseDir, cfg.OutputDir)
	cfg.Templates = resolveRelative(baseDir, cfg.Templates)
	cfg.setSource(ModuleReference{File: path, Name: cfg.Name, Description: cfg.Description, Package: packagePath})

	modules := cfg.Modules
	cfg.Modules = nil

	for _, module := range modules {
		if module.Path == "" {
			continue
		}
		modulePath := resolveRelative(baseDir, module.Path)
		info, err := os.Stat(modulePath)
		if err != nil {
			return nil, fmt.Errorf("load module %s: %w", module.Path, err)
		}

		childPackagePath, err := computeChildPackagePath(baseDir, modulePath, fullPath, info.IsDir())
		if err != nil {
			return nil, fmt.Errorf("load module %s: %w", module.Path, err)
		}
		childCtx := moduleContext{packagePath: childPackagePath, values: copyValueMap(values)}

		var result *moduleResult
		if info.IsDir() {
			result, err = loadDir(modulePath, visited, childCtx)
		} else {
			result, err = loadFile(modulePath, visited, childCtx)
		}
		if err != nil {
			return nil, fmt.Errorf("load module %s: %w", module.Path, err)
		}
		if result == nil || result.cfg == nil {
			continue
		}
		if len(result.packagePath) > 0 && !packagePathIsDescendant(result.packagePath, childPackagePath) {
			return nil, fmt.Errorf("module %s declares package %s outside parent package %s", module.Path, strings.Join(result.packagePath, "."), packagePath)
		}
		result.cfg.applyModuleMetadata(ModuleReference{
			Name:        firstNonEmpty(module.Name, result.cfg.Source.Name),
			Description: firstNonEmpty(module.Description, result.cfg.Source.Description),
		})
		mergeConfig(&cfg, result.cfg)
	}

	return &moduleResult{cfg: &cfg, packageName: pkgName, packagePath: fullPath}, nil
}

func loadDir(path string, visited map[string]struct{}, ctx moduleContext) (*moduleResult, error) {
	if _, ok := visited[path]; ok {
		return nil, fmt.Errorf("config include cycle detected at %s", path)
	}
	visited[path] = struct{}{}
	defer delete(visited, path)

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read config dir %s: %w", path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	result := &Config{}
	result.setSource(ModuleReference{File: path, Package: strings.Join(ctx.packagePath, ".")})

	var dirPackage []string
	for _, entry := range entries {
		if entry.IsDir() || isValuesFile(entry.Name()) || !isDefinitionFile(entry.Name()) {
			continue
		}
		res, err := loadFile(filepath.Join(path, entry.Name()), visited, ctx)
		if err != nil {
			return nil, err
		}
		if len(dirPackage) == 0 {
			dirPackage = append([]string(nil), res.packagePath...)
		} else if !equalPackagePath(dirPackage, res.packagePath) {
			return nil, fmt.Errorf("%s: inconsistent package declarations (%s vs %s)", path, strings.Join(dirPackage, "."), strings.Join(res.packagePath, "."))
		}
		mergeConfig(result, res.cfg)
	}

	name := ""
	if len(dirPackage) > 0 {
		name = dirPackage[len(dirPackage)-1]
	}
	return &moduleResult{cfg: result, packagePath: dirPackage, packageName: name}, nil
}

func isDefinitionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".cue":
		return true
	default:
		return false
	}
}

func resolveRelative(baseDir, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

func extractPackageName(root *yaml.Node) (string, error) {
	var pkg string
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		if key == nil || key.Kind != yaml.ScalarNode || strings.TrimSpace(key.Value) != "package" {
			continue
		}
		if value := root.Content[i+1]; value != nil {
			if err := value.Decode(&pkg); err != nil {
				return "", fmt.Errorf("invalid package declaration: %w", err)
			}
		}
	}
	return strings.TrimSpace(pkg), nil
}

func ensureIdentifier(value, kind string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s identifier must not be empty", kind)
	}
	if strings.Contains(trimmed, ".") {
		return fmt.Errorf("%s %q must not contain '.'", kind, trimmed)
	}
	for idx, r := range trimmed {
		if idx == 0 && unicode.IsDigit(r) {
			return fmt.Errorf("%s %q must not start with a digit", kind, trimmed)
		}
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return fmt.Errorf("%s %q contains invalid character %q", kind, trimmed, r)
		}
	}
	return nil
}

func computeChildPackagePath(baseDir, modulePath string, parent []string, isDir bool) ([]string, error) {
	rel, err := filepath.Rel(baseDir, modulePath)
	if err != nil {
		return nil, err
	}
	rel = filepath.Clean(rel)
	if strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("module path %s escapes base directory", modulePath)
	}
	if !isDir {
		rel = filepath.Dir(rel)
	}
	result := append([]string{}, parent...)
	if rel == "." {
		return result, nil
	}
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		if part == "" || part == "." {
			continue
		}
		if err := ensureIdentifier(part, "module directory"); err != nil {
			return nil, err
		}
		result = append(result, part)
	}
	return result, nil
}

func packagePathIsDescendant(child, parent []string) bool {
	if len(child) < len(parent) {
		return false
	}
	return equalPackagePath(child[:len(parent)], parent)
}

func equalPackagePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// validatePlcs checks cross-module constraints that a single document
// cannot see.
func validatePlcs(cfg *Config) error {
	numbers := make(map[int]string, len(cfg.Plcs))
	files := make(map[string]int, len(cfg.Plcs))
	for _, plc := range cfg.Plcs {
		if other, exists := numbers[plc.Plc]; exists {
			return fmt.Errorf("plc %d defined in %s and %s", plc.Plc, other, plc.Source.File)
		}
		numbers[plc.Plc] = plc.Source.File
		file := plc.OutputFile()
		if other, exists := files[file]; exists {
			return fmt.Errorf("plc %d and plc %d both write %s", other, plc.Plc, file)
		}
		files[file] = plc.Plc
		for gi, group := range plc.Groups {
			if err := validateSteps(group.Steps); err != nil {
				return fmt.Errorf("plc %d group %d (entry %d): %w", plc.Plc, group.Group, gi, err)
			}
		}
	}
	return nil
}

func validateSteps(steps []StepConfig) error {
	for i, step := range steps {
		kind, err := step.Kind()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if kind == StepOnlyAxes {
			if err := validateSteps(step.Steps); err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
		}
	}
	return nil
}

func mergeConfig(dst, src *Config) {
	if dst == nil || src == nil {
		return
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}
	if src.Logging.Loki.Enabled || src.Logging.Loki.URL != "" || len(src.Logging.Loki.Labels) > 0 {
		dst.Logging.Loki = src.Logging.Loki
	}
	if src.Telemetry.Enabled || src.Telemetry.Provider != "" || src.Telemetry.Textfile != "" {
		dst.Telemetry = src.Telemetry
	}
	if dst.OutputDir == "" {
		dst.OutputDir = src.OutputDir
	}
	if dst.Templates == "" {
		dst.Templates = src.Templates
	}
	if src.HotReload {
		dst.HotReload = true
	}
	dst.Plcs = append(dst.Plcs, src.Plcs...)
}

func (c *Config) setSource(meta ModuleReference) {
	if meta.File == "" {
		meta.File = c.Source.File
	}
	if meta.Name == "" {
		meta.Name = c.Name
	}
	if meta.Description == "" {
		meta.Description = c.Description
	}
	c.Source = meta
	for i := range c.Plcs {
		c.Plcs[i].Source = mergeInitialSource(c.Plcs[i].Source, meta)
	}
}

func (c *Config) applyModuleMetadata(meta ModuleReference) {
	c.Source = mergeModuleOverride(c.Source, meta)
	for i := range c.Plcs {
		c.Plcs[i].Source = mergeModuleOverride(c.Plcs[i].Source, meta)
	}
}

func mergeInitialSource(child, meta ModuleReference) ModuleReference {
	if child.File == "" {
		child.File = meta.File
	}
	if child.Name == "" {
		child.Name = meta.Name
	}
	if child.Description == "" {
		child.Description = meta.Description
	}
	if child.Package == "" {
		child.Package = meta.Package
	}
	return child
}

func mergeModuleOverride(base, override ModuleReference) ModuleReference {
	if override.File != "" {
		base.File = override.File
	}
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.Description != "" {
		base.Description = override.Description
	}
	if override.Package != "" {
		base.Package = override.Package
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
