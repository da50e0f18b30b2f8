package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const slitsDefinition = `package: bl02i
name: BL02I homing
output_dir: out
logging:
  level: debug
plcs:
  - plc: 11
    name: SLITS1
    controller: pmac
    timeout: 300s
    motors:
      - {axis: 1, jdist: 100}
      - {axis: 2}
    groups:
      - group: 2
        axes: [1, 2]
        post_home: r-500
        comment: {htype: HSW}
        steps:
          - sequence: home_hsw
          - only_axes: [1]
            steps:
              - snippet: drive_relative
                args: {distance: 10, set_home: true}
          - command: "    i122=10"
`

func TestLoadDefinition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "homing.yaml")
	writeFile(t, path, slitsDefinition)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Plcs) != 1 {
		t.Fatalf("expected 1 plc, got %d", len(cfg.Plcs))
	}
	plc := cfg.Plcs[0]
	if plc.Plc != 11 || plc.ControllerName() != "pmac" {
		t.Fatalf("unexpected plc: %+v", plc)
	}
	if plc.Timeout.Duration != 300*time.Second {
		t.Fatalf("expected timeout 300s, got %s", plc.Timeout.Duration)
	}
	if plc.OutputFile() != "PLC11_SLITS1_HM.pmc" {
		t.Fatalf("unexpected output file %s", plc.OutputFile())
	}
	if len(plc.Motors) != 2 || plc.Motors[0].Jdist != 100 || plc.Motors[1].Jdist != 0 {
		t.Fatalf("unexpected motors: %+v", plc.Motors)
	}
	group := plc.Groups[0]
	if group.PostHome != "r-500" {
		t.Fatalf("unexpected post home %v", group.PostHome)
	}
	if group.Comment == nil || group.Comment.HType != "HSW" {
		t.Fatalf("unexpected comment %+v", group.Comment)
	}
	if len(group.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(group.Steps))
	}
	nested := group.Steps[1]
	if kind, err := nested.Kind(); err != nil || kind != StepOnlyAxes {
		t.Fatalf("expected only_axes step, got %s (%v)", kind, err)
	}
	if nested.Steps[0].Args["set_home"] != true {
		t.Fatalf("unexpected nested args %+v", nested.Steps[0].Args)
	}
	if cfg.OutputDir != filepath.Join(dir, "out") {
		t.Fatalf("output dir not resolved relative to the definition: %s", cfg.OutputDir)
	}
	if plc.Source.File != path || plc.Source.Package != "bl02i" {
		t.Fatalf("unexpected source %+v", plc.Source)
	}
}

func TestLoadModules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "slits", "slits.yaml"), `package: slits
name: Slits module
plcs:
  - plc: 12
    motors: [{axis: 3}]
    groups:
      - group: 2
        axes: [3]
        steps: [{sequence: home_limit}]
`)
	mainPath := filepath.Join(dir, "main.yaml")
	writeFile(t, mainPath, `package: beamline
name: Beamline
modules:
  - path: slits
    description: Slit homing
plcs:
  - plc: 11
    motors: [{axis: 1}]
`)

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Plcs) != 2 {
		t.Fatalf("expected 2 plcs, got %d", len(cfg.Plcs))
	}
	module := cfg.Plcs[1]
	if module.Source.Package != "beamline.slits" {
		t.Fatalf("expected nested package, got %q", module.Source.Package)
	}
	if module.Source.Description != "Slit homing" {
		t.Fatalf("expected include description to win, got %q", module.Source.Description)
	}
	files := SourceFiles(cfg)
	if len(files) != 2 {
		t.Fatalf("expected 2 source files, got %v", files)
	}
}

func TestModuleCycleDetected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "package: loop\nmodules: [b.yaml]\n")
	writeFile(t, filepath.Join(dir, "b.yaml"), "package: loop\nmodules: [a.yaml]\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestLoadDirectorySkipsValuesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "shared.values.yaml"), "slit_jdist: 250\n")
	writeFile(t, filepath.Join(dir, "00-logging.yaml"), "package: site\nlogging: {level: warn}\n")
	writeFile(t, filepath.Join(dir, "10-plc.yaml"), `package: site
values: [shared.values.yaml]
plcs:
  - plc: 9
    motors:
      - axis: 1
        jdist: !slit_jdist
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected level warn, got %q", cfg.Logging.Level)
	}
	if cfg.Plcs[0].Motors[0].Jdist != 250 {
		t.Fatalf("expected substituted jdist, got %d", cfg.Plcs[0].Motors[0].Jdist)
	}
}

func TestUnknownValueReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homing.yaml")
	writeFile(t, path, `package: site
plcs:
  - plc: 9
    motors:
      - axis: 1
        jdist: !missing
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected unknown value error, got %v", err)
	}
}

func TestSchemaRejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]string{
		"plc number":    "package: site\nplcs: [{plc: 8}]\n",
		"unknown field": "package: site\nplcs: [{plc: 9, speed: 3}]\n",
		"controller":    "package: site\nplcs: [{plc: 9, controller: vme}]\n",
		"jdist type":    "package: site\nplcs: [{plc: 9, motors: [{axis: 1, jdist: 1.5}]}]\n",
		"log level":     "package: site\nlogging: {level: loud}\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "homing.yaml")
			writeFile(t, path, content)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected schema error")
			}
		})
	}
}

func TestStepKinds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homing.yaml")
	writeFile(t, path, `package: site
plcs:
  - plc: 9
    motors: [{axis: 1}]
    groups:
      - group: 2
        axes: [1]
        steps:
          - {sequence: home_hsw, command: "cmd"}
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "several actions") {
		t.Fatalf("expected step error, got %v", err)
	}

	if _, err := (StepConfig{}).Kind(); err == nil {
		t.Fatalf("expected empty step to fail")
	}
	if _, err := (StepConfig{Command: "x", Args: map[string]interface{}{"a": 1}}).Kind(); err == nil {
		t.Fatalf("expected command with args to fail")
	}
}

func TestDuplicatePlcRejected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "package: site\nplcs: [{plc: 9}]\n")
	writeFile(t, filepath.Join(dir, "b.yaml"), "package: site\nplcs: [{plc: 9}]\n")
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "plc 9") {
		t.Fatalf("expected duplicate plc error, got %v", err)
	}
}

func TestIdentifierWithDotRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homing.yaml")
	writeFile(t, path, "package: bl02i.slits\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "must not contain") {
		t.Fatalf("expected identifier error, got %v", err)
	}
}

func TestLoadCueDefinition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "homing.cue")
	writeFile(t, path, `_jdist: 400

config: {
	package: "site"
	plcs: [{
		plc:        10
		controller: "brick"
		motors: [{axis: 5, jdist: _jdist}]
		groups: [{
			group: 2
			axes: [5]
			post_home: "i"
			steps: [{sequence: "home_rlim"}]
		}]
	}]
}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load cue: %v", err)
	}
	if len(cfg.Plcs) != 1 || cfg.Plcs[0].Motors[0].Jdist != 400 {
		t.Fatalf("unexpected plcs %+v", cfg.Plcs)
	}
	if cfg.Plcs[0].Groups[0].PostHome != "i" {
		t.Fatalf("unexpected post home %v", cfg.Plcs[0].Groups[0].PostHome)
	}
}

func TestCueDefinitionValidated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "homing.cue")
	writeFile(t, path, "name: \"bad\"\npackage: \"site\"\nplcs: [{plc: 40}]\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected plc range error")
	}
}
