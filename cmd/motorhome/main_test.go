package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const definition = `package: bl02i
output_dir: out
plcs:
  - plc: 11
    name: SLITS
    motors:
      - {axis: 1, jdist: 1000}
      - {axis: 2, jdist: 1000}
    groups:
      - group: 2
        axes: [1, 2]
        comment: {htype: RLIM}
        steps:
          - sequence: home_rlim
`

const script = `from motorhome import *

if name == "SLITS":
    plc = PLC(11, htype=HSW, ctype=GEOBRICK)
    plc.add_motor(1, group=2, jdist=-1000)
    plc.add_motor(2, group=2, jdist=-1000)
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv(envOutDir, "")
	t.Setenv(envLogLevel, "error")
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeDefinition(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "out"), 0o755))
	path := filepath.Join(dir, "homing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(definition), 0o644))
	return dir, path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "motorhome dev\n", out)
}

func TestSequencesListsRegistry(t *testing.T) {
	out, err := execute(t, "sequences")
	require.NoError(t, err)
	require.Contains(t, out, "  home_rlim\n")
	require.Contains(t, out, "  home_slits_hsw\n")
	require.Contains(t, out, "  drive_to_limit ")
}

func TestGenerateWritesPlcs(t *testing.T) {
	dir, path := writeDefinition(t)
	metrics := filepath.Join(dir, "motorhome.prom")

	out, err := execute(t, "generate", "-c", path, "--metrics-textfile", metrics)
	require.NoError(t, err)
	require.Contains(t, out, "Generated 1 PLC(s)")

	text, err := os.ReadFile(filepath.Join(dir, "out", "PLC11_SLITS_HM.pmc"))
	require.NoError(t, err)
	require.Contains(t, string(text), "OPEN PLC11 CLEAR")

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	require.Contains(t, string(prom), "motorhome_plcs_generated_total")
}

func TestGenerateOutputOverride(t *testing.T) {
	_, path := writeDefinition(t)
	other := t.TempDir()

	_, err := execute(t, "generate", "-c", path, "-o", other)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(other, "PLC11_SLITS_HM.pmc"))
	require.NoError(t, err)
}

func TestCheckDoesNotWrite(t *testing.T) {
	dir, path := writeDefinition(t)

	out, err := execute(t, "check", "-c", path, "--show")
	require.NoError(t, err)
	require.Contains(t, out, "PLC11 SLITS (brick)")
	require.Contains(t, out, "Definition check completed successfully.")
	require.Contains(t, out, "OPEN PLC11 CLEAR")

	_, err = os.Stat(filepath.Join(dir, "out", "PLC11_SLITS_HM.pmc"))
	require.True(t, os.IsNotExist(err))
}

func TestCheckReportsBadDefinition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "homing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("package: bad\nplcs:\n  - plc: 1\n    groups:\n      - group: 2\n        axes: [3]\n"), 0o644))

	_, err := execute(t, "check", "-c", path)
	require.Error(t, err)
}

func TestVerifyAfterGenerate(t *testing.T) {
	dir, path := writeDefinition(t)
	_, err := execute(t, "generate", "-c", path)
	require.NoError(t, err)

	out, err := execute(t, "verify", "-c", path)
	require.NoError(t, err)
	require.Contains(t, out, "OK ")

	target := filepath.Join(dir, "out", "PLC11_SLITS_HM.pmc")
	require.NoError(t, os.WriteFile(target, []byte("OPEN PLC11 CLEAR\nCLOSE\n"), 0o644))
	out, err = execute(t, "verify", "-c", path)
	require.Error(t, err)
	require.Contains(t, out, "DIFFER")
	require.Contains(t, out, "(generated)")
}

func TestVerifyAgainstDirectory(t *testing.T) {
	dir, path := writeDefinition(t)
	_, err := execute(t, "generate", "-c", path)
	require.NoError(t, err)

	against := t.TempDir()
	generated, err := os.ReadFile(filepath.Join(dir, "out", "PLC11_SLITS_HM.pmc"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(against, "PLC11_SLITS_HM.pmc"), generated, 0o644))

	_, err = execute(t, "verify", "-c", path, "--against", against)
	require.NoError(t, err)

	out, err := execute(t, "verify", "-c", path, "--against", t.TempDir())
	require.Error(t, err)
	require.Contains(t, out, "MISSING")
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "generate_homing_plcs.py")
	require.NoError(t, os.WriteFile(in, []byte(script), 0o644))
	out := filepath.Join(dir, "slits.yaml")

	stdout, err := execute(t, "convert", "file", in, out, "--plc", "PLCs/PLC11_SLITS_HM.pmc")
	require.NoError(t, err)
	require.Contains(t, stdout, "(1 PLC(s))")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), "package: slits")
	require.Contains(t, string(data), "PLCs/PLC11_SLITS_HM.pmc")
}

func TestConvertMotionVerify(t *testing.T) {
	root := t.TempDir()
	step := filepath.Join(root, "BL02I-MO-STEP-14")
	require.NoError(t, os.MkdirAll(filepath.Join(step, "PLCs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(step, "Master.pmc"), []byte("#include \"PLCs/PLC11_SLITS_HM.pmc\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(step, "generate_homing_plcs.py"), []byte(script), 0o644))

	out, err := execute(t, "convert", "motion", root)
	require.NoError(t, err)
	require.Contains(t, out, "Converted 1 of 1 controller(s)")

	// Nothing generated yet, so verification reports the missing PLC.
	out, err = execute(t, "convert", "motion", root, "--verify")
	require.Error(t, err)
	require.Contains(t, out, "MISSING")

	_, err = execute(t, "generate", "-c", filepath.Join(step, "homing.yaml"))
	require.NoError(t, err)
	_, err = execute(t, "convert", "motion", root, "--verify")
	require.NoError(t, err)
}
