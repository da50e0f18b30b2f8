package verify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	lines := Normalize("CLOSE\r\n\n  OPEN   PLC11\tCLEAR  \n\n\n")
	assert.Equal(t, []string{"CLOSE\n", "OPEN PLC11 CLEAR\n"}, lines)
	assert.Empty(t, Normalize(" \n\t\n"))
}

func TestCompareIgnoresWhitespace(t *testing.T) {
	existing := []byte("CLOSE\n\nOPEN PLC11 CLEAR\n    HomingState = StateIdle\n")
	generated := []byte("CLOSE\nOPEN  PLC11 CLEAR\nHomingState=StateIdle\n")

	result, err := Compare("PLC11_SLITS_HM.pmc", existing, generated)
	require.NoError(t, err)
	assert.False(t, result.Equal, "spacing inside tokens is significant")

	generated = []byte("CLOSE\nOPEN  PLC11 CLEAR\n\tHomingState = StateIdle   \n")
	result, err = Compare("PLC11_SLITS_HM.pmc", existing, generated)
	require.NoError(t, err)
	assert.True(t, result.Equal)
	assert.Empty(t, result.Diff)
}

func TestCompareReportsDiff(t *testing.T) {
	existing := []byte("CLOSE\nOPEN PLC11 CLEAR\ncmd \"#1J^-1000\"\nDISABLE PLC11\n")
	generated := []byte("CLOSE\nOPEN PLC11 CLEAR\ncmd \"#1J^-2000\"\nDISABLE PLC11\n")

	result, err := Compare("PLC11.pmc", existing, generated)
	require.NoError(t, err)
	require.False(t, result.Equal)
	assert.True(t, strings.Contains(result.Diff, "--- PLC11.pmc (existing)"))
	assert.True(t, strings.Contains(result.Diff, "-cmd \"#1J^-1000\""))
	assert.True(t, strings.Contains(result.Diff, "+cmd \"#1J^-2000\""))
}

func TestCompareFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "PLC11.pmc")
	require.NoError(t, os.WriteFile(path, []byte("CLOSE\n"), 0o600))

	result, err := CompareFile(path, []byte("  CLOSE  \n"))
	require.NoError(t, err)
	assert.True(t, result.Equal)

	_, err = CompareFile(filepath.Join(t.TempDir(), "missing.pmc"), nil)
	require.Error(t, err)
}
