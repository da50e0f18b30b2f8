// Package verify compares regenerated PLCs with the files they replace.
package verify

import (
	"fmt"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Result reports the comparison of one PLC.
type Result struct {
	Path  string
	Equal bool
	// Diff is a unified diff of the normalised texts, empty when Equal.
	Diff string
}

// Normalize splits text into lines with runs of whitespace collapsed to a
// single space and blank lines dropped. Two PLCs that differ only in layout
// normalise to the same lines.
func Normalize(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		lines = append(lines, strings.Join(fields, " ")+"\n")
	}
	return lines
}

// Compare checks a regenerated PLC against the expected text.
func Compare(path string, expected, actual []byte) (Result, error) {
	want, got := Normalize(string(expected)), Normalize(string(actual))
	result := Result{Path: path, Equal: equal(want, got)}
	if result.Equal {
		return result, nil
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        want,
		B:        got,
		FromFile: path + " (existing)",
		ToFile:   path + " (generated)",
		Context:  3,
	})
	if err != nil {
		return result, fmt.Errorf("diff %s: %w", path, err)
	}
	result.Diff = diff
	return result, nil
}

// CompareFile checks generated text against the file at path.
func CompareFile(path string, generated []byte) (Result, error) {
	existing, err := os.ReadFile(path)
	if err != nil {
		return Result{Path: path}, fmt.Errorf("read %s: %w", path, err)
	}
	return Compare(path, existing, generated)
}

func equal(a, b []string) bool {
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
