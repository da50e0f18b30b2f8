package legacy

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// ScriptName is the v1 generator looked for next to each Master.pmc.
	ScriptName = "generate_homing_plcs.py"
	// DefinitionName is the v2 definition written next to each Master.pmc.
	DefinitionName = "homing.yaml"
)

// MotionResult reports the conversion of one motion controller directory.
type MotionResult struct {
	Dir        string
	Script     string
	Definition string
	Files      []string
	Err        error
}

// ConvertMotion scans a motion area for Master.pmc files that include
// homing PLCs and converts the generator script of each controller
// directory. Per directory failures are reported in the results.
func ConvertMotion(ctx context.Context, root string, opts ...Option) ([]MotionResult, error) {
	fsys := os.DirFS(root)
	masters, err := doublestar.Glob(fsys, "**/Master.pmc")
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(masters)

	var results []MotionResult
	for _, master := range masters {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		data, err := fs.ReadFile(fsys, master)
		if err != nil {
			return results, fmt.Errorf("read %s: %w", master, err)
		}
		files := MasterIncludes(data)
		if len(files) == 0 {
			continue
		}
		dir := path.Dir(master)
		result := MotionResult{
			Dir:        filepath.Join(root, filepath.FromSlash(dir)),
			Definition: filepath.Join(root, filepath.FromSlash(dir), DefinitionName),
			Files:      files,
		}
		script, ok := findScript(fsys, dir)
		if !ok {
			result.Err = fmt.Errorf("no %s for %s", ScriptName, master)
			results = append(results, result)
			continue
		}
		result.Script = filepath.Join(root, filepath.FromSlash(script))
		name := path.Base(dir)
		if dir == "." {
			name = filepath.Base(root)
		}
		convertOpts := append([]Option{WithName(name)}, opts...)
		_, result.Err = ConvertFile(ctx, result.Script, result.Definition, files, convertOpts...)
		results = append(results, result)
	}
	return results, nil
}

func findScript(fsys fs.FS, dir string) (string, bool) {
	for _, candidate := range []string{path.Join(dir, ScriptName), path.Join(dir, "configure", ScriptName)} {
		if info, err := fs.Stat(fsys, candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
	}
	return "", false
}
