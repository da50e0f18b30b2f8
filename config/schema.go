package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

// Schema is the CUE definition every document is checked against. CUE
// definition files may unify their top level or a "config" field with
// #Definition to get the same checks while editing.
const Schema = `
#Definition: {
	package?:     string
	name?:        string
	description?: string
	modules?: [...(string | {path: string, name?: string, description?: string})]
	values?: [...(string | {[string]: _})]
	logging?: {
		level?:  "" | "trace" | "debug" | "info" | "warn" | "error" | "fatal" | "panic" | "disabled"
		format?: "" | "json" | "text"
		loki?: {
			enabled?: bool
			url?:     string
			labels?: [string]: string
		}
	}
	telemetry?: {
		enabled?:  bool
		provider?: "" | "prometheus" | "noop"
		textfile?: string
	}
	output_dir?: string
	templates?:  string
	hot_reload?: bool
	plcs?: [...#Plc]
}

#Plc: {
	plc:          int & >=9 & <=32
	name?:        string
	description?: string
	controller?:  "brick" | "geobrick" | "pmac" | "GeoBrick" | "PMAC"
	file?:        string
	timeout?:     string
	motors?: [...#Motor]
	groups?: [...#Group]
}

#Motor: {
	axis:   int & >=1
	jdist?: int
}

#Group: {
	group: int & >=1
	axes: [...int]
	post_home?: null | string | int
	comment?: {
		htype: string
		post?: string
	}
	steps?: [...#Step]
}

#Step: {
	sequence?:  string
	snippet?:   string
	command?:   string
	only_axes?: [...int]
	args?: {...}
	steps?: [...#Step]
}
`

// A cue.Context must not be used concurrently.
var schemaMu sync.Mutex

var (
	schemaOnce  sync.Once
	schemaCtx   *cue.Context
	schemaValue cue.Value
	schemaErr   error
)

func definition() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		compiled := schemaCtx.CompileString(Schema, cue.Filename("motorhome.cue"))
		if err := compiled.Err(); err != nil {
			schemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		schemaValue = compiled.LookupPath(cue.ParsePath("#Definition"))
		schemaErr = schemaValue.Err()
	})
	return schemaCtx, schemaValue, schemaErr
}

// validateDocument checks a decoded document against the schema.
func validateDocument(root *yaml.Node, path string) error {
	var data map[string]interface{}
	if err := root.Decode(&data); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()
	ctx, def, err := definition()
	if err != nil {
		return err
	}
	value := ctx.Encode(data)
	if err := value.Err(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s: schema validation failed: %s", path, formatCueError(err))
	}
	return nil
}

func formatCueError(err error) string {
	return strings.TrimSpace(cueerrors.Details(err, nil))
}

func isCueFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".cue")
}

// cueToJSON evaluates a CUE document and returns the definition as JSON. A
// top-level "config" field takes precedence over the file's root value.
func cueToJSON(raw []byte, path string) ([]byte, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	ctx, _, err := definition()
	if err != nil {
		return nil, err
	}
	value := ctx.CompileBytes(raw, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile %s: %s", path, formatCueError(err))
	}
	if nested := value.LookupPath(cue.ParsePath("config")); nested.Exists() {
		value = nested
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%s: %s", path, formatCueError(err))
	}
	data, err := value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", path, err)
	}
	return data, nil
}
