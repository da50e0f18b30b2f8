package legacy

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
)

// Constants exported by the v1 motorhome module.
const (
	noHomingYet   = -1
	htypeHome     = 0
	htypeLimit    = 1
	htypeHsw      = 2
	htypeHswHlim  = 3
	htypeHswDir   = 4
	htypeRlim     = 5
	htypeNothing  = 6
	htypeHswHstop = 7

	ctypePmac     = 0
	ctypeGeoBrick = 1
)

type homingType struct {
	name     string
	sequence string
}

var homingTypes = map[int]homingType{
	htypeHome:     {"HOME", "home_home"},
	htypeLimit:    {"LIMIT", "home_limit"},
	htypeHsw:      {"HSW", "home_hsw"},
	htypeHswHlim:  {"HSW_HLIM", "home_hsw_hlim"},
	htypeHswDir:   {"HSW_DIR", "home_hsw_dir"},
	htypeRlim:     {"RLIM", "home_rlim"},
	htypeNothing:  {"NOTHING", "home_nothing"},
	htypeHswHstop: {"HSW_HSTOP", "home_hsw_hstop"},
}

func baseEnv() map[string]any {
	env := map[string]any{
		"None":  nil,
		"True":  true,
		"False": false,

		"PMAC":     ctypePmac,
		"GEOBRICK": ctypeGeoBrick,
		"BRICK":    ctypeGeoBrick,
	}
	for value, t := range homingTypes {
		env[t.name] = value
	}
	return env
}

// evaluate runs a python expression that is also a valid expr expression:
// literals, names, arithmetic and lists.
func evaluate(source string, env map[string]any) (any, error) {
	program, err := expr.Compile(source, expr.Env(env))
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%v (%T) is not an integer", v, v)
	}
}

func toInts(v any) ([]int, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%v (%T) is not a list", v, v)
	}
	values := make([]int, 0, len(items))
	for _, item := range items {
		n, err := toInt(item)
		if err != nil {
			return nil, err
		}
		values = append(values, n)
	}
	return values, nil
}
