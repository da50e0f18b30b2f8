package homing

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Arg is a named snippet argument. The typed constructors below cover every
// argument a snippet declares; Argument builds an arbitrary one.
type Arg struct {
	Name  string
	Value any
}

// Argument returns a named argument without any type checking.
func Argument(name string, value any) Arg { return Arg{Name: name, Value: value} }

// WithLimits enables stopping on limit switches while waiting for a move.
func WithLimits(v bool) Arg { return Arg{Name: "with_limits", Value: v} }

// NoFollowingErr disables following error checks while waiting for a move.
func NoFollowingErr(v bool) Arg { return Arg{Name: "no_following_err", Value: v} }

// WaitForOneMotor stops waiting as soon as one motor is in position.
func WaitForOneMotor(v bool) Arg { return Arg{Name: "wait_for_one_motor", Value: v} }

// HomingDirection jogs in each axis' homing direction when true.
func HomingDirection(v bool) Arg { return Arg{Name: "homing_direction", Value: v} }

// State sets the homing state reported while the snippet runs.
func State(s HomingState) Arg { return Arg{Name: "state", Value: s} }

// RestoreHomedFlags restores the original home flags before moving.
func RestoreHomedFlags(v bool) Arg { return Arg{Name: "restore_homed_flags", Value: v} }

// SetHome declares the end position of a relative move as home.
func SetHome(v bool) Arg { return Arg{Name: "set_home", Value: v} }

// MoveDistance sets the distance of a relative move.
func MoveDistance(d Distance) Arg { return Arg{Name: "distance", Value: d} }

func argMap(args []Arg) map[string]any {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		out[arg.Name] = arg.Value
	}
	return out
}

var (
	homingStateType = reflect.TypeOf(HomingState(0))
	distanceType    = reflect.TypeOf(Distance{})
)

func argumentHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	switch to {
	case homingStateType:
		switch v := data.(type) {
		case HomingState:
			return checkState(v)
		case string:
			return ParseHomingState(v)
		case int:
			return checkState(HomingState(v))
		case int64:
			return checkState(HomingState(v))
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("%w: homing state %v is not a whole number", ErrInvalidArgument, v)
			}
			return checkState(HomingState(int64(v)))
		}
	case distanceType:
		switch v := data.(type) {
		case Distance:
			return v, nil
		case string:
			return ParseDistance(v)
		case int:
			return NewDistance(int64(v)), nil
		case int64:
			return NewDistance(v), nil
		case float64:
			return ParseDistance(fmt.Sprintf("%v", v))
		}
	}
	return data, nil
}

func checkState(s HomingState) (HomingState, error) {
	if s < StateIdle || s > StatePreHomeMove {
		return 0, fmt.Errorf("%w: homing state %d out of range", ErrInvalidArgument, int(s))
	}
	return s, nil
}

// argNames lists the mapstructure names of a struct type, including the
// fields of squashed embedded structs.
func argNames(t reflect.Type, names map[string]struct{}) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, opts, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if strings.Contains(opts, "squash") {
			argNames(field.Type, names)
			continue
		}
		if !field.IsExported() || name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}
		names[name] = struct{}{}
	}
}

// decodeArgs overlays args onto dst, a pointer to a snippet argument struct
// already holding its defaults. Names must match a field's mapstructure
// name exactly; anything else is rejected before dst is touched.
func decodeArgs(snippet string, dst any, args map[string]any) error {
	known := make(map[string]struct{})
	argNames(reflect.TypeOf(dst), known)
	var unknown []string
	for name := range args {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s does not take %s", ErrUnknownArgument, snippet, strings.Join(unknown, ", "))
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: argumentHook,
		Metadata:   &md,
		Result:     dst,
	})
	if err != nil {
		return fmt.Errorf("%s: prepare decoder: %w", snippet, err)
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArgument, snippet, err)
	}
	if len(md.Unused) > 0 {
		sort.Strings(md.Unused)
		return fmt.Errorf("%w: %s does not take %s", ErrUnknownArgument, snippet, strings.Join(md.Unused, ", "))
	}
	return nil
}
