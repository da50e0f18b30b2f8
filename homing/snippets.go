package homing

import (
	"fmt"
	"reflect"
	"sort"
)

// WaitForDone holds the arguments of the shared wait_for_done snippet which
// every moving snippet includes.
type WaitForDone struct {
	// NoFollowingErr skips following error checks during the move.
	NoFollowingErr bool `mapstructure:"no_following_err"`
	// WithLimits aborts when an axis stops on a limit. When false the wait
	// continues even if a subset of the axes stopped on their limits.
	WithLimits bool `mapstructure:"with_limits"`
	// WaitForOneMotor stops waiting once any axis is in position.
	WaitForOneMotor bool `mapstructure:"wait_for_one_motor"`
}

type NoArgs struct{}

// DriveArgs are used by drive_to_limit, drive_off_home and drive_to_hard_limit.
type DriveArgs struct {
	State           HomingState `mapstructure:"state"`
	HomingDirection bool        `mapstructure:"homing_direction"`
	WaitForDone     `mapstructure:",squash"`
}

type DriveToHomeArgs struct {
	State             HomingState `mapstructure:"state"`
	HomingDirection   bool        `mapstructure:"homing_direction"`
	RestoreHomedFlags bool        `mapstructure:"restore_homed_flags"`
	WaitForDone       `mapstructure:",squash"`
}

// DirectionArgs are used by drive_to_soft_limit, jog_if_on_limit and
// drive_to_home_if_on_limit.
type DirectionArgs struct {
	HomingDirection bool `mapstructure:"homing_direction"`
	WaitForDone     `mapstructure:",squash"`
}

type DriveRelativeArgs struct {
	Distance    Distance `mapstructure:"distance"`
	SetHome     bool     `mapstructure:"set_home"`
	WaitForDone `mapstructure:",squash"`
}

// MoveArgs are used by home, drive_to_initial_pos and
// continue_home_maintain_axes_offset.
type MoveArgs struct {
	WaitForDone `mapstructure:",squash"`
}

type primitive struct {
	// defaults returns a pointer to a fresh argument struct holding the
	// snippet's default values.
	defaults func() any
}

var primitives = map[string]primitive{
	"drive_to_limit": {func() any {
		return &DriveArgs{State: StatePreHomeMove}
	}},
	"drive_off_home": {func() any {
		return &DriveArgs{State: StateFastRetrace, WaitForDone: WaitForDone{WithLimits: true}}
	}},
	"drive_to_home": {func() any {
		return &DriveToHomeArgs{State: StatePreHomeMove}
	}},
	"store_position_diff": {func() any { return &NoArgs{} }},
	"home": {func() any {
		return &MoveArgs{WaitForDone: WaitForDone{WithLimits: true}}
	}},
	"debug_pause": {func() any { return &NoArgs{} }},
	"drive_to_initial_pos": {func() any {
		return &MoveArgs{WaitForDone: WaitForDone{WithLimits: true}}
	}},
	"drive_to_soft_limit": {func() any {
		return &DirectionArgs{WaitForDone: WaitForDone{WithLimits: true}}
	}},
	"drive_relative": {func() any {
		return &DriveRelativeArgs{Distance: NewDistance(123456), WaitForDone: WaitForDone{WithLimits: true}}
	}},
	"check_homed":               {func() any { return &NoArgs{} }},
	"drive_to_home_if_on_limit": {func() any { return &DirectionArgs{} }},
	"disable_limits":            {func() any { return &NoArgs{} }},
	"restore_limits":            {func() any { return &NoArgs{} }},
	"drive_to_hard_limit": {func() any {
		return &DriveArgs{State: StatePostHomeMove}
	}},
	"jog_if_on_limit":                    {func() any { return &DirectionArgs{} }},
	"continue_home_maintain_axes_offset": {func() any { return &MoveArgs{} }},
}

// SnippetNames returns the names of all snippet primitives in sorted order.
func SnippetNames() []string {
	names := make([]string, 0, len(primitives))
	for name := range primitives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SnippetDefaults returns the default argument struct of a snippet.
func SnippetDefaults(name string) (any, error) {
	p, ok := primitives[name]
	if !ok {
		return nil, fmt.Errorf("%w: snippet %s", ErrUnknownSequence, name)
	}
	return reflect.ValueOf(p.defaults()).Elem().Interface(), nil
}

// Snippet appends the named snippet to the current group. args override the
// snippet's defaults; a name the snippet does not declare is rejected and
// nothing is appended.
func (s *Session) Snippet(name string, args map[string]any) error {
	p, ok := primitives[name]
	if !ok {
		return fmt.Errorf("%w: snippet %s", ErrUnknownSequence, name)
	}
	group, err := s.currentGroup(name)
	if err != nil {
		return err
	}
	params := p.defaults()
	if err := decodeArgs(name, params, args); err != nil {
		return err
	}
	group.append(SnippetTemplate(name, reflect.ValueOf(params).Elem().Interface()))
	s.logger.Debug().Str("snippet", name).Int("group", group.Number()).Msg("snippet added")
	return nil
}

func (s *Session) snippet(name string, args []Arg) error {
	return s.Snippet(name, argMap(args))
}

// DriveToLimit jogs the group's axes until each hits a limit.
func (s *Session) DriveToLimit(args ...Arg) error { return s.snippet("drive_to_limit", args) }

// DriveOffHome jogs the group's axes until the home flag is released.
func (s *Session) DriveOffHome(args ...Arg) error { return s.snippet("drive_off_home", args) }

// DriveToHome jogs the group's axes until they hit the home flag or a limit.
func (s *Session) DriveToHome(args ...Arg) error { return s.snippet("drive_to_home", args) }

// StorePositionDiff saves the offset from the starting position so the
// group can return there after homing.
func (s *Session) StorePositionDiff(args ...Arg) error {
	return s.snippet("store_position_diff", args)
}

// Home issues the home command on the group's axes.
func (s *Session) Home(args ...Arg) error { return s.snippet("home", args) }

// DebugPause waits for the operator when the PLC runs in debug mode.
func (s *Session) DebugPause(args ...Arg) error { return s.snippet("debug_pause", args) }

// DriveToInitialPos returns the axes to where they were before homing.
// Requires StorePositionDiff earlier in the sequence.
func (s *Session) DriveToInitialPos(args ...Arg) error {
	return s.snippet("drive_to_initial_pos", args)
}

func (s *Session) DriveToSoftLimit(args ...Arg) error {
	return s.snippet("drive_to_soft_limit", args)
}

func (s *Session) DriveRelative(args ...Arg) error { return s.snippet("drive_relative", args) }

// CheckHomed flags an error unless every axis in the group is homed.
func (s *Session) CheckHomed(args ...Arg) error { return s.snippet("check_homed", args) }

func (s *Session) DriveToHomeIfOnLimit(args ...Arg) error {
	return s.snippet("drive_to_home_if_on_limit", args)
}

func (s *Session) DisableLimits(args ...Arg) error { return s.snippet("disable_limits", args) }

func (s *Session) RestoreLimits(args ...Arg) error { return s.snippet("restore_limits", args) }

func (s *Session) DriveToHardLimit(args ...Arg) error {
	return s.snippet("drive_to_hard_limit", args)
}

func (s *Session) JogIfOnLimit(args ...Arg) error { return s.snippet("jog_if_on_limit", args) }

func (s *Session) ContinueHomeMaintainAxesOffset(args ...Arg) error {
	return s.snippet("continue_home_maintain_axes_offset", args)
}

// Command inserts text verbatim into the PLC at the current position.
func (s *Session) Command(text string) error {
	group, err := s.currentGroup("command")
	if err != nil {
		return err
	}
	group.append(TextTemplate(text))
	return nil
}
