package homing

import (
	"fmt"
	"sort"
	"sync"
)

// chain runs snippet calls until the first failure.
type chain struct {
	err error
}

func (c *chain) do(step func(...Arg) error, args ...Arg) {
	if c.err != nil {
		return
	}
	c.err = step(args...)
}

func (c *chain) run(step func() error) {
	if c.err != nil {
		return
	}
	c.err = step()
}

// HomeRlim homes against the limit switch opposite the homing direction.
// The axes first drive to that limit, then search for home in the homing
// direction.
func (s *Session) HomeRlim() error {
	var c chain
	c.do(s.DriveToLimit, HomingDirection(false))
	c.do(s.DriveToHome, WithLimits(false), HomingDirection(true), State(StateFastSearch))
	c.do(s.StorePositionDiff)
	c.do(s.DriveOffHome, WithLimits(false))
	c.do(s.Home, WithLimits(false))
	c.do(s.CheckHomed)
	c.do(s.PostHome)
	return c.err
}

// HomeHsw homes on a home switch which may lie on either side of the start
// position.
func (s *Session) HomeHsw() error {
	var c chain
	c.do(s.DriveToHome, HomingDirection(false))
	c.do(s.DriveToHome, WithLimits(true), HomingDirection(true), State(StateFastSearch))
	c.do(s.StorePositionDiff)
	c.do(s.DriveOffHome)
	c.do(s.Home)
	c.do(s.CheckHomed)
	c.do(s.PostHome)
	return c.err
}

// HomeHswHstop homes on a home switch next to a hard stop. Following errors
// are ignored on the first move and there is no post home move.
func (s *Session) HomeHswHstop() error {
	var c chain
	c.do(s.DriveToHome, NoFollowingErr(true), HomingDirection(false))
	c.do(s.DriveToHome, WithLimits(true), HomingDirection(true), State(StateFastSearch))
	c.do(s.StorePositionDiff)
	c.do(s.DriveOffHome, HomingDirection(false))
	c.do(s.Home, WithLimits(true))
	c.do(s.CheckHomed)
	return c.err
}

// HomeHswDir homes on a home switch whose active side depends on the
// approach direction.
func (s *Session) HomeHswDir() error {
	var c chain
	c.do(s.DriveOffHome, State(StatePreHomeMove))
	c.do(s.DriveToHome, HomingDirection(true), WithLimits(true), State(StateFastSearch), RestoreHomedFlags(true))
	c.do(s.StorePositionDiff)
	c.do(s.DriveOffHome, HomingDirection(false), State(StateFastRetrace))
	c.do(s.Home)
	c.do(s.CheckHomed)
	c.do(s.PostHome)
	return c.err
}

// HomeLimit homes on a limit switch. Limits are disabled while the home
// command runs.
func (s *Session) HomeLimit() error {
	var c chain
	c.do(s.DriveToHome, HomingDirection(true), State(StateFastSearch))
	c.do(s.StorePositionDiff)
	c.do(s.DriveOffHome, WithLimits(false))
	c.do(s.DisableLimits)
	c.do(s.Home)
	c.do(s.RestoreLimits)
	c.do(s.CheckHomed)
	c.do(s.PostHome)
	return c.err
}

// HomeHswHlim homes on a home switch for axes that may start on the limit in
// the homing direction.
func (s *Session) HomeHswHlim() error {
	var c chain
	c.do(s.DriveToHome, HomingDirection(true))
	c.do(s.JogIfOnLimit)
	c.do(s.DriveToHome, HomingDirection(true), State(StateFastSearch), WithLimits(true))
	c.do(s.StorePositionDiff)
	c.do(s.DriveOffHome, HomingDirection(false), State(StateFastRetrace))
	c.do(s.Home)
	c.do(s.CheckHomed)
	c.do(s.PostHome)
	return c.err
}

// HomeHome issues a plain home command.
func (s *Session) HomeHome() error {
	var c chain
	c.do(s.Home)
	c.do(s.CheckHomed)
	c.do(s.PostHome)
	return c.err
}

// HomeNothing performs only the post home move and marks the group as not
// homed by this PLC.
func (s *Session) HomeNothing() error {
	g, err := s.currentGroup("home_nothing")
	if err != nil {
		return err
	}
	g.htype = "NOTHING"
	return s.PostHome()
}

// HomeSlitsHsw homes a four blade slit set. All blades drive to their limit
// together, then each pair homes on its home switch separately so the pairs
// cannot collide.
func (s *Session) HomeSlitsHsw(posx, negx, posy, negy int) error {
	var c chain
	c.do(s.DriveToLimit, HomingDirection(false))
	c.run(func() error { return s.WithOnlyAxes([]int{posx, negx}, s.HomeHsw) })
	c.run(func() error { return s.WithOnlyAxes([]int{posy, negy}, s.HomeHsw) })
	return c.err
}

// SequenceFunc runs a named sequence in the session's current group. args
// holds the sequence's own parameters, if it takes any.
type SequenceFunc func(s *Session, args map[string]any) error

var (
	sequencesMu sync.RWMutex
	sequences   = map[string]SequenceFunc{}
)

// RegisterSequence makes a sequence available under name. Registering the
// same name twice panics.
func RegisterSequence(name string, fn SequenceFunc) {
	if name == "" {
		panic("homing: sequence name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("homing: sequence %q has no implementation", name))
	}
	sequencesMu.Lock()
	defer sequencesMu.Unlock()
	if _, exists := sequences[name]; exists {
		panic(fmt.Sprintf("homing: sequence %q already registered", name))
	}
	sequences[name] = fn
}

// LookupSequence returns the sequence registered under name.
func LookupSequence(name string) (SequenceFunc, error) {
	sequencesMu.RLock()
	defer sequencesMu.RUnlock()
	fn, ok := sequences[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSequence, name)
	}
	return fn, nil
}

// RegisteredSequences lists all sequence names in sorted order.
func RegisteredSequences() []string {
	sequencesMu.RLock()
	defer sequencesMu.RUnlock()
	names := make([]string, 0, len(sequences))
	for name := range sequences {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunSequence looks up and runs a sequence in the current group.
func (s *Session) RunSequence(name string, args map[string]any) error {
	fn, err := LookupSequence(name)
	if err != nil {
		return err
	}
	s.logger.Debug().Str("sequence", name).Msg("running sequence")
	return fn(s, args)
}

func withoutArgs(name string, run func(s *Session) error) SequenceFunc {
	return func(s *Session, args map[string]any) error {
		if len(args) > 0 {
			if err := decodeArgs(name, &NoArgs{}, args); err != nil {
				return err
			}
		}
		return run(s)
	}
}

// SlitAxes are the parameters of home_slits_hsw.
type SlitAxes struct {
	PosX int `mapstructure:"posx"`
	NegX int `mapstructure:"negx"`
	PosY int `mapstructure:"posy"`
	NegY int `mapstructure:"negy"`
}

func init() {
	RegisterSequence("home_rlim", withoutArgs("home_rlim", (*Session).HomeRlim))
	RegisterSequence("home_hsw", withoutArgs("home_hsw", (*Session).HomeHsw))
	RegisterSequence("home_hsw_hstop", withoutArgs("home_hsw_hstop", (*Session).HomeHswHstop))
	RegisterSequence("home_hsw_dir", withoutArgs("home_hsw_dir", (*Session).HomeHswDir))
	RegisterSequence("home_limit", withoutArgs("home_limit", (*Session).HomeLimit))
	RegisterSequence("home_hsw_hlim", withoutArgs("home_hsw_hlim", (*Session).HomeHswHlim))
	RegisterSequence("home_home", withoutArgs("home_home", (*Session).HomeHome))
	RegisterSequence("home_nothing", withoutArgs("home_nothing", (*Session).HomeNothing))
	RegisterSequence("home_slits_hsw", func(s *Session, args map[string]any) error {
		var axes SlitAxes
		if err := decodeArgs("home_slits_hsw", &axes, args); err != nil {
			return err
		}
		if axes.PosX == 0 || axes.NegX == 0 || axes.PosY == 0 || axes.NegY == 0 {
			return fmt.Errorf("%w: home_slits_hsw requires posx, negx, posy and negy", ErrInvalidArgument)
		}
		return s.HomeSlitsHsw(axes.PosX, axes.NegX, axes.PosY, axes.NegY)
	})
}
