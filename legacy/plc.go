package legacy

import (
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/motorhome/config"
	"github.com/timzifer/motorhome/homing"
)

const defaultTimeoutMillis = 600000

type legacyGroup struct {
	number  int
	axes    []int
	htype   int
	post    any
	hasPost bool
	pre     string
	code    string
}

// legacyPlc records what a v1 script adds to one PLC object.
type legacyPlc struct {
	line     int
	timeout  int
	htype    int
	jdist    int
	post     any
	ctype    int
	motors   []int
	jdists   map[int]int
	groups   []*legacyGroup
	byNumber map[int]*legacyGroup
}

func newLegacyPlc(args map[string]any, line int) (*legacyPlc, error) {
	p := &legacyPlc{
		line:     line,
		timeout:  defaultTimeoutMillis,
		htype:    noHomingYet,
		ctype:    ctypePmac,
		jdists:   make(map[int]int),
		byNumber: make(map[int]*legacyGroup),
	}
	var err error
	if p.timeout, err = intArg(args, "timeout", p.timeout); err != nil {
		return nil, fmt.Errorf("line %d: PLC: %w", line, err)
	}
	if p.htype, err = intArg(args, "htype", p.htype); err != nil {
		return nil, fmt.Errorf("line %d: PLC: %w", line, err)
	}
	if p.jdist, err = intArg(args, "jdist", p.jdist); err != nil {
		return nil, fmt.Errorf("line %d: PLC: %w", line, err)
	}
	if p.ctype, err = intArg(args, "ctype", p.ctype); err != nil {
		return nil, fmt.Errorf("line %d: PLC: %w", line, err)
	}
	if p.ctype != ctypePmac && p.ctype != ctypeGeoBrick {
		return nil, fmt.Errorf("line %d: PLC: unknown ctype %d", line, p.ctype)
	}
	p.post = args["post"]
	return p, nil
}

// intArg returns the named argument, or def when it is absent or None.
func intArg(args map[string]any, name string, def int) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: %v (%T) is not a string", name, v, v)
	}
	return s, nil
}

// addMotor follows v1 inheritance: jdist and post default to the PLC's
// values, and a group takes its homing type from the first motor that names
// one, falling back to the PLC's.
func (p *legacyPlc) addMotor(args map[string]any, logger zerolog.Logger) error {
	if _, ok := args["axis"]; !ok {
		return fmt.Errorf("add_motor: axis is required")
	}
	axis, err := intArg(args, "axis", 0)
	if err != nil {
		return fmt.Errorf("add_motor: %w", err)
	}
	number, err := intArg(args, "group", 1)
	if err != nil {
		return fmt.Errorf("add_motor %d: %w", axis, err)
	}
	jdist, err := intArg(args, "jdist", p.jdist)
	if err != nil {
		return fmt.Errorf("add_motor %d: %w", axis, err)
	}
	htype, err := intArg(args, "htype", noHomingYet)
	if err != nil {
		return fmt.Errorf("add_motor %d: %w", axis, err)
	}

	if _, known := p.jdists[axis]; !known {
		p.motors = append(p.motors, axis)
		p.jdists[axis] = jdist
	}

	g, ok := p.byNumber[number]
	if !ok {
		g = &legacyGroup{number: number, htype: noHomingYet}
		p.byNumber[number] = g
		p.groups = append(p.groups, g)
	}
	g.axes = appendUnique(g.axes, axis)

	post := p.post
	if v := args["post"]; v != nil {
		post = v
	}
	switch {
	case !g.hasPost:
		g.post, g.hasPost = post, true
	case !reflect.DeepEqual(g.post, post):
		logger.Warn().Int("group", number).Int("axis", axis).Msg("motors of a group disagree on post, keeping the first")
	}

	if htype != noHomingYet {
		g.htype = htype
	} else if g.htype == noHomingYet && p.htype != noHomingYet {
		g.htype = p.htype
	}
	return nil
}

func (p *legacyPlc) configureGroup(args map[string]any) error {
	number, err := intArg(args, "group", 0)
	if err != nil {
		return fmt.Errorf("configure_group: %w", err)
	}
	g, ok := p.byNumber[number]
	if !ok {
		return fmt.Errorf("configure_group: group %d has no motors", number)
	}
	if g.pre, err = stringArg(args, "pre"); err != nil {
		return fmt.Errorf("configure_group %d: %w", number, err)
	}
	if g.code, err = stringArg(args, "post"); err != nil {
		return fmt.Errorf("configure_group %d: %w", number, err)
	}
	return nil
}

// definition renders the recorded PLC as a v2 plc entry.
func (p *legacyPlc) definition(t Target) (config.PlcConfig, error) {
	pc := config.PlcConfig{
		Plc:        t.Plc,
		Name:       t.Name,
		File:       t.File,
		Controller: "brick",
	}
	if p.ctype == ctypePmac {
		pc.Controller = "pmac"
	}
	if p.timeout != defaultTimeoutMillis {
		pc.Timeout = config.Duration{Duration: time.Duration(p.timeout) * time.Millisecond}
	}
	for _, axis := range p.motors {
		pc.Motors = append(pc.Motors, config.MotorConfig{Axis: axis, Jdist: p.jdists[axis]})
	}
	for _, g := range p.groups {
		htype := g.htype
		if htype == noHomingYet {
			htype = htypeHome
		}
		kind, ok := homingTypes[htype]
		if !ok {
			return pc, fmt.Errorf("group %d: unknown htype %d", g.number, htype)
		}
		post, err := homing.ParsePostHome(g.post)
		if err != nil {
			return pc, fmt.Errorf("group %d: %w", g.number, err)
		}
		gc := config.GroupConfig{
			Group:   g.number,
			Axes:    append([]int{}, g.axes...),
			Comment: &config.CommentConfig{HType: kind.name},
		}
		if post.Kind() != homing.PostHomeNone {
			gc.PostHome = post.String()
		}
		if g.pre != "" {
			gc.Steps = append(gc.Steps, config.StepConfig{Command: g.pre})
		}
		gc.Steps = append(gc.Steps, config.StepConfig{Sequence: kind.sequence})
		if g.code != "" {
			gc.Steps = append(gc.Steps, config.StepConfig{Command: g.code})
		}
		pc.Groups = append(pc.Groups, gc)
	}
	return pc, nil
}

func appendUnique(values []int, v int) []int {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}
