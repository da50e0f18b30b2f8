package homing

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// PlcTemplate is the name of the template that renders a whole PLC.
const PlcTemplate = "plc"

// Renderer turns a named template and its data into PLC text.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Session tracks the open Plc, Group and OnlyAxes scopes of one generation
// run. At most one scope of each kind is open at a time and DSL calls act on
// whichever scopes are open. A Session is not safe for concurrent use.
type Session struct {
	renderer Renderer
	logger   zerolog.Logger

	plc   *Plc
	group *Group
	only  []int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the logger used for scope and snippet events.
func WithSessionLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// NewSession creates a session that renders closed PLCs with renderer.
func NewSession(renderer Renderer, opts ...SessionOption) *Session {
	s := &Session{renderer: renderer, logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CurrentPlc returns the open PLC, if any.
func (s *Session) CurrentPlc() (*Plc, bool) { return s.plc, s.plc != nil }

// CurrentGroup returns the open group, if any.
func (s *Session) CurrentGroup() (*Group, bool) { return s.group, s.group != nil }

func (s *Session) currentPlc(call string) (*Plc, error) {
	if s.plc == nil {
		return nil, fmt.Errorf("%w: %s called outside a plc scope", ErrNoContext, call)
	}
	return s.plc, nil
}

func (s *Session) currentGroup(call string) (*Group, error) {
	if s.group == nil {
		return nil, fmt.Errorf("%w: %s called outside a group scope", ErrNoContext, call)
	}
	return s.group, nil
}

// OpenPlc creates a PLC and makes it the current one.
func (s *Session) OpenPlc(number int, controller ControllerType, path string, opts ...PlcOption) (*Plc, error) {
	if s.plc != nil {
		return nil, fmt.Errorf("%w: cannot open plc %d inside plc %d", ErrNestedScope, number, s.plc.number)
	}
	p, err := NewPlc(number, controller, path, opts...)
	if err != nil {
		return nil, err
	}
	s.plc = p
	s.logger.Debug().Int("plc", number).Str("controller", controller.String()).Msg("plc opened")
	return p, nil
}

// ClosePlc renders the current PLC and writes it to its output path. The
// scope is released whether or not rendering succeeds. A group still open at
// this point is an error and nothing is written.
func (s *Session) ClosePlc() error {
	p, err := s.currentPlc("close plc")
	if err != nil {
		return err
	}
	openGroup := s.group
	s.release()
	if openGroup != nil {
		return fmt.Errorf("%w: group %d still open when closing plc %d", ErrNestedScope, openGroup.number, p.number)
	}
	return s.write(p)
}

func (s *Session) release() {
	s.plc = nil
	s.group = nil
	s.only = nil
}

func (s *Session) write(p *Plc) error {
	if s.renderer == nil {
		return fmt.Errorf("plc %d: no renderer configured", p.number)
	}
	for _, g := range p.groups {
		g.ResetAxisFilter()
	}
	text, err := s.renderer.Render(PlcTemplate, p)
	for _, g := range p.groups {
		g.ResetAxisFilter()
	}
	if err != nil {
		return fmt.Errorf("render plc %d: %w", p.number, err)
	}
	if err := os.WriteFile(p.path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write plc %d: %w", p.number, err)
	}
	s.logger.Info().Int("plc", p.number).Str("path", p.path).Int("groups", len(p.groups)).Msg("plc written")
	return nil
}

// WithPlc runs body inside a PLC scope. The PLC is written only when body
// succeeds; the scope is released in every case, including panics.
func (s *Session) WithPlc(number int, controller ControllerType, path string, body func(p *Plc) error, opts ...PlcOption) error {
	p, err := s.OpenPlc(number, controller, path, opts...)
	if err != nil {
		return err
	}
	done := false
	defer func() {
		if !done {
			s.release()
		}
	}()
	if body != nil {
		if err := body(p); err != nil {
			return fmt.Errorf("plc %d: %w", number, err)
		}
	}
	done = true
	return s.ClosePlc()
}

// Motor declares an axis in the current PLC.
func (s *Session) Motor(axis, jdist int) error {
	p, err := s.currentPlc("motor")
	if err != nil {
		return err
	}
	_, err = p.AddMotor(axis, jdist)
	return err
}

// OpenGroup creates a group in the current PLC and makes it current.
func (s *Session) OpenGroup(number int, axes []int, opts ...GroupOption) (*Group, error) {
	p, err := s.currentPlc("group")
	if err != nil {
		return nil, err
	}
	if s.group != nil {
		return nil, fmt.Errorf("%w: cannot open group %d inside group %d", ErrNestedScope, number, s.group.number)
	}
	g, err := p.AddGroup(number, axes, opts...)
	if err != nil {
		return nil, err
	}
	s.group = g
	return g, nil
}

// CloseGroup ends the current group scope. Any open axis filter is
// discarded without emitting a reset.
func (s *Session) CloseGroup() error {
	g, err := s.currentGroup("close group")
	if err != nil {
		return err
	}
	g.ResetAxisFilter()
	s.group = nil
	s.only = nil
	return nil
}

// WithGroup runs body inside a group scope.
func (s *Session) WithGroup(number int, axes []int, body func(g *Group) error, opts ...GroupOption) error {
	g, err := s.OpenGroup(number, axes, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if s.group == g {
			_ = s.CloseGroup()
		}
	}()
	if body != nil {
		if err := body(g); err != nil {
			return fmt.Errorf("group %d: %w", number, err)
		}
	}
	return nil
}

// OpenOnlyAxes restricts the following snippets to axes. The restriction is
// recorded in the template list so the generated code sees it as well.
func (s *Session) OpenOnlyAxes(axes []int) error {
	g, err := s.currentGroup("only_axes")
	if err != nil {
		return err
	}
	if s.only != nil {
		return fmt.Errorf("%w: cannot use only_axes %v within only_axes %v", ErrNestedScope, axes, s.only)
	}
	if len(axes) == 0 {
		return fmt.Errorf("%w: only_axes requires at least one axis", ErrInvalidArgument)
	}
	if err := g.ApplyAxisFilter(axes); err != nil {
		return err
	}
	s.only = append([]int{}, axes...)
	g.append(AxisFilterTemplate(axes))
	return nil
}

// CloseOnlyAxes restores all of the group's axes and records the reset.
func (s *Session) CloseOnlyAxes() error {
	g, err := s.currentGroup("close only_axes")
	if err != nil {
		return err
	}
	if s.only == nil {
		return fmt.Errorf("%w: no only_axes scope is open", ErrNoContext)
	}
	s.only = nil
	g.ResetAxisFilter()
	g.append(AxisFilterTemplate(nil))
	return nil
}

// WithOnlyAxes runs body with the group narrowed to axes. The reset is
// recorded even when body fails.
func (s *Session) WithOnlyAxes(axes []int, body func() error) error {
	if err := s.OpenOnlyAxes(axes); err != nil {
		return err
	}
	defer func() {
		if s.only != nil {
			_ = s.CloseOnlyAxes()
		}
	}()
	if body == nil {
		return nil
	}
	return body()
}

// Comment replaces the group comment with one line per active axis in the
// style of the original motorhome output. htype and post are free text.
func (s *Session) Comment(htype, post string) error {
	g, err := s.currentGroup("comment")
	if err != nil {
		return err
	}
	if post == "" {
		post = "None"
	}
	lines := make([]string, 0, len(g.axes))
	for _, m := range g.axes {
		lines = append(lines, fmt.Sprintf(";  Axis %d: htype = %s, jdist = %d, post = %s", m.Axis, htype, m.JogDistance, post))
	}
	g.comment = strings.Join(lines, "\n")
	return nil
}

// PostHome appends the group's post home move, if it has one. args are
// passed on to the snippet that performs the move.
func (s *Session) PostHome(args ...Arg) error {
	g, err := s.currentGroup("post_home")
	if err != nil {
		return err
	}
	post := g.postHome
	switch post.kind {
	case PostHomeNone:
		return nil
	case PostHomeInitialPosition:
		return s.DriveToInitialPos(args...)
	case PostHomeHighLimit:
		return s.DriveToSoftLimit(append([]Arg{HomingDirection(true)}, args...)...)
	case PostHomeLowLimit:
		return s.DriveToSoftLimit(append([]Arg{HomingDirection(false)}, args...)...)
	case PostHomeHardHighLimit:
		return s.DriveToHardLimit(append([]Arg{HomingDirection(true)}, args...)...)
	case PostHomeHardLowLimit:
		return s.DriveToHardLimit(append([]Arg{HomingDirection(false)}, args...)...)
	case PostHomeRelative:
		return s.DriveRelative(append([]Arg{MoveDistance(post.distance)}, args...)...)
	case PostHomeMoveAndSetHome:
		return s.DriveRelative(append([]Arg{MoveDistance(post.distance), SetHome(true)}, args...)...)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidPostHome, post.kind)
	}
}
