package homing

import (
	"fmt"
	"strings"
)

// Group is a set of axes homed together. Snippets always act on the active
// axes, which an axis filter may narrow to a subset of all axes.
type Group struct {
	number   int
	allAxes  []*Motor
	axes     []*Motor
	postHome PostHome
	comment  string
	htype    string

	templates []Template

	plc    *Plc
	policy controllerPolicy
}

// GroupOption configures a group at creation.
type GroupOption func(*Group)

// WithPostHome sets the action performed after the group has homed.
func WithPostHome(p PostHome) GroupOption {
	return func(g *Group) { g.postHome = p }
}

// WithGroupComment sets the comment placed above the group's code.
func WithGroupComment(comment string) GroupOption {
	return func(g *Group) { g.comment = comment }
}

// Number returns the group number. Group 1 means all groups in the
// generated PLC and is not used for a real group by convention.
func (g *Group) Number() int { return g.number }

func (g *Group) PostHome() PostHome { return g.postHome }

func (g *Group) Comment() string { return g.comment }

// HomingType is the htype label of the group, "unknown" unless a sequence set it.
func (g *Group) HomingType() string { return g.htype }

// Plc returns the owning PLC.
func (g *Group) Plc() *Plc { return g.plc }

// AllAxes returns the axis numbers of every motor in the group.
func (g *Group) AllAxes() []int { return axisNumbers(g.allAxes) }

// Axes returns the axis numbers of the active motors.
func (g *Group) Axes() []int { return axisNumbers(g.axes) }

// Motors returns the active motors.
func (g *Group) Motors() []*Motor { return append([]*Motor{}, g.axes...) }

// Templates returns a copy of the group's template list in emission order.
func (g *Group) Templates() []Template { return append([]Template{}, g.templates...) }

func (g *Group) append(t Template) { g.templates = append(g.templates, t) }

// ApplyAxisFilter restricts the active axes to axes. An empty list restores
// all of the group's axes. Every axis must belong to the group and appear
// once.
func (g *Group) ApplyAxisFilter(axes []int) error {
	if len(axes) == 0 {
		g.axes = g.allAxes
		return nil
	}
	wanted := make(map[int]struct{}, len(axes))
	for _, axis := range axes {
		if _, dup := wanted[axis]; dup {
			return fmt.Errorf("%w: axis %d repeated in filter %v on group %d", ErrInvalidArgument, axis, axes, g.number)
		}
		wanted[axis] = struct{}{}
	}
	filtered := make([]*Motor, 0, len(axes))
	for _, m := range g.allAxes {
		if _, ok := wanted[m.Axis]; ok {
			filtered = append(filtered, m)
			delete(wanted, m.Axis)
		}
	}
	if len(wanted) > 0 {
		return fmt.Errorf("%w: axis filter %v on group %d", ErrUnknownAxis, axes, g.number)
	}
	g.axes = filtered
	return nil
}

// ResetAxisFilter makes all axes active again.
func (g *Group) ResetAxisFilter() { g.axes = g.allAxes }

func (g *Group) allActive(sep string, format func(m *Motor) string) string {
	parts := make([]string, 0, len(g.axes))
	for _, m := range g.axes {
		parts = append(parts, format(m))
	}
	return strings.Join(parts, sep)
}

// The helpers below are called from the snippet templates. Each applies a
// per-axis format to the active axes and joins the results.

func (g *Group) JogAxes() string {
	return g.allActive(" ", func(m *Motor) string { return fmt.Sprintf("#%dJ^*", m.Axis) })
}

// SetLargeJogDistance sets every axis' jog distance far enough to reach a
// limit, signed by the homing direction.
func (g *Group) SetLargeJogDistance(homingDirection bool) string {
	sign := ""
	if !homingDirection {
		sign = "-"
	}
	return g.allActive(" ", func(m *Motor) string {
		return fmt.Sprintf("m%d72=100000000*(%si%d23/ABS(i%d23))", m.Axis, sign, m.Axis, m.Axis)
	})
}

func (g *Group) Jog(homingDirection bool) string {
	sign := "+"
	if !homingDirection {
		sign = "-"
	}
	return g.allActive(" ", func(m *Motor) string { return fmt.Sprintf("#%dJ%s", m.Axis, sign) })
}

// InPos joins the in-position flags with operator, "&" for all axes or "|"
// for any axis.
func (g *Group) InPos(operator string) string {
	return g.allActive(operator, func(m *Motor) string { return fmt.Sprintf("m%d40", m.Axis) })
}

func (g *Group) Limits() string {
	return g.allActive("|", func(m *Motor) string { return fmt.Sprintf("m%d30", m.Axis) })
}

func (g *Group) FollowingErr() string {
	return g.allActive("|", func(m *Motor) string { return fmt.Sprintf("m%d42", m.Axis) })
}

func (g *Group) Homed() string {
	return g.allActive("&", func(m *Motor) string { return fmt.Sprintf("m%d45", m.Axis) })
}

func (g *Group) ClearHome() string {
	return g.allActive(" ", func(m *Motor) string { return fmt.Sprintf("m%d45=0", m.Axis) })
}

// StorePositionDiff emits one assignment per line converting the stored start
// position into a jog distance relative to the new home.
func (g *Group) StorePositionDiff() string {
	return g.allActive("\n        ", func(m *Motor) string {
		pos := m.PVar(SlotPos)
		return fmt.Sprintf("P%d=(P%d-M%d62)/(I%d08*32)+%d-(i%d26/16)", pos, pos, m.Axis, m.Axis, m.JogDistance, m.Axis)
	})
}

func (g *Group) StoredPosToJogDistance() string {
	return g.allActive(" ", func(m *Motor) string { return fmt.Sprintf("m%d72=P%d", m.Axis, m.PVar(SlotPos)) })
}

func (g *Group) StoredLimitToJogDistance(homingDirection bool) string {
	slot := SlotLoLim
	if homingDirection {
		slot = SlotHiLim
	}
	return g.allActive(" ", func(m *Motor) string { return fmt.Sprintf("m%d72=P%d", m.Axis, m.PVar(slot)) })
}

// JogDistance jogs every axis by distance, "*" meaning the stored jog distance.
func (g *Group) JogDistance(distance string) string {
	if distance == "" {
		distance = "*"
	}
	return g.allActive(" ", func(m *Motor) string { return fmt.Sprintf("#%dJ=%s", m.Axis, distance) })
}

func (g *Group) NegateHomeFlags() string { return g.allActive(" ", g.policy.negateHomeFlags) }

func (g *Group) RestoreHomeFlags() string { return g.allActive(" ", g.policy.restoreHomed) }

func (g *Group) JogToHomeJdist() string {
	return g.allActive(" ", func(m *Motor) string { return fmt.Sprintf("#%dJ^*^%d", m.Axis, m.JogDistance) })
}

func (g *Group) Home() string {
	return g.allActive(" ", func(m *Motor) string { return fmt.Sprintf("#%dhm", m.Axis) })
}

func (g *Group) SetHome() string {
	return g.allActive(" ", func(m *Motor) string { return fmt.Sprintf("#%dhmz", m.Axis) })
}

func (g *Group) RestoreLimitFlags() string {
	return g.allActive(" ", func(m *Motor) string { return fmt.Sprintf("i%d24=P%d", m.Axis, m.PVar(SlotLimFlags)) })
}

// DisableLimitFlags sets the limit disable bit on top of the saved limit flags.
func (g *Group) DisableLimitFlags() string {
	return g.allActive(" ", func(m *Motor) string {
		return fmt.Sprintf("i%d24=P%d|$20000", m.Axis, m.PVar(SlotLimFlags))
	})
}

func (g *Group) OverwriteInverseFlags() string {
	return g.allActive(" ", func(m *Motor) string {
		return fmt.Sprintf("P%d=i%s", m.PVar(SlotNotHomed), m.InverseFlag())
	})
}

func axisNumbers(motors []*Motor) []int {
	out := make([]int, 0, len(motors))
	for _, m := range motors {
		out = append(out, m.Axis)
	}
	return out
}
