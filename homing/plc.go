package homing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// MinPlcNumber is the lowest usable PLC; 1-8 are reserved.
	MinPlcNumber = 9
	// MaxPlcNumber is the highest PLC a controller supports.
	MaxPlcNumber = 32
	// DefaultTimeout bounds every wait inside the generated PLC.
	DefaultTimeout = 600 * time.Second
	// MaxMotors is the number of motors one PLC can hold before the storage
	// slots of neighbouring families overlap.
	MaxMotors = 16
)

// Plc holds the motors and groups written to one homing PLC file.
type Plc struct {
	number     int
	controller ControllerType
	policy     controllerPolicy
	path       string
	timeout    time.Duration

	motors []*Motor
	byAxis map[int]*Motor
	groups []*Group
}

// PlcOption configures a Plc at construction.
type PlcOption func(*Plc)

// WithTimeout sets the timeout used by the generated wait loops.
func WithTimeout(d time.Duration) PlcOption {
	return func(p *Plc) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPlc validates the PLC number and output location. Errors are reported
// here rather than when the file is rendered.
func NewPlc(number int, controller ControllerType, path string, opts ...PlcOption) (*Plc, error) {
	if number < MinPlcNumber || number > MaxPlcNumber {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPlcNumber, number)
	}
	policy, err := policyFor(controller)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty output path for plc %d", ErrOutputDir, number)
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrOutputDir, dir)
	}
	p := &Plc{
		number:     number,
		controller: controller,
		policy:     policy,
		path:       path,
		timeout:    DefaultTimeout,
		byAxis:     make(map[int]*Motor),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

func (p *Plc) Number() int { return p.number }

func (p *Plc) Controller() ControllerType { return p.controller }

func (p *Plc) Path() string { return p.path }

// TimeoutMillis is the wait loop timeout in controller milliseconds.
func (p *Plc) TimeoutMillis() int64 { return p.timeout.Milliseconds() }

// Motors returns the declared motors in declaration order.
func (p *Plc) Motors() []*Motor { return append([]*Motor{}, p.motors...) }

// Motor returns the motor declared for axis.
func (p *Plc) Motor(axis int) (*Motor, bool) {
	m, ok := p.byAxis[axis]
	return m, ok
}

func (p *Plc) Groups() []*Group { return append([]*Group{}, p.groups...) }

// Count returns the number of groups.
func (p *Plc) Count() int { return len(p.groups) }

// AddMotor declares axis. The motor's index is its position in this PLC.
func (p *Plc) AddMotor(axis, jdist int) (*Motor, error) {
	if axis < 1 {
		return nil, fmt.Errorf("%w: axis %d must be positive", ErrUnknownAxis, axis)
	}
	if _, exists := p.byAxis[axis]; exists {
		return nil, fmt.Errorf("%w: motor %d in plc %d", ErrDuplicateAxis, axis, p.number)
	}
	if len(p.motors) >= MaxMotors {
		return nil, fmt.Errorf("%w: plc %d already holds %d motors", ErrInvalidArgument, p.number, MaxMotors)
	}
	m := NewMotor(axis, jdist, p.number, len(p.motors))
	p.motors = append(p.motors, m)
	p.byAxis[axis] = m
	return m, nil
}

// AddGroup creates a group over axes, all of which must already be declared.
// Motors keep their declaration order regardless of the order of axes.
func (p *Plc) AddGroup(number int, axes []int, opts ...GroupOption) (*Group, error) {
	wanted := make(map[int]struct{}, len(axes))
	for _, axis := range axes {
		if _, ok := p.byAxis[axis]; !ok {
			return nil, fmt.Errorf("%w: axis %d for group %d is not declared in plc %d", ErrUnknownAxis, axis, number, p.number)
		}
		wanted[axis] = struct{}{}
	}
	motors := make([]*Motor, 0, len(wanted))
	for _, m := range p.motors {
		if _, ok := wanted[m.Axis]; ok {
			motors = append(motors, m)
		}
	}
	g := &Group{
		number:   number,
		allAxes:  motors,
		axes:     motors,
		postHome: NoPostHome(),
		htype:    "unknown",
		plc:      p,
		policy:   p.policy,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	p.groups = append(p.groups, g)
	return g, nil
}

func (p *Plc) allMotors(sep string, format func(m *Motor) string) string {
	parts := make([]string, 0, len(p.motors))
	for _, m := range p.motors {
		parts = append(parts, format(m))
	}
	return strings.Join(parts, sep)
}

// The helpers below act on every motor in the PLC and are called from the
// plc template around the group code.

func (p *Plc) SaveHiLimits() string {
	return p.allMotors(" ", func(m *Motor) string { return fmt.Sprintf("P%d=i%d13", m.PVar(SlotHiLim), m.Axis) })
}

func (p *Plc) RestoreHiLimits() string {
	return p.allMotors(" ", func(m *Motor) string { return fmt.Sprintf("i%d13=P%d", m.Axis, m.PVar(SlotHiLim)) })
}

func (p *Plc) SaveLoLimits() string {
	return p.allMotors(" ", func(m *Motor) string { return fmt.Sprintf("P%d=i%d14", m.PVar(SlotLoLim), m.Axis) })
}

func (p *Plc) RestoreLoLimits() string {
	return p.allMotors(" ", func(m *Motor) string { return fmt.Sprintf("i%d14=P%d", m.Axis, m.PVar(SlotLoLim)) })
}

func (p *Plc) SaveHomed() string { return p.allMotors(" ", p.policy.saveHomed) }

// SaveNotHomed stores the inverse of each saved homed flag.
func (p *Plc) SaveNotHomed() string {
	return p.allMotors(" ", func(m *Motor) string {
		return fmt.Sprintf("P%d=P%d^$C", m.PVar(SlotNotHomed), m.PVar(SlotHomed))
	})
}

func (p *Plc) RestoreHomed() string { return p.allMotors(" ", p.policy.restoreHomed) }

func (p *Plc) SaveLimitFlags() string {
	return p.allMotors(" ", func(m *Motor) string { return fmt.Sprintf("P%d=i%d24", m.PVar(SlotLimFlags), m.Axis) })
}

func (p *Plc) RestoreLimitFlags() string {
	return p.allMotors(" ", func(m *Motor) string { return fmt.Sprintf("i%d24=P%d", m.Axis, m.PVar(SlotLimFlags)) })
}

func (p *Plc) SavePosition() string {
	return p.allMotors(" ", func(m *Motor) string { return fmt.Sprintf("P%d=M%d62", m.PVar(SlotPos), m.Axis) })
}

// ClearLimits zeroes both soft limits of every motor, high limits first.
func (p *Plc) ClearLimits() string {
	hi := p.allMotors(" ", func(m *Motor) string { return fmt.Sprintf("i%d13=0", m.Axis) })
	lo := p.allMotors(" ", func(m *Motor) string { return fmt.Sprintf("i%d14=0", m.Axis) })
	return hi + "\n" + lo
}

// StopMotors stops every motor that has not already stopped on a following error.
func (p *Plc) StopMotors() string {
	return p.allMotors("\n", func(m *Motor) string {
		return fmt.Sprintf("if (m%d42=0)\n    cmd \"#%dJ/\"\nendif", m.Axis, m.Axis)
	})
}

// AreHomedFlagsZero is a condition true when any saved home flag is clear.
func (p *Plc) AreHomedFlagsZero() string {
	return p.allMotors(" or ", func(m *Motor) string { return fmt.Sprintf("P%d=0", m.PVar(SlotHomed)) })
}
