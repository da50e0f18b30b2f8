package homing

import (
	"fmt"
	"strings"
)

// ControllerType identifies the motion controller family a PLC is generated for.
type ControllerType int

const (
	// ControllerBrick covers the GeoBrick family.
	ControllerBrick ControllerType = iota
	// ControllerPMAC covers Turbo PMAC with MACRO stations.
	ControllerPMAC
)

// String returns the controller name used in generated comments.
func (c ControllerType) String() string {
	switch c {
	case ControllerBrick:
		return "GeoBrick"
	case ControllerPMAC:
		return "PMAC"
	default:
		return fmt.Sprintf("ControllerType(%d)", int(c))
	}
}

// ParseControllerType converts a configuration value into a controller type.
func ParseControllerType(value string) (ControllerType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "brick", "geobrick":
		return ControllerBrick, nil
	case "pmac":
		return ControllerPMAC, nil
	default:
		return 0, fmt.Errorf("unsupported controller type %q", value)
	}
}

// controllerPolicy holds the per-axis formulas that differ between controller
// families. A Plc selects exactly one policy at construction.
type controllerPolicy struct {
	saveHomed       func(m *Motor) string
	restoreHomed    func(m *Motor) string
	negateHomeFlags func(m *Motor) string
}

var policies = map[ControllerType]controllerPolicy{
	ControllerBrick: {
		saveHomed: func(m *Motor) string {
			return fmt.Sprintf("P%d=i%s", m.PVar(SlotHomed), m.HomedFlag())
		},
		restoreHomed: func(m *Motor) string {
			return fmt.Sprintf("i%s=P%d", m.HomedFlag(), m.PVar(SlotHomed))
		},
		negateHomeFlags: func(m *Motor) string {
			return fmt.Sprintf("i%s=P%d", m.HomedFlag(), m.PVar(SlotNotHomed))
		},
	},
	ControllerPMAC: {
		saveHomed: func(m *Motor) string {
			return fmt.Sprintf("MSR%d,i912,P%d", m.MacroStation(), m.PVar(SlotHomed))
		},
		restoreHomed: func(m *Motor) string {
			return fmt.Sprintf("MSW%d,i912,P%d", m.MacroStation(), m.PVar(SlotHomed))
		},
		negateHomeFlags: func(m *Motor) string {
			return fmt.Sprintf("MSW%d,i912,P%d", m.MacroStation(), m.PVar(SlotNotHomed))
		},
	},
}

func policyFor(c ControllerType) (controllerPolicy, error) {
	policy, ok := policies[c]
	if !ok {
		return controllerPolicy{}, fmt.Errorf("unsupported controller type %s", c)
	}
	return policy, nil
}
