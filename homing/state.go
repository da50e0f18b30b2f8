package homing

import (
	"fmt"
	"strings"
)

// HomingState is the stage of homing reported to the monitoring IOC through
// the HomingState P variable.
type HomingState int

const (
	StateIdle HomingState = iota
	StateConfiguring
	StateMoveNeg
	StateMovePos
	StateHoming
	StatePostHomeMove
	StateAligning
	StateDone
	StateFastSearch
	StateFastRetrace
	StatePreHomeMove
)

var stateNames = [...]string{
	StateIdle:         "Idle",
	StateConfiguring:  "Configuring",
	StateMoveNeg:      "MoveNeg",
	StateMovePos:      "MovePos",
	StateHoming:       "Homing",
	StatePostHomeMove: "PostHomeMove",
	StateAligning:     "Aligning",
	StateDone:         "Done",
	StateFastSearch:   "FastSearch",
	StateFastRetrace:  "FastRetrace",
	StatePreHomeMove:  "PreHomeMove",
}

// String returns the state name without its "State" prefix, e.g. "FastSearch".
func (s HomingState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("HomingState(%d)", int(s))
	}
	return stateNames[s]
}

// ParseHomingState accepts a state name with or without the "State" prefix.
func ParseHomingState(value string) (HomingState, error) {
	name := strings.TrimPrefix(strings.TrimSpace(value), "State")
	for i, candidate := range stateNames {
		if strings.EqualFold(candidate, name) {
			return HomingState(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown homing state %q", ErrInvalidArgument, value)
}
