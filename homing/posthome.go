package homing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Distance is a move distance in encoder counts. It is kept as an exact
// decimal so values taken from legacy text render exactly as written.
type Distance struct {
	value decimal.Decimal
}

// NewDistance returns a distance of counts.
func NewDistance(counts int64) Distance {
	return Distance{value: decimal.NewFromInt(counts)}
}

// ParseDistance parses a whole number of counts, e.g. "100", "-50" or "1e3".
func ParseDistance(raw string) (Distance, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Distance{}, fmt.Errorf("%w: distance %q: %v", ErrInvalidArgument, raw, err)
	}
	if !value.IsInteger() {
		return Distance{}, fmt.Errorf("%w: distance %q is not a whole number of counts", ErrInvalidArgument, raw)
	}
	return Distance{value: value}, nil
}

func (d Distance) String() string { return d.value.String() }

func (d Distance) Int64() int64 { return d.value.IntPart() }

func (d Distance) IsZero() bool { return d.value.IsZero() }

// Equal reports whether both distances hold the same number of counts.
func (d Distance) Equal(other Distance) bool { return d.value.Equal(other.value) }

// PostHomeKind enumerates the actions a group can take after homing.
type PostHomeKind int

const (
	PostHomeNone PostHomeKind = iota
	PostHomeRelative
	PostHomeMoveAndSetHome
	PostHomeInitialPosition
	PostHomeHighLimit
	PostHomeLowLimit
	PostHomeHardHighLimit
	PostHomeHardLowLimit
)

var postHomeNames = map[PostHomeKind]string{
	PostHomeNone:            "none",
	PostHomeRelative:        "relative_move",
	PostHomeMoveAndSetHome:  "move_and_hmz",
	PostHomeInitialPosition: "initial_position",
	PostHomeHighLimit:       "high_limit",
	PostHomeLowLimit:        "low_limit",
	PostHomeHardHighLimit:   "hard_hi_limit",
	PostHomeHardLowLimit:    "hard_lo_limit",
}

func (k PostHomeKind) String() string {
	if name, ok := postHomeNames[k]; ok {
		return name
	}
	return fmt.Sprintf("PostHomeKind(%d)", int(k))
}

// PostHome is the post home action of a group. Only the relative and
// move-and-set-home variants carry a distance.
type PostHome struct {
	kind     PostHomeKind
	distance Distance
}

func NoPostHome() PostHome { return PostHome{kind: PostHomeNone} }

// RelativeMove moves every axis by d counts after homing.
func RelativeMove(d Distance) PostHome { return PostHome{kind: PostHomeRelative, distance: d} }

// MoveAndSetHome moves by d counts and then declares that position home.
func MoveAndSetHome(d Distance) PostHome {
	return PostHome{kind: PostHomeMoveAndSetHome, distance: d}
}

func InitialPosition() PostHome { return PostHome{kind: PostHomeInitialPosition} }
func HighSoftLimit() PostHome   { return PostHome{kind: PostHomeHighLimit} }
func LowSoftLimit() PostHome    { return PostHome{kind: PostHomeLowLimit} }
func HighHardLimit() PostHome   { return PostHome{kind: PostHomeHardHighLimit} }
func LowHardLimit() PostHome    { return PostHome{kind: PostHomeHardLowLimit} }

func (p PostHome) Kind() PostHomeKind { return p.kind }

// Distance returns the move distance for the variants that carry one.
func (p PostHome) Distance() (Distance, bool) {
	switch p.kind {
	case PostHomeRelative, PostHomeMoveAndSetHome:
		return p.distance, true
	default:
		return Distance{}, false
	}
}

// String renders the action in the legacy post= notation.
func (p PostHome) String() string {
	switch p.kind {
	case PostHomeRelative:
		return "r" + p.distance.String()
	case PostHomeMoveAndSetHome:
		return "z" + p.distance.String()
	case PostHomeInitialPosition:
		return "i"
	case PostHomeHighLimit:
		return "h"
	case PostHomeLowLimit:
		return "l"
	case PostHomeHardHighLimit:
		return "H"
	case PostHomeHardLowLimit:
		return "L"
	default:
		return "None"
	}
}

// ParsePostHome converts a legacy post= value or an action name into a
// PostHome. Accepted values are nil, "", "None", "0", "i", "h", "l", "H",
// "L", "r<counts>", "z<counts>", a bare number of counts (relative move) and
// the names returned by PostHomeKind.String. Anything else is an error.
func ParsePostHome(value any) (PostHome, error) {
	switch v := value.(type) {
	case nil:
		return NoPostHome(), nil
	case PostHome:
		return v, nil
	case int:
		return postHomeFromCounts(int64(v)), nil
	case int64:
		return postHomeFromCounts(v), nil
	case float64:
		return ParsePostHome(strconv.FormatFloat(v, 'f', -1, 64))
	case string:
		return parsePostHomeString(v)
	default:
		return PostHome{}, fmt.Errorf("%w: unsupported value %v (%T)", ErrInvalidPostHome, value, value)
	}
}

func postHomeFromCounts(counts int64) PostHome {
	if counts == 0 {
		return NoPostHome()
	}
	return RelativeMove(NewDistance(counts))
}

func parsePostHomeString(raw string) (PostHome, error) {
	value := strings.TrimSpace(raw)
	switch value {
	case "", "None", "none", "0":
		return NoPostHome(), nil
	case "i":
		return InitialPosition(), nil
	case "h":
		return HighSoftLimit(), nil
	case "l":
		return LowSoftLimit(), nil
	case "H":
		return HighHardLimit(), nil
	case "L":
		return LowHardLimit(), nil
	}
	for kind, name := range postHomeNames {
		if value != name {
			continue
		}
		switch kind {
		case PostHomeRelative, PostHomeMoveAndSetHome:
			return PostHome{}, fmt.Errorf("%w: %s requires a distance", ErrInvalidPostHome, name)
		}
		return PostHome{kind: kind}, nil
	}
	switch value[0] {
	case 'r', 'z':
		d, err := ParseDistance(value[1:])
		if err != nil {
			return PostHome{}, fmt.Errorf("%w: %q: %v", ErrInvalidPostHome, raw, err)
		}
		if value[0] == 'r' {
			return RelativeMove(d), nil
		}
		return MoveAndSetHome(d), nil
	}
	d, err := ParseDistance(value)
	if err != nil {
		return PostHome{}, fmt.Errorf("%w: %q", ErrInvalidPostHome, raw)
	}
	if d.IsZero() {
		return NoPostHome(), nil
	}
	return RelativeMove(d), nil
}
