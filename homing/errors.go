package homing

import "errors"

var (
	// ErrInvalidPlcNumber is returned when a PLC number is outside 9..32.
	ErrInvalidPlcNumber = errors.New("plc number must be an integer between 9 and 32")
	// ErrOutputDir is returned when the directory of the output file does not exist.
	ErrOutputDir = errors.New("output directory does not exist")
	// ErrDuplicateAxis is returned when an axis is declared twice in one PLC.
	ErrDuplicateAxis = errors.New("axis already defined")
	// ErrUnknownAxis is returned when a group or axis filter references an undeclared axis.
	ErrUnknownAxis = errors.New("invalid axis number")
	// ErrNestedScope is returned when a scope is opened inside a scope of the same kind.
	ErrNestedScope = errors.New("scope already open")
	// ErrNoContext is returned when a DSL call is made without its enclosing scope.
	ErrNoContext = errors.New("no open context")
	// ErrUnknownArgument is returned when a snippet receives an argument it does not declare.
	ErrUnknownArgument = errors.New("illegal argument")
	// ErrInvalidArgument is returned when a snippet argument has the wrong type or value.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownSequence is returned when a sequence or snippet name is not registered.
	ErrUnknownSequence = errors.New("unknown sequence")
	// ErrInvalidPostHome is returned when a post home value cannot be interpreted.
	ErrInvalidPostHome = errors.New("invalid post home action")
)
