package dosing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks arguments whose shape violates the call contract.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStageOutOfRange marks a titration protocol whose current stage index
	// does not address a stage of its schedule.
	ErrStageOutOfRange = errors.New("titration stage index out of range")
)

// InputError reports a malformed argument at a function boundary.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// PreconditionError reports upstream state the engine refuses to compute on.
type PreconditionError struct {
	ProtocolID string
	Index      int
	Stages     int
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("protocol %s: current stage index %d with %d stages", e.ProtocolID, e.Index, e.Stages)
}

func (e *PreconditionError) Unwrap() error { return ErrStageOutOfRange }
