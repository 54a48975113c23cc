package wasm

import "fmt"

// TrapCode identifies the reason generated code trapped.
type TrapCode uint8

const (
	TrapUnreachable TrapCode = iota
	TrapOutOfBoundsMemoryAccess
	TrapOutOfBoundsTableAccess
	TrapIndirectCallTypeMismatch
	TrapIntegerDivisionByZero
	TrapIntegerOverflow
	TrapStackOverflow
)

// Message returns the human-readable description of the trap code.
func (c TrapCode) Message() string {
	switch c {
	case TrapUnreachable:
		return "unreachable executed"
	case TrapOutOfBoundsMemoryAccess:
		return "out of bounds memory access"
	case TrapOutOfBoundsTableAccess:
		return "out of bounds table access"
	case TrapIndirectCallTypeMismatch:
		return "indirect call type mismatch"
	case TrapIntegerDivisionByZero:
		return "integer division by zero"
	case TrapIntegerOverflow:
		return "integer overflow"
	case TrapStackOverflow:
		return "call stack exhausted"
	}
	return fmt.Sprintf("trap(%d)", uint8(c))
}

// Trap is the error generated code surfaces when it cannot continue.
type Trap struct {
	Code TrapCode
}

func (t *Trap) Error() string {
	return t.Code.Message()
}

// NewTrap returns a Trap with the given code.
func NewTrap(code TrapCode) *Trap {
	return &Trap{Code: code}
}

// MemoryErrorKind classifies a MemoryError.
type MemoryErrorKind uint8

const (
	// MemoryErrorRegion covers failures of the underlying region (mapping,
	// growing, shrinking).
	MemoryErrorRegion MemoryErrorKind = iota
	// MemoryErrorInvalid covers operations against a memory in an invalid
	// state or with invalid arguments.
	MemoryErrorInvalid
)

// MemoryError is the error for linear-memory state transitions.
type MemoryError struct {
	Kind    MemoryErrorKind
	Message string
}

func (e *MemoryError) Error() string {
	return e.Message
}

// NewRegionError returns a MemoryError of kind MemoryErrorRegion.
func NewRegionError(format string, args ...interface{}) *MemoryError {
	return &MemoryError{Kind: MemoryErrorRegion, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidMemoryError returns a MemoryError of kind MemoryErrorInvalid.
func NewInvalidMemoryError(reason string) *MemoryError {
	return &MemoryError{Kind: MemoryErrorInvalid, Message: reason}
}
