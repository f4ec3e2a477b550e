package opt

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input; the run never starts.
	ErrValidation = errors.New("validation failed")
	// ErrInfeasible marks a run that could not schedule every routable stop
	// while the caller required all of them.
	ErrInfeasible = errors.New("infeasible problem")
)

// ValidationError names the offending field of a rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Reasons attached to unassignable stops.
const (
	ReasonUnreachable = "unreachable"
	ReasonConflict    = "conflict"
	ReasonCapacity    = "capacity"
)

// Unassignable describes a routable stop that no route could take.
// It is collected, never thrown.
type Unassignable struct {
	Stop          int
	Reason        string
	Detail        string
	ConflictsWith []int
}

// InfeasibleProblemError is returned alongside the partial solution when
// the caller marked every routable stop as mandatory.
type InfeasibleProblemError struct {
	StopIDs   []string
	Conflicts [][2]string
}

func (e *InfeasibleProblemError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "infeasible: %d routable stop(s) cannot be scheduled: %s", len(e.StopIDs), strings.Join(e.StopIDs, ","))
	if len(e.Conflicts) > 0 {
		b.WriteString("; mutually exclusive:")
		for _, c := range e.Conflicts {
			fmt.Fprintf(&b, " %s<>%s", c[0], c[1])
		}
	}
	return b.String()
}

func (e *InfeasibleProblemError) Unwrap() error { return ErrInfeasible }
