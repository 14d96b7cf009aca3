package solver

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKSP indicates a Krylov method name that NewKSP does not know.
	ErrUnknownKSP = errors.New("solver: unknown ksp")

	// ErrUnknownPC indicates a preconditioner name that NewPC does not know.
	ErrUnknownPC = errors.New("solver: unknown preconditioner")

	// ErrNotConverged indicates an iteration stopped at its limit above tolerance.
	ErrNotConverged = errors.New("solver: iteration did not converge")

	// ErrBreakdown indicates a Krylov recurrence hit a zero denominator.
	ErrBreakdown = errors.New("solver: krylov breakdown")
)

// ConvergenceError carries the state of a solve that hit its iteration limit.
type ConvergenceError struct {
	Method     string
	Iterations int
	Residual   float64
	Wrapped    error
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%s: %v after %d iterations (residual %.3e)", e.Method, e.Wrapped, e.Iterations, e.Residual)
}

func (e *ConvergenceError) Unwrap() error {
	return e.Wrapped
}
