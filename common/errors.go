package common

import "fmt"

// FatalError marks a failure the engine cannot recover from inside a frame, such as a native
// pipeline or bind group that could not be created. It is raised with panic rather than returned.
type FatalError struct {
	// Op names the operation that failed, e.g. "create render pipeline".
	Op string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal logs and panics with a *FatalError wrapping err.
//
// Parameters:
//   - op: the operation that failed
//   - err: the underlying cause
func Fatal(op string, err error) {
	fe := &FatalError{Op: op, Err: err}
	LogError("%v", fe)
	panic(fe)
}
