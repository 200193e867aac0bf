package errors

import (
	"fmt"
	"maps"
)

// Error represents a structured error with a code, message, and optional cause.
// It implements the standard error interface and carries the context the
// runtime attaches to faults (component name, transition kind, status).
//
// Error values are immutable after creation; the With* methods return copies.
type Error struct {
	// Code is the machine-readable error code (e.g., "FAULT_001").
	Code Code

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error that caused this error, if any.
	Cause error

	// Details contains additional structured data about the error, such as
	// the fully-qualified component name or the transition kind.
	Details map[string]any
}

// Error implements the error interface, returning the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of this error, supporting
// errors.Unwrap() and errors.Is() from the standard library.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Recoverable reports whether the state machine can absorb the error by
// resolving the component to a terminal status. Reentrancy violations and
// resource exhaustion are never recoverable.
func (e *Error) Recoverable() bool {
	switch e.Code.Category() {
	case "REENT", "OOM":
		return false
	default:
		return true
	}
}

// WithDetails returns a new Error with the specified details added.
// The original error is not modified.
func (e *Error) WithDetails(details map[string]any) *Error {
	newDetails := make(map[string]any, len(e.Details)+len(details))
	maps.Copy(newDetails, e.Details)
	maps.Copy(newDetails, details)
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: newDetails,
	}
}

// WithDetail returns a new Error with a single detail key-value pair added.
// The original error is not modified.
func (e *Error) WithDetail(key string, value any) *Error {
	return e.WithDetails(map[string]any{key: value})
}

// Format implements fmt.Formatter for detailed error output.
// Use %v for standard output, %+v for detailed output including the cause chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
