package errors

import (
	"errors"
)

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// GetCode returns the code of the first *Error in err's chain, or "".
func GetCode(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// hasCategory reports whether any *Error in err's chain carries a code of
// the given category. Walking the whole chain matters for faults: a hook
// fault wrapping a reentrancy violation must still be seen as reentrancy.
func hasCategory(err error, category string) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code.Category() == category {
			return true
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				if hasCategory(inner, category) {
					return true
				}
			}
			return false
		}
		err = errors.Unwrap(err)
	}
	return false
}

func IsValidation(err error) bool {
	return hasCategory(err, "VAL")
}

func IsNotFound(err error) bool {
	return hasCategory(err, "NF")
}

func IsConflict(err error) bool {
	return hasCategory(err, "CONF")
}

func IsInternal(err error) bool {
	return hasCategory(err, "INT")
}

func IsUnavailable(err error) bool {
	return hasCategory(err, "UNAVAIL")
}

func IsTimeout(err error) bool {
	return hasCategory(err, "TIMEOUT")
}

// IsFault reports whether err is a recoverable transition fault.
func IsFault(err error) bool {
	return hasCategory(err, "FAULT")
}

// IsReentrancy reports whether err is, or wraps, a reentrancy violation.
func IsReentrancy(err error) bool {
	return hasCategory(err, "REENT")
}

// IsStuck reports whether err describes a force-resolved transition.
func IsStuck(err error) bool {
	return hasCategory(err, "STUCK")
}

// IsOrphan reports whether err describes an unattributed worker failure.
func IsOrphan(err error) bool {
	return hasCategory(err, "ORPHAN")
}

// IsResourceExhausted reports whether err is an out-of-memory class failure.
func IsResourceExhausted(err error) bool {
	return hasCategory(err, "OOM")
}

// IsRetryable reports whether retrying the failed operation may succeed.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	switch e.Code.Category() {
	case "TIMEOUT", "UNAVAIL":
		return true
	default:
		return false
	}
}
