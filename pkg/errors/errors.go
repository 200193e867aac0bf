// Package errors provides the structured fault taxonomy used by the
// StricklySoft component runtime. Every failure the runtime reports,
// whether it comes from a transition hook, a stuck-transition detector or
// a worker goroutine that died without going through the executor, is
// expressed as an [*Error] carrying a machine-readable [Code].
//
// # Categories
//
//   - Validation errors: malformed names, invalid configuration values
//   - NotFound errors: unknown components, missing properties
//   - Conflict errors: inadmissible transitions, duplicate names
//   - Internal errors: configuration, storage and unexpected failures
//   - Unavailable errors: a dependency (property store, dispatcher) is down
//   - Timeout errors: an operation exceeded its deadline
//   - Fault errors: a transition hook reported a recoverable failure
//   - Reentrancy errors: a component tried to transition itself from
//     inside its own in-flight transition
//   - Stuck errors: the health check force-resolved a transition that
//     exceeded its maximum duration
//   - Orphan errors: a worker failure could not be attributed to a component
//   - Resource exhaustion errors: out-of-memory class failures
//
// # Usage
//
// Create a new error:
//
//	err := errors.New(errors.CodeValidation, "component name is empty")
//
// Wrap an existing error:
//
//	err := errors.Wrap(err, errors.CodeFault, "initialize hook failed")
//
// Check the category:
//
//	if errors.IsReentrancy(err) {
//	    // programmer error, never swallow
//	}
package errors
