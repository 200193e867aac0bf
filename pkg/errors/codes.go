package errors

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., VAL, FAULT, STUCK) and XXX is a three-digit numeric code.
//
// Codes are stable once assigned; log pipelines and alert rules match on
// them directly.
type Code string

// Error code categories:
//
//	VAL_xxx     - Validation errors
//	NF_xxx      - Not found errors
//	CONF_xxx    - Conflict errors (inadmissible transitions, duplicates)
//	INT_xxx     - Internal errors
//	UNAVAIL_xxx - Dependency unavailable
//	TIMEOUT_xxx - Deadline exceeded
//	FAULT_xxx   - Recoverable transition hook faults
//	REENT_xxx   - Reentrancy violations (programmer errors)
//	STUCK_xxx   - Transitions force-resolved by the health check
//	ORPHAN_xxx  - Worker failures with no owning component
//	OOM_xxx     - Resource exhaustion
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a field has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationRange indicates a value is outside acceptable range.
	CodeValidationRange Code = "VAL_004"

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundComponent indicates the named component does not exist.
	CodeNotFoundComponent Code = "NF_002"

	// CodeNotFoundProperty indicates the named property does not exist.
	CodeNotFoundProperty Code = "NF_003"

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictAlreadyExists indicates the name is already taken.
	CodeConflictAlreadyExists Code = "CONF_002"

	// CodeConflictInadmissible indicates a transition kind is not
	// admissible from the component's current status.
	CodeConflictInadmissible Code = "CONF_003"

	// CodeConflictOwnership indicates a value is owned by another component.
	CodeConflictOwnership Code = "CONF_004"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalStorage indicates a property store operation failed.
	CodeInternalStorage Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service is unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// CodeUnavailableOverloaded indicates a queue or pool is saturated.
	CodeUnavailableOverloaded Code = "UNAVAIL_003"

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutStorage indicates a property store call timed out.
	CodeTimeoutStorage Code = "TIMEOUT_002"

	// CodeTimeoutWait indicates a status wait elapsed without the target
	// status being reached.
	CodeTimeoutWait Code = "TIMEOUT_003"

	// CodeFault indicates a transition hook reported a failure.
	CodeFault Code = "FAULT_001"

	// CodeFaultCanceled indicates a transition observed its cancellation
	// signal and gave up.
	CodeFaultCanceled Code = "FAULT_002"

	// CodeFaultWorker indicates a worker goroutine exited or failed while
	// its component was enabled.
	CodeFaultWorker Code = "FAULT_003"

	// CodeFaultHealthCheck indicates a periodic health check failed.
	CodeFaultHealthCheck Code = "FAULT_004"

	// CodeReentrancy indicates a component attempted to transition itself
	// from inside its own in-flight transition.
	CodeReentrancy Code = "REENT_001"

	// CodeReentrancyWait indicates a transition tried to wait for its own
	// component's status.
	CodeReentrancyWait Code = "REENT_002"

	// CodeStuckTransition indicates the health check force-resolved a
	// transition that exceeded its maximum duration.
	CodeStuckTransition Code = "STUCK_001"

	// CodeOrphanFailure indicates a worker failure with no owning component.
	CodeOrphanFailure Code = "ORPHAN_001"

	// CodeResourceExhausted indicates an out-of-memory class failure.
	CodeResourceExhausted Code = "OOM_001"

	// CodeQuarantined indicates a component exhausted its restart budget.
	CodeQuarantined Code = "FAULT_005"

	// CodeKeyQuarantined indicates a key component exhausted its restart
	// budget.
	CodeKeyQuarantined Code = "FAULT_006"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL", "FAULT").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
