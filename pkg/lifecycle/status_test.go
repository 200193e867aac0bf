package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []Status{
	StatusCreated, StatusInitializing, StatusEnabled, StatusReinitializing,
	StatusShuttingDown, StatusDown, StatusError, StatusCriticalError, StatusDestroyed,
}

var allKinds = []Kind{KindEngage, KindShutDown, KindReinitialize, KindError, KindCriticalError}

// ===========================================================================
// Admission Tests
// ===========================================================================

// TestAdmissible_Table checks every kind against every status.
func TestAdmissible_Table(t *testing.T) {
	t.Parallel()

	admitted := map[Kind][]Status{
		KindEngage: {StatusCreated, StatusError, StatusCriticalError, StatusDown},
		KindShutDown: {StatusCreated, StatusInitializing, StatusEnabled, StatusReinitializing,
			StatusError, StatusCriticalError},
		KindReinitialize: {StatusCreated, StatusInitializing, StatusEnabled, StatusShuttingDown,
			StatusDown, StatusError, StatusCriticalError},
		KindError: {StatusCreated, StatusInitializing, StatusEnabled, StatusReinitializing,
			StatusShuttingDown, StatusDown, StatusCriticalError},
		KindCriticalError: {StatusCreated, StatusInitializing, StatusEnabled, StatusReinitializing,
			StatusShuttingDown, StatusDown, StatusError},
	}

	for _, k := range allKinds {
		for _, s := range allStatuses {
			want := false
			for _, a := range admitted[k] {
				if a == s {
					want = true
				}
			}
			assert.Equal(t, want, Admissible(k, s), "Admissible(%s, %s)", k, s)
		}
	}
}

func TestAdmissible_NothingFromDestroyed(t *testing.T) {
	t.Parallel()
	for _, k := range allKinds {
		assert.False(t, Admissible(k, StatusDestroyed), "kind %s", k)
	}
}

func TestAdmissible_UnknownInputs(t *testing.T) {
	t.Parallel()
	assert.False(t, Admissible(Kind("restart"), StatusEnabled))
	assert.False(t, Admissible(KindEngage, Status("paused")))
}

// ===========================================================================
// Status Mapping Tests
// ===========================================================================

func TestTransientStatus(t *testing.T) {
	t.Parallel()
	tests := map[Kind]Status{
		KindEngage:        StatusInitializing,
		KindShutDown:      StatusShuttingDown,
		KindReinitialize:  StatusReinitializing,
		KindError:         StatusError,
		KindCriticalError: StatusCriticalError,
	}
	for k, want := range tests {
		assert.Equal(t, want, transientStatus(k), "kind %s", k)
	}
}

func TestSuccessAndFailureStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind    Kind
		success Status
		failure Status
	}{
		{KindEngage, StatusEnabled, StatusError},
		{KindReinitialize, StatusEnabled, StatusError},
		{KindShutDown, StatusDown, StatusDown},
		{KindError, StatusError, StatusError},
		{KindCriticalError, StatusCriticalError, StatusCriticalError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.success, successStatus(tt.kind))
			assert.Equal(t, tt.failure, failureStatus(tt.kind))
		})
	}
}

func TestStatus_Predicates(t *testing.T) {
	t.Parallel()
	for _, s := range allStatuses {
		assert.True(t, s.Valid(), "status %s", s)
	}
	assert.False(t, Status("").Valid())

	assert.True(t, StatusError.IsFailure())
	assert.True(t, StatusCriticalError.IsFailure())
	assert.False(t, StatusDown.IsFailure())

	assert.True(t, StatusEnabled.IsActive())
	assert.True(t, StatusInitializing.IsActive())
	assert.True(t, StatusReinitializing.IsActive())
	assert.False(t, StatusShuttingDown.IsActive())
	assert.False(t, StatusCreated.IsActive())
}

func TestKind_Valid(t *testing.T) {
	t.Parallel()
	for _, k := range allKinds {
		assert.True(t, k.Valid(), "kind %s", k)
	}
	assert.False(t, Kind("destroy").Valid())
}
