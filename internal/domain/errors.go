package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientResources is returned when an egg and a rare candy are not both available.
	ErrInsufficientResources = errors.New("insufficient eggs or rare candies")
	// ErrInsufficientCandies is returned when no rare candy is available for an evolution.
	ErrInsufficientCandies = errors.New("insufficient rare candies")
	// ErrNoEligibleSpecies is returned when every base-stage species is already owned.
	ErrNoEligibleSpecies = errors.New("no eligible base-stage species left")
	// ErrCannotEvolve is returned when the creature's current species has no successor.
	ErrCannotEvolve = errors.New("creature cannot evolve")
	// ErrCreatureNotFound is returned when no owned creature has the given instance id.
	ErrCreatureNotFound = errors.New("creature not found")
	// ErrDataIntegrity marks catalog corruption: a missing referenced species or a cyclic chain.
	ErrDataIntegrity = errors.New("data integrity violation")
	// ErrStoreUnavailable wraps failures of the underlying persistence layer.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInconsistentState marks failures after which stores may disagree and need reconciliation.
	ErrInconsistentState = errors.New("inconsistent state possible")

	// ErrInvalidAmount is returned for negative currency amounts.
	ErrInvalidAmount = errors.New("currency amounts must be non-negative")
	// ErrInvalidDistance is returned for negative or non-finite distances.
	ErrInvalidDistance = errors.New("distance must be a finite non-negative number")
	// ErrInvalidSteps is returned for negative step counter readings.
	ErrInvalidSteps = errors.New("step count must be non-negative")
	// ErrInvalidWorkout is returned when a manual workout has an unusable time range or source.
	ErrInvalidWorkout = errors.New("invalid workout")
	// ErrInvalidSettings is returned for unsupported language or distance unit values.
	ErrInvalidSettings = errors.New("invalid settings")

	// ErrSessionActive is returned when starting a workout while another one is active or paused.
	ErrSessionActive = errors.New("a workout session is already in progress")
	// ErrNoActiveSession is returned when pausing or finishing without a session in progress.
	ErrNoActiveSession = errors.New("no workout session in progress")
	// ErrSessionNotRunning is returned when step input arrives while the session is not active.
	ErrSessionNotRunning = errors.New("workout session is not running")
)

// InconsistentStateError reports an operation that failed after currency was
// consumed and whose compensation could not fully restore consistency. It
// matches ErrInconsistentState and unwraps to the underlying causes.
type InconsistentStateError struct {
	Op        string
	Cause     error
	RefundErr error
}

func (e *InconsistentStateError) Error() string {
	if e.RefundErr != nil {
		return fmt.Sprintf("%s: %v; refund failed: %v", e.Op, e.Cause, e.RefundErr)
	}
	return fmt.Sprintf("%s: %v; reconciliation required", e.Op, e.Cause)
}

// Is lets errors.Is match ErrInconsistentState.
func (e *InconsistentStateError) Is(target error) bool {
	return target == ErrInconsistentState
}

// Unwrap exposes both the failure and the refund failure.
func (e *InconsistentStateError) Unwrap() []error {
	out := []error{e.Cause}
	if e.RefundErr != nil {
		out = append(out, e.RefundErr)
	}
	return out
}

// CreditError reports a workout that was persisted but whose reward could not
// be credited. The credit is not retried automatically.
type CreditError struct {
	WorkoutID string
	Reward    Reward
	Err       error
}

func (e *CreditError) Error() string {
	return fmt.Sprintf("workout %s saved but reward (%d eggs, %d candies) not credited: %v", e.WorkoutID, e.Reward.Eggs, e.Reward.Candies, e.Err)
}

func (e *CreditError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func integrityErr(err error) error {
	return fmt.Errorf("%w: %w", ErrDataIntegrity, err)
}
