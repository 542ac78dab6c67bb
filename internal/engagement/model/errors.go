package model

import (
	"errors"
	"fmt"
)

// ErrRoutingStalled is reported when the routing collaborator exceeds the
// hard watchdog threshold without producing a route.
var ErrRoutingStalled = errors.New("routing recalculation stalled")

// InvalidTransitionError reports an illegal phase request. It never mutates
// the current phase.
type InvalidTransitionError struct {
	From NavigationPhase
	To   NavigationPhase
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// MissingPreconditionError short-circuits an optional step (for example,
// attestation creation without a connected signing identity) instead of
// aborting the whole flow.
type MissingPreconditionError struct {
	What string
}

func (e *MissingPreconditionError) Error() string {
	return fmt.Sprintf("missing precondition: %s", e.What)
}

// AttestationWriteError wraps a failed ledger write. Callers treat it
// uniformly as "no attestation this time"; it is never surfaced as a
// blocking failure to the confirmation outcome.
type AttestationWriteError struct {
	Cause error
}

func (e *AttestationWriteError) Error() string {
	return fmt.Sprintf("attestation write failed: %v", e.Cause)
}

func (e *AttestationWriteError) Unwrap() error {
	return e.Cause
}
