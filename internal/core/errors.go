package core

import "errors"

// Error taxonomy for the lifecycle engine. Callers match with errors.Is;
// additional detail is attached via fmt.Errorf("%w: ...").
var (
	// ErrNotFound: the session id does not exist, or the caller is not
	// allowed to see that it does.
	ErrNotFound = errors.New("session not found")

	// ErrValidation: bad input (empty message, short completion note).
	// Nothing was mutated.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition: a transition precondition did not hold against
	// the persisted state. Service methods log these and treat them as
	// no-ops; the error never reaches an HTTP response.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrExpired: reactivation was attempted past the grace window. The
	// caller should prompt for a new consultation.
	ErrExpired = errors.New("session expired")
)
