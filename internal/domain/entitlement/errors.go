package entitlement

import "errors"

var (
	// ErrNotFound means no record exists yet for the user
	ErrNotFound = errors.New("entitlement record not found")

	// ErrConflict means a conditional write lost a race. It never leaves
	// the consume retry loop.
	ErrConflict = errors.New("entitlement record changed concurrently")

	// ErrStoreUnavailable wraps any storage failure. Gated actions fail closed on it.
	ErrStoreUnavailable = errors.New("entitlement store unavailable")

	// ErrCorruptRecord means a stored row holds a value outside the model
	ErrCorruptRecord = errors.New("corrupt entitlement record")

	ErrUnauthenticated = errors.New("no authenticated user")
	ErrUnknownAction   = errors.New("unknown action type")
)
