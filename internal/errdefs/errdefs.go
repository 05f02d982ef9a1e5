// Package errdefs defines the error taxonomy shared by the trust registry
// and the submission ledger. Callers classify failures with errors.Is; the
// HTTP layer maps each class to a status code.
package errdefs

import "errors"

var (
	// ErrValidation — a request field is malformed or empty.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized — the acting principal is unknown, inactive, or lacks
	// the required capability.
	ErrUnauthorized = errors.New("not authorized")

	// ErrConflict — the record already exists (duplicate dataHash, deviceId,
	// or verifier address).
	ErrConflict = errors.New("already exists")

	// ErrNotFound — the queried hash, device, or verifier is unknown.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity — a signature failed verification, or provided data does
	// not hash to the recorded content address.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrRange — a pagination start index is beyond the current total.
	ErrRange = errors.New("index out of range")
)
