package domain

import "errors"

var (
	// ErrInvalidArgument is returned when a moderation request carries no
	// content or content exceeding the configured size bound.
	ErrInvalidArgument = errors.New("invalid argument: no content or content too large")

	// ErrClassifierUnavailable covers transport, auth and quota failures
	// reaching the moderation oracle. It is recovered locally via the
	// fail-open verdict and never surfaced to the end user.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrMalformedClassifierResponse means the oracle answered 200 with an
	// unexpected shape. Handled exactly like unavailability.
	ErrMalformedClassifierResponse = errors.New("malformed classifier response")

	// ErrLedgerConflict signals a concurrent modification of a user ledger.
	// Callers retry the read-modify-write internally.
	ErrLedgerConflict = errors.New("ledger write conflict")

	ErrLedgerNotFound = errors.New("ledger not found")

	ErrUnknownProfile = errors.New("unknown sensitivity profile")
)
