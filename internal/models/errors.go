package models

import "errors"

var (
	// ErrValidation covers bad or missing caller input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound means no account exists for the given external id.
	ErrNotFound = errors.New("user not found")

	// ErrNothingToClaim is returned by the farming claim variant when
	// no pending points have accrued since the last claim.
	ErrNothingToClaim = errors.New("nothing to claim")

	// ErrSelfReferral rejects a referral where referrer == referred.
	ErrSelfReferral = errors.New("self-referral is not allowed")

	// ErrStoreUnavailable wraps persistence layer failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)
