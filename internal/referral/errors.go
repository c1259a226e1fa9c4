package referral

import "errors"

var (
	// ErrProfileNotFound indicates an operation required an existing partner
	// profile that does not exist. Not retried automatically.
	ErrProfileNotFound = errors.New("partner profile not found")

	// ErrInvalidAmount indicates a negative magnitude was passed to the
	// ledger. Rejected at the boundary, never persisted.
	ErrInvalidAmount = errors.New("invalid transaction amount")

	// ErrInvalidPayload indicates a referral start payload that does not
	// match any known link format.
	ErrInvalidPayload = errors.New("invalid referral payload")

	// ErrSelfReferral indicates a user tried to sign up under their own
	// referral code.
	ErrSelfReferral = errors.New("self referral is not allowed")
)
