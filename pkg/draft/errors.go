// Package draft implements the off-chain draft store and FCFS signature
// negotiation router (§4.4).
package draft

import "errors"

// Sentinel errors for draft store operations, following the teacher's
// package-level sentinel-error idiom (pkg/database/errors.go,
// pkg/batch/errors.go).
var (
	// ErrNotFound is returned when a draft_id is unknown.
	ErrNotFound = errors.New("draft: not found")

	// ErrConflict is returned by SubmitSignature when the draft is no
	// longer Pending (§4.4, §7: surfaced as HTTP 409, never retried).
	ErrConflict = errors.New("draft: already signed by another solver")

	// ErrRejectedNotRegistered is returned when the submitting solver is
	// not registered on the hub chain (§4.4, §7: surfaced as 400).
	ErrRejectedNotRegistered = errors.New("draft: solver not registered")

	// ErrRejectedBadSignature is returned when the signature is not
	// exactly 64 bytes of hex-decoded data (§4.4).
	ErrRejectedBadSignature = errors.New("draft: signature must be exactly 64 bytes hex-decoded")

	// ErrExpired is returned when an operation targets a draft whose
	// expiry has elapsed (§4.4, §7: business outcome, never retried).
	ErrExpired = errors.New("draft: expired")
)
