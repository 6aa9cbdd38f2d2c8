// Package wire implements the bit-exact GMP message codec shared by the
// relay and solver. See the GMP wire format reference for the byte layout
// of each message type.
package wire

import "errors"

// Sentinel errors for codec operations.
var (
	// ErrTruncatedPayload is returned when a payload is shorter than the
	// minimum common prefix (type byte + 32-byte intent_id).
	ErrTruncatedPayload = errors.New("wire: truncated payload")

	// ErrUnknownMessageType is returned when the discriminator byte does
	// not match any known GMP message type.
	ErrUnknownMessageType = errors.New("wire: unknown message type")

	// ErrMalformedPayload is returned when a payload's length does not
	// match the fixed size required by its discriminator.
	ErrMalformedPayload = errors.New("wire: malformed payload")

	// ErrEmptyPayload is returned by PeekType on zero-length input.
	ErrEmptyPayload = errors.New("wire: empty payload")
)
