package wire

import (
	"encoding/binary"
	"fmt"
)

// PeekType returns the discriminator byte of a payload without decoding it.
// Fails with ErrEmptyPayload on empty input (§4.1).
func PeekType(b []byte) (MessageType, error) {
	if len(b) == 0 {
		return 0, ErrEmptyPayload
	}
	return MessageType(b[0]), nil
}

// Encode returns the fixed-length wire representation of m. All integer
// fields are written big-endian unsigned 64-bit; addresses are asserted to
// be 32 bytes by the type system itself (§4.1).
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case *IntentRequirements:
		return encodeIntentRequirements(v), nil
	case *EscrowConfirmation:
		return encodeEscrowConfirmation(v), nil
	case *FulfillmentProof:
		return encodeFulfillmentProof(v), nil
	default:
		return nil, fmt.Errorf("wire: unsupported message implementation %T", m)
	}
}

func encodeIntentRequirements(m *IntentRequirements) []byte {
	b := make([]byte, LenIntentRequirements)
	b[0] = byte(TypeIntentRequirements)
	copy(b[1:33], m.IntentID[:])
	copy(b[33:65], m.RequesterAddr[:])
	binary.BigEndian.PutUint64(b[65:73], m.AmountRequired)
	copy(b[73:105], m.TokenAddr[:])
	copy(b[105:137], m.SolverAddr[:])
	binary.BigEndian.PutUint64(b[137:145], m.ExpiryUnix)
	return b
}

func encodeEscrowConfirmation(m *EscrowConfirmation) []byte {
	b := make([]byte, LenEscrowConfirmation)
	b[0] = byte(TypeEscrowConfirmation)
	copy(b[1:33], m.IntentID[:])
	copy(b[33:65], m.EscrowID[:])
	binary.BigEndian.PutUint64(b[65:73], m.AmountEscrowed)
	copy(b[73:105], m.TokenAddr[:])
	copy(b[105:137], m.CreatorAddr[:])
	return b
}

func encodeFulfillmentProof(m *FulfillmentProof) []byte {
	b := make([]byte, LenFulfillmentProof)
	b[0] = byte(TypeFulfillmentProof)
	copy(b[1:33], m.IntentID[:])
	copy(b[33:65], m.SolverAddr[:])
	binary.BigEndian.PutUint64(b[65:73], m.AmountFulfilled)
	binary.BigEndian.PutUint64(b[73:81], m.TimestampUnix)
	copy(b[81:113], m.Extra[:])
	return b
}

// Decode parses a wire payload into its concrete Message. Fails with
// ErrTruncatedPayload if b is shorter than the common prefix,
// ErrUnknownMessageType if the discriminator is unrecognized, and
// ErrMalformedPayload if the length does not match the discriminator's
// fixed size (§4.1).
func Decode(b []byte) (Message, error) {
	if len(b) < headerLen {
		return nil, ErrTruncatedPayload
	}
	typ := MessageType(b[0])
	want, known := typ.expectedLength()
	if !known {
		return nil, ErrUnknownMessageType
	}
	if len(b) != want {
		return nil, ErrMalformedPayload
	}

	switch typ {
	case TypeIntentRequirements:
		return decodeIntentRequirements(b), nil
	case TypeEscrowConfirmation:
		return decodeEscrowConfirmation(b), nil
	case TypeFulfillmentProof:
		return decodeFulfillmentProof(b), nil
	default:
		// unreachable: typ.expectedLength already filtered unknown types
		return nil, ErrUnknownMessageType
	}
}

func decodeIntentRequirements(b []byte) *IntentRequirements {
	m := &IntentRequirements{}
	copy(m.IntentID[:], b[1:33])
	copy(m.RequesterAddr[:], b[33:65])
	m.AmountRequired = binary.BigEndian.Uint64(b[65:73])
	copy(m.TokenAddr[:], b[73:105])
	copy(m.SolverAddr[:], b[105:137])
	m.ExpiryUnix = binary.BigEndian.Uint64(b[137:145])
	return m
}

func decodeEscrowConfirmation(b []byte) *EscrowConfirmation {
	m := &EscrowConfirmation{}
	copy(m.IntentID[:], b[1:33])
	copy(m.EscrowID[:], b[33:65])
	m.AmountEscrowed = binary.BigEndian.Uint64(b[65:73])
	copy(m.TokenAddr[:], b[73:105])
	copy(m.CreatorAddr[:], b[105:137])
	return m
}

func decodeFulfillmentProof(b []byte) *FulfillmentProof {
	m := &FulfillmentProof{}
	copy(m.IntentID[:], b[1:33])
	copy(m.SolverAddr[:], b[33:65])
	m.AmountFulfilled = binary.BigEndian.Uint64(b[65:73])
	m.TimestampUnix = binary.BigEndian.Uint64(b[73:81])
	copy(m.Extra[:], b[81:113])
	return m
}

// DedupKey returns the 33-byte at-most-once key: intent_id (bytes [1,33))
// concatenated with the discriminator byte (byte 0). It operates directly
// on the encoded payload so the relay never needs to fully decode a message
// just to deduplicate it (§4.1, §6.1).
func DedupKey(b []byte) ([33]byte, error) {
	var key [33]byte
	if len(b) < headerLen {
		return key, ErrTruncatedPayload
	}
	copy(key[:32], b[1:33])
	key[32] = b[0]
	return key, nil
}
