package wire

import (
	"bytes"
	"testing"
)

func fill(seed byte) [32]byte {
	var b [32]byte
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	cases := []Message{
		&IntentRequirements{
			IntentID:       fill(1),
			RequesterAddr:  fill(2),
			AmountRequired: 1_000_000,
			TokenAddr:      fill(3),
			SolverAddr:     fill(4),
			ExpiryUnix:     1893456000,
		},
		&IntentRequirements{
			IntentID:       fill(5),
			RequesterAddr:  fill(6),
			AmountRequired: 42,
			TokenAddr:      fill(7),
			SolverAddr:     Address{}, // any solver
			ExpiryUnix:     0,
		},
		&EscrowConfirmation{
			IntentID:       fill(8),
			EscrowID:       fill(9),
			AmountEscrowed: 7,
			TokenAddr:      fill(10),
			CreatorAddr:    fill(11),
		},
		&FulfillmentProof{
			IntentID:        fill(12),
			SolverAddr:      fill(13),
			AmountFulfilled: 500,
			TimestampUnix:   1700000000,
			Extra:           [32]byte{},
		},
	}

	for _, m := range cases {
		encoded, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode(%v): %v", m.Type(), err)
		}

		switch m.Type() {
		case TypeIntentRequirements:
			if len(encoded) != LenIntentRequirements {
				t.Errorf("IntentRequirements length = %d, want %d", len(encoded), LenIntentRequirements)
			}
		case TypeEscrowConfirmation:
			if len(encoded) != LenEscrowConfirmation {
				t.Errorf("EscrowConfirmation length = %d, want %d", len(encoded), LenEscrowConfirmation)
			}
		case TypeFulfillmentProof:
			if len(encoded) != LenFulfillmentProof {
				t.Errorf("FulfillmentProof length = %d, want %d", len(encoded), LenFulfillmentProof)
			}
		}

		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}

		reencoded, err := Encode(decoded)
		if err != nil {
			t.Fatalf("re-Encode: %v", err)
		}
		if !bytes.Equal(encoded, reencoded) {
			t.Errorf("encode(decode(b)) != b for %v", m.Type())
		}

		if decoded.Intent() != m.Intent() {
			t.Errorf("decoded intent_id mismatch: got %x want %x", decoded.Intent(), m.Intent())
		}
	}
}

func TestPeekType(t *testing.T) {
	if _, err := PeekType(nil); err != ErrEmptyPayload {
		t.Errorf("PeekType(nil) err = %v, want ErrEmptyPayload", err)
	}

	b := make([]byte, LenFulfillmentProof)
	b[0] = byte(TypeFulfillmentProof)
	typ, err := PeekType(b)
	if err != nil {
		t.Fatalf("PeekType: %v", err)
	}
	if typ != TypeFulfillmentProof {
		t.Errorf("PeekType = %v, want FulfillmentProof", typ)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode(nil); err != ErrTruncatedPayload {
		t.Errorf("Decode(nil) err = %v, want ErrTruncatedPayload", err)
	}
	if _, err := Decode(make([]byte, 10)); err != ErrTruncatedPayload {
		t.Errorf("Decode(10 bytes) err = %v, want ErrTruncatedPayload", err)
	}

	b := make([]byte, headerLen)
	b[0] = 0xFF
	if _, err := Decode(b); err != ErrUnknownMessageType {
		t.Errorf("Decode(unknown type) err = %v, want ErrUnknownMessageType", err)
	}

	// S4: a 132-byte payload with type 0x01 (want 145) must fail malformed.
	malformed := make([]byte, 132)
	malformed[0] = byte(TypeIntentRequirements)
	if _, err := Decode(malformed); err != ErrMalformedPayload {
		t.Errorf("Decode(wrong length) err = %v, want ErrMalformedPayload", err)
	}
}

func TestDedupKey(t *testing.T) {
	m := &FulfillmentProof{IntentID: fill(1), SolverAddr: fill(2), AmountFulfilled: 1, TimestampUnix: 2}
	encoded, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	key, err := DedupKey(encoded)
	if err != nil {
		t.Fatalf("DedupKey: %v", err)
	}

	var want [33]byte
	copy(want[:32], encoded[1:33])
	want[32] = encoded[0]
	if key != want {
		t.Errorf("DedupKey = %x, want %x", key, want)
	}

	// Deterministic across calls.
	key2, _ := DedupKey(encoded)
	if key != key2 {
		t.Errorf("DedupKey not deterministic: %x != %x", key, key2)
	}

	if _, err := DedupKey([]byte{0x01}); err != ErrTruncatedPayload {
		t.Errorf("DedupKey(short) err = %v, want ErrTruncatedPayload", err)
	}
}
