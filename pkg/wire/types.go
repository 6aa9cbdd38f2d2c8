package wire

import "fmt"

// MessageType is the 1-byte GMP discriminator.
type MessageType byte

const (
	// TypeIntentRequirements is the 0x01 IntentRequirements message.
	TypeIntentRequirements MessageType = 0x01
	// TypeEscrowConfirmation is the 0x02 EscrowConfirmation message.
	TypeEscrowConfirmation MessageType = 0x02
	// TypeFulfillmentProof is the 0x03 FulfillmentProof message.
	TypeFulfillmentProof MessageType = 0x03
)

// Fixed wire lengths per §6.1. Exported so callers can validate buffers
// before decoding.
const (
	LenIntentRequirements = 145
	LenEscrowConfirmation = 137
	LenFulfillmentProof   = 113

	// addrLen is the canonical wire address width; EVM's 20-byte form is
	// left-zero-padded to this width (§4.2).
	addrLen = 32
	// intentIDLen is the width of the intent_id field.
	intentIDLen = 32
	// headerLen is the common prefix: 1 type byte + 32-byte intent_id.
	headerLen = 1 + intentIDLen
)

func (t MessageType) String() string {
	switch t {
	case TypeIntentRequirements:
		return "IntentRequirements"
	case TypeEscrowConfirmation:
		return "EscrowConfirmation"
	case TypeFulfillmentProof:
		return "FulfillmentProof"
	default:
		return fmt.Sprintf("MessageType(0x%02x)", byte(t))
	}
}

func (t MessageType) expectedLength() (int, bool) {
	switch t {
	case TypeIntentRequirements:
		return LenIntentRequirements, true
	case TypeEscrowConfirmation:
		return LenEscrowConfirmation, true
	case TypeFulfillmentProof:
		return LenFulfillmentProof, true
	default:
		return 0, false
	}
}

// IntentID is the 32-byte opaque identifier unique across all chains.
type IntentID [32]byte

func (id IntentID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// Address is the 32-byte canonical wire address. EVM's 20-byte address is
// left-zero-padded to this width at the wire boundary (§3, §4.2).
type Address [32]byte

// AddressFromEVM left-pads a 20-byte EVM address to the 32-byte canonical
// wire width.
func AddressFromEVM(evm [20]byte) Address {
	var a Address
	copy(a[12:], evm[:])
	return a
}

// IsZero reports whether the address is the all-zero "any solver" sentinel
// (§6.1, IntentRequirements.solver_addr).
func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) String() string {
	return fmt.Sprintf("%x", a[:])
}

// Message is implemented by all three GMP payload types.
type Message interface {
	Type() MessageType
	Intent() IntentID
}

// IntentRequirements is the 0x01 message (§6.1), 145 bytes.
type IntentRequirements struct {
	IntentID       IntentID
	RequesterAddr  Address
	AmountRequired uint64
	TokenAddr      Address
	SolverAddr     Address // zero means "any solver"
	ExpiryUnix     uint64
}

func (m *IntentRequirements) Type() MessageType { return TypeIntentRequirements }
func (m *IntentRequirements) Intent() IntentID  { return m.IntentID }

// EscrowConfirmation is the 0x02 message (§6.1), 137 bytes.
type EscrowConfirmation struct {
	IntentID       IntentID
	EscrowID       [32]byte
	AmountEscrowed uint64
	TokenAddr      Address
	CreatorAddr    Address
}

func (m *EscrowConfirmation) Type() MessageType { return TypeEscrowConfirmation }
func (m *EscrowConfirmation) Intent() IntentID  { return m.IntentID }

// FulfillmentProof is the 0x03 message (§6.1), 113 bytes.
type FulfillmentProof struct {
	IntentID        IntentID
	SolverAddr      Address
	AmountFulfilled uint64
	TimestampUnix   uint64
	Extra           [32]byte // reserved, must be zero
}

func (m *FulfillmentProof) Type() MessageType { return TypeFulfillmentProof }
func (m *FulfillmentProof) Intent() IntentID  { return m.IntentID }
