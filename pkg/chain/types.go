// Package chain defines the chain-agnostic capability surface (§4.2) shared
// by the Move-VM, EVM, and SVM adapters, plus the event shapes the relay and
// coordinator translate chain-native logs into. Do not unify the three
// event models on-chain; adapters translate at the boundary (§9).
package chain

import (
	"time"

	"github.com/intentbridge/settlement/pkg/wire"
)

// ID is the 32-bit chain identifier distinguishing the hub chain from
// connected chains (§3).
type ID uint32

// Type identifies which VM family a chain belongs to (§3, EscrowEvent.chain_type).
type Type string

const (
	Mvm Type = "Mvm"
	Evm Type = "Evm"
	Svm Type = "Svm"
)

// Flow direction of an IntentEvent (§3).
type Flow string

const (
	Inflow  Flow = "inflow"
	Outflow Flow = "outflow"
)

// Position is the stable (block_height, log_index) ordering key adapters
// must produce events in (§4.2).
type Position struct {
	BlockHeight uint64
	LogIndex    uint64
}

// Less reports whether p sorts before other.
func (p Position) Less(other Position) bool {
	if p.BlockHeight != other.BlockHeight {
		return p.BlockHeight < other.BlockHeight
	}
	return p.LogIndex < other.LogIndex
}

// IntentEvent mirrors §3's IntentEvent entity.
type IntentEvent struct {
	Pos             Position
	IntentID        wire.IntentID
	Requester       wire.Address
	ReservedSolver  *wire.Address // nullable
	OfferedAsset    wire.Address
	OfferedAmount   uint64
	DesiredAsset    wire.Address
	DesiredAmount   uint64
	OfferedChain    ID
	DesiredChain    ID
	ExpiryUnix      uint64
	Revocable       bool // must be false for every cross-chain intent (§3)
	Timestamp       time.Time
	Flow            Flow
}

// EscrowEvent mirrors §3's EscrowEvent entity.
type EscrowEvent struct {
	Pos            Position
	EscrowID       [32]byte
	IntentID       wire.IntentID
	Chain          ID
	ChainType      Type
	Requester      wire.Address
	ReservedSolver *wire.Address
	OfferedAsset   wire.Address
	OfferedAmount  uint64
	DesiredAsset   wire.Address
	DesiredAmount  uint64
	Expiry         uint64
	Timestamp      time.Time
}

// FulfillmentEvent mirrors §3's FulfillmentEvent entity.
type FulfillmentEvent struct {
	Pos             Position
	IntentID        wire.IntentID
	Solver          wire.Address
	ProvidedAsset   wire.Address
	ProvidedAmount  uint64
	Timestamp       time.Time
}

// OutboxEntry is a single observed MessageSent outbox record (§3, §4.6).
type OutboxEntry struct {
	Pos     Position
	Nonce   uint64
	SrcAddr wire.Address
	DstAddr wire.Address
	Dst     ID
	Payload []byte // encoded GMP message, see pkg/wire
}

// SolverKey is the registered public signing material for a solver, as
// looked up on the hub chain's solver registry (§4.4).
type SolverKey struct {
	PublicKey []byte
	Active    bool
}
