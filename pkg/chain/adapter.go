package chain

import (
	"context"
	"errors"

	"github.com/intentbridge/settlement/pkg/wire"
)

// ErrUnsupportedOperation is returned by adapters that do not implement a
// capability for their chain type (e.g. an SVM adapter asked for a Move
// module table read).
var ErrUnsupportedOperation = errors.New("chain: operation not supported by this adapter")

// Adapter is the uniform capability surface implemented by the Mvm, Evm,
// and Svm strategies (§4.2). All methods may suspend on network I/O and
// must honor ctx cancellation; implementations must be safe for concurrent
// use by multiple tasks (pollers, deliverers, the solver) per §5.
type Adapter interface {
	// Platform identifies which VM family this adapter serves.
	Platform() Type

	// Chain returns the chain identifier this adapter is bound to.
	Chain() ID

	// FinalizedHeight returns the chain-reported height at or below which
	// blocks are irreversible (§4.2). Adapters must never surface events
	// above this watermark.
	FinalizedHeight(ctx context.Context) (uint64, error)

	// FetchOutbox returns MessageSent outbox entries in the inclusive
	// height range [from, to], ordered by (block_height, log_index) (§4.2).
	FetchOutbox(ctx context.Context, from, to uint64) ([]OutboxEntry, error)

	// ReadOutboxEntry reads a single named outbox entry by nonce. Returns
	// ErrOutboxEntryNotFound if the entry has been swept by the on-chain
	// TTL sweep or never existed.
	ReadOutboxEntry(ctx context.Context, nonce uint64) (OutboxEntry, error)

	// SubmitDeliver invokes the destination chain's deliver_message entry
	// point with payload, tagged with its originating chain and address
	// for on-chain trusted-remote verification (§4.2, §4.6).
	SubmitDeliver(ctx context.Context, payload []byte, srcChain ID, srcAddr wire.Address) error

	// FetchEventsForAddresses returns IntentEvent/EscrowEvent/
	// FulfillmentEvent records observed for the given addresses in the
	// inclusive height range [from, to] (§4.2).
	FetchEventsForAddresses(ctx context.Context, addrs []wire.Address, from, to uint64) (ChainEvents, error)

	// LookupSolverKey reads a solver's registered public key from the
	// on-chain solver registry (§4.4).
	LookupSolverKey(ctx context.Context, solver wire.Address) (SolverKey, error)

	// Balance returns account's available balance of asset on this chain,
	// used by the solver's admission control (§4.7.1a).
	Balance(ctx context.Context, account wire.Address, asset wire.Address) (uint64, error)

	// SubmitFulfillment invokes the settlement entry point on this chain's
	// intent/escrow contract directly — the intent contract's `fulfill` for
	// an inflow settlement, or the outflow validator's `fulfill_intent` for
	// an outflow settlement (§4.7.2.a/b). This is the on-chain action that
	// actually settles the intent; it is distinct from SubmitDeliver, which
	// only carries GMP messages to the deliver_message entry point.
	SubmitFulfillment(ctx context.Context, intentID wire.IntentID, solver wire.Address, amount uint64) error
}

// ErrOutboxEntryNotFound is returned by ReadOutboxEntry when the nonce is
// unknown or has been TTL-swept on chain.
var ErrOutboxEntryNotFound = errors.New("chain: outbox entry not found")

// ErrAlreadyDelivered is the reclassified form of an on-chain
// "already delivered"/"already fulfilled" revert (§7 RpcRejected handling).
// The relay treats it identically to success.
var ErrAlreadyDelivered = errors.New("chain: already delivered")

// ChainEvents is the chain-agnostic bundle of events an adapter surfaces
// for a height range, already translated into the shared shapes (§4.2, §9).
type ChainEvents struct {
	Intents      []IntentEvent
	Escrows      []EscrowEvent
	Fulfillments []FulfillmentEvent
}
