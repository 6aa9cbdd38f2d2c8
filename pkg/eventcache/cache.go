// Package eventcache implements the coordinator's append-only, in-memory
// store of observed intent, escrow, and fulfillment records (§4.3). It is
// eventually consistent with finalized chain state and is never
// authoritative: consumers must not use it for security decisions, since
// the on-chain contracts are the source of truth (§4.3).
package eventcache

import (
	"sync"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/wire"
)

// intentKey uniquely identifies an observed intent by (intent_id, chain) as
// required by §4.3's upsert dedup rule.
type intentKey struct {
	intentID wire.IntentID
	chain    chain.ID
}

// escrowKey uniquely identifies an observed escrow by (intent_id, chain),
// matching §3's EscrowEvent uniqueness invariant.
type escrowKey struct {
	intentID wire.IntentID
	chain    chain.ID
}

// Cache is the coordinator's event store. All operations are O(1) amortized
// and safe for concurrent use; readers never block writers and vice versa
// beyond the critical section needed to copy the current slices (§4.3, §5).
type Cache struct {
	mu sync.RWMutex

	intents      []chain.IntentEvent
	escrows      []chain.EscrowEvent
	fulfillments []chain.FulfillmentEvent

	seenIntents map[intentKey]struct{}
	seenEscrows map[escrowKey]struct{}

	// byRequester indexes intent/escrow slice positions by (chain, requester)
	// for the secondary index named in §4.3.
	intentsByRequester map[requesterKey][]int
	escrowsByRequester map[requesterKey][]int
}

type requesterKey struct {
	chain     chain.ID
	requester wire.Address
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		seenIntents:        make(map[intentKey]struct{}),
		seenEscrows:        make(map[escrowKey]struct{}),
		intentsByRequester: make(map[requesterKey][]int),
		escrowsByRequester: make(map[requesterKey][]int),
	}
}

// UpsertIntent inserts e unless an identical (intent_id, chain) pair has
// already been observed, in which case it is a silent no-op (§4.3).
func (c *Cache) UpsertIntent(e chain.IntentEvent) {
	key := intentKey{intentID: e.IntentID, chain: e.OfferedChain}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.seenIntents[key]; seen {
		return
	}
	c.seenIntents[key] = struct{}{}

	idx := len(c.intents)
	c.intents = append(c.intents, e)

	rk := requesterKey{chain: e.OfferedChain, requester: e.Requester}
	c.intentsByRequester[rk] = append(c.intentsByRequester[rk], idx)
}

// UpsertEscrow inserts e unless an identical (intent_id, chain) pair has
// already been observed (§4.3, §3).
func (c *Cache) UpsertEscrow(e chain.EscrowEvent) {
	key := escrowKey{intentID: e.IntentID, chain: e.Chain}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.seenEscrows[key]; seen {
		return
	}
	c.seenEscrows[key] = struct{}{}

	idx := len(c.escrows)
	c.escrows = append(c.escrows, e)

	rk := requesterKey{chain: e.Chain, requester: e.Requester}
	c.escrowsByRequester[rk] = append(c.escrowsByRequester[rk], idx)
}

// UpsertFulfillment appends e. Fulfillments are not deduplicated by the
// cache itself; the relay's dedup index (§4.6) prevents duplicate delivery
// from ever reaching the point of producing two distinct on-chain events
// for the same (intent_id, msg_type).
func (c *Cache) UpsertFulfillment(e chain.FulfillmentEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fulfillments = append(c.fulfillments, e)
}

// Snapshot is the public read: a point-in-time copy of all three streams
// in insertion order (§4.3, §5: "readers observe a consistent snapshot at
// the moment of snapshot()").
type Snapshot struct {
	Intents      []chain.IntentEvent
	Escrows      []chain.EscrowEvent
	Fulfillments []chain.FulfillmentEvent
}

// Snapshot returns a copy of the cache's current contents.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Intents:      append([]chain.IntentEvent(nil), c.intents...),
		Escrows:      append([]chain.EscrowEvent(nil), c.escrows...),
		Fulfillments: append([]chain.FulfillmentEvent(nil), c.fulfillments...),
	}
}

// IntentsByRequester returns the intents observed for requester on chain,
// in insertion order.
func (c *Cache) IntentsByRequester(chainID chain.ID, requester wire.Address) []chain.IntentEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idxs := c.intentsByRequester[requesterKey{chain: chainID, requester: requester}]
	out := make([]chain.IntentEvent, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, c.intents[i])
	}
	return out
}

// EscrowsByRequester returns the escrows observed for requester on chain,
// in insertion order.
func (c *Cache) EscrowsByRequester(chainID chain.ID, requester wire.Address) []chain.EscrowEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idxs := c.escrowsByRequester[requesterKey{chain: chainID, requester: requester}]
	out := make([]chain.EscrowEvent, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, c.escrows[i])
	}
	return out
}
