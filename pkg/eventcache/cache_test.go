package eventcache

import (
	"sync"
	"testing"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/wire"
)

func TestUpsertIntentDedup(t *testing.T) {
	c := New()
	e := chain.IntentEvent{IntentID: fillID(1), OfferedChain: 1, Requester: fillAddr(2)}

	c.UpsertIntent(e)
	c.UpsertIntent(e) // identical (intent_id, chain) pair, must be ignored

	snap := c.Snapshot()
	if len(snap.Intents) != 1 {
		t.Fatalf("len(Intents) = %d, want 1", len(snap.Intents))
	}
}

func TestUpsertIntentDistinctChainNotDeduped(t *testing.T) {
	c := New()
	e1 := chain.IntentEvent{IntentID: fillID(1), OfferedChain: 1}
	e2 := chain.IntentEvent{IntentID: fillID(1), OfferedChain: 2}

	c.UpsertIntent(e1)
	c.UpsertIntent(e2)

	snap := c.Snapshot()
	if len(snap.Intents) != 2 {
		t.Fatalf("len(Intents) = %d, want 2", len(snap.Intents))
	}
}

func TestSnapshotPreservesOrder(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.UpsertEscrow(chain.EscrowEvent{IntentID: fillID(byte(i)), Chain: chain.ID(i)})
	}

	snap := c.Snapshot()
	for i, ev := range snap.Escrows {
		if ev.Chain != chain.ID(i) {
			t.Errorf("Escrows[%d].Chain = %d, want %d (insertion order)", i, ev.Chain, i)
		}
	}
}

func TestConcurrentWritesConsistentSnapshot(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.UpsertFulfillment(chain.FulfillmentEvent{IntentID: fillID(byte(i % 256))})
		}(i)
	}
	wg.Wait()

	snap := c.Snapshot()
	if len(snap.Fulfillments) != 100 {
		t.Errorf("len(Fulfillments) = %d, want 100", len(snap.Fulfillments))
	}
}

func TestIntentsByRequester(t *testing.T) {
	c := New()
	requester := fillAddr(9)
	c.UpsertIntent(chain.IntentEvent{IntentID: fillID(1), OfferedChain: 1, Requester: requester})
	c.UpsertIntent(chain.IntentEvent{IntentID: fillID(2), OfferedChain: 1, Requester: fillAddr(10)})

	got := c.IntentsByRequester(1, requester)
	if len(got) != 1 {
		t.Fatalf("IntentsByRequester len = %d, want 1", len(got))
	}
	if got[0].IntentID != fillID(1) {
		t.Errorf("unexpected intent returned")
	}
}

func fillID(seed byte) (out wire.IntentID) {
	for i := range out {
		out[i] = seed + byte(i)
	}
	return out
}

func fillAddr(seed byte) (out wire.Address) {
	for i := range out {
		out[i] = seed
	}
	return out
}
