package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/wire"
)

// fakeAdapter implements chain.Adapter for relay tests; only SubmitDeliver
// and Chain/Platform are exercised.
type fakeAdapter struct {
	platform chain.Type
	chainID  chain.ID

	mu         sync.Mutex
	submitted  [][]byte
	failNTimes int
	failErr    error
}

func (f *fakeAdapter) Platform() chain.Type { return f.platform }
func (f *fakeAdapter) Chain() chain.ID      { return f.chainID }

func (f *fakeAdapter) FinalizedHeight(ctx context.Context) (uint64, error) { return 0, nil }
func (f *fakeAdapter) FetchOutbox(ctx context.Context, from, to uint64) ([]chain.OutboxEntry, error) {
	return nil, nil
}
func (f *fakeAdapter) ReadOutboxEntry(ctx context.Context, nonce uint64) (chain.OutboxEntry, error) {
	return chain.OutboxEntry{}, chain.ErrOutboxEntryNotFound
}

func (f *fakeAdapter) SubmitDeliver(ctx context.Context, payload []byte, srcChain chain.ID, srcAddr wire.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNTimes > 0 {
		f.failNTimes--
		if f.failErr != nil {
			return f.failErr
		}
		return errors.New("transient failure")
	}
	f.submitted = append(f.submitted, payload)
	return nil
}

func (f *fakeAdapter) FetchEventsForAddresses(ctx context.Context, addrs []wire.Address, from, to uint64) (chain.ChainEvents, error) {
	return chain.ChainEvents{}, nil
}

func (f *fakeAdapter) LookupSolverKey(ctx context.Context, solver wire.Address) (chain.SolverKey, error) {
	return chain.SolverKey{}, nil
}

func (f *fakeAdapter) Balance(ctx context.Context, account wire.Address, asset wire.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeAdapter) SubmitFulfillment(ctx context.Context, intentID wire.IntentID, solver wire.Address, amount uint64) error {
	return nil
}

func testPayload(intentSeed byte) []byte {
	b := make([]byte, wire.LenIntentRequirements)
	b[0] = 0x01
	for i := 1; i < 33; i++ {
		b[i] = intentSeed
	}
	return b
}

func TestDelivererDeliversAndDedupes(t *testing.T) {
	a := &fakeAdapter{chainID: 2}
	d := NewDeliverer(a, 4, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	msg := OutboundMessage{SrcChain: 1, DstChain: 2, Payload: testPayload(1), FirstSeen: time.Now()}
	d.Queue() <- msg
	d.Queue() <- msg // duplicate dedup_key, should not be resubmitted

	time.Sleep(50 * time.Millisecond)

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.submitted) != 1 {
		t.Errorf("submitted count = %d, want 1 (second is a dedup hit)", len(a.submitted))
	}
}

func TestDelivererRetriesThenSucceeds(t *testing.T) {
	a := &fakeAdapter{chainID: 2, failNTimes: 2}
	d := NewDeliverer(a, 4, nil, nil)
	// speed the test up: can't change package consts, so just rely on the
	// short initial backoff (1s) and a slightly longer wait below.

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Queue() <- OutboundMessage{SrcChain: 1, DstChain: 2, Payload: testPayload(2), FirstSeen: time.Now()}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		n := len(a.submitted)
		a.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("delivery did not succeed after retries")
}

// TestDelivererPreservesNonceOrder covers P6/S6: within a single
// (src, dst, intent_id), deliveries occur in ascending source nonce order.
// The single-worker sequential drain guarantees this trivially as long as
// the queue is fed in nonce order, which the Poller does.
func TestDelivererPreservesNonceOrder(t *testing.T) {
	a := &fakeAdapter{chainID: 2}
	d := NewDeliverer(a, 8, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	for _, nonce := range []byte{7, 8, 9} {
		d.Queue() <- OutboundMessage{SrcChain: 1, DstChain: 2, Nonce: uint64(nonce), Payload: testPayload(nonce), FirstSeen: time.Now()}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		a.mu.Lock()
		n := len(a.submitted)
		a.mu.Unlock()
		if n == 3 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.submitted) != 3 {
		t.Fatalf("submitted count = %d, want 3", len(a.submitted))
	}
	for i, want := range []byte{7, 8, 9} {
		if a.submitted[i][1] != want {
			t.Errorf("submitted[%d] intent seed = %d, want %d (nonce order violated)", i, a.submitted[i][1], want)
		}
	}
}

func TestDelivererTreatsAlreadyDeliveredAsSuccess(t *testing.T) {
	a := &fakeAdapter{chainID: 2, failNTimes: 1, failErr: chain.ErrAlreadyDelivered}
	d := NewDeliverer(a, 4, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Queue() <- OutboundMessage{SrcChain: 1, DstChain: 2, Payload: testPayload(3), FirstSeen: time.Now()}

	time.Sleep(50 * time.Millisecond)
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.submitted) != 0 {
		t.Errorf("submitted count = %d, want 0 (already-delivered short-circuits before append)", len(a.submitted))
	}
}
