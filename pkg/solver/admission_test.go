package solver

import (
	"context"
	"testing"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/wire"
)

type stubAdapter struct {
	balance uint64
	err     error
}

func (s *stubAdapter) Platform() chain.Type                                                 { return chain.Evm }
func (s *stubAdapter) Chain() chain.ID                                                       { return 1 }
func (s *stubAdapter) FinalizedHeight(ctx context.Context) (uint64, error)                   { return 0, nil }
func (s *stubAdapter) FetchOutbox(ctx context.Context, from, to uint64) ([]chain.OutboxEntry, error) {
	return nil, nil
}
func (s *stubAdapter) ReadOutboxEntry(ctx context.Context, nonce uint64) (chain.OutboxEntry, error) {
	return chain.OutboxEntry{}, nil
}
func (s *stubAdapter) SubmitDeliver(ctx context.Context, payload []byte, srcChain chain.ID, srcAddr wire.Address) error {
	return nil
}
func (s *stubAdapter) FetchEventsForAddresses(ctx context.Context, addrs []wire.Address, from, to uint64) (chain.ChainEvents, error) {
	return chain.ChainEvents{}, nil
}
func (s *stubAdapter) LookupSolverKey(ctx context.Context, solver wire.Address) (chain.SolverKey, error) {
	return chain.SolverKey{}, nil
}
func (s *stubAdapter) Balance(ctx context.Context, account wire.Address, asset wire.Address) (uint64, error) {
	return s.balance, s.err
}
func (s *stubAdapter) SubmitFulfillment(ctx context.Context, intentID wire.IntentID, solver wire.Address, amount uint64) error {
	return nil
}

func TestAdmitAcceptsWhenAboveFloor(t *testing.T) {
	c := NewAdmissionController(nil)
	a := &stubAdapter{balance: 1000}

	if err := c.Admit(context.Background(), a, wire.Address{}, wire.Address{}, 500); err != nil {
		t.Errorf("Admit() = %v, want nil", err)
	}
}

func TestAdmitRejectsBelowFloor(t *testing.T) {
	c := NewAdmissionController(nil)
	a := &stubAdapter{balance: 500}

	if err := c.Admit(context.Background(), a, wire.Address{}, wire.Address{}, 500); err != ErrInsufficientLiquidity {
		t.Errorf("Admit() = %v, want ErrInsufficientLiquidity", err)
	}
}

func TestAdmitRespectsConfiguredFloor(t *testing.T) {
	var asset wire.Address
	asset[0] = 0xAA
	floors := map[string]uint64{assetKey(asset): 100}
	c := NewAdmissionController(floors)
	a := &stubAdapter{balance: 550}

	if err := c.Admit(context.Background(), a, wire.Address{}, asset, 500); err != ErrInsufficientLiquidity {
		t.Errorf("Admit() = %v, want ErrInsufficientLiquidity (500+100 > 550)", err)
	}

	a.balance = 601
	if err := c.Admit(context.Background(), a, wire.Address{}, asset, 500); err != nil {
		t.Errorf("Admit() = %v, want nil (500+100 <= 601)", err)
	}
}
