package solver

import (
	"sync"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/wire"
)

// accountKey identifies a solver's submission account on a single chain.
type accountKey struct {
	chain   chain.ID
	account wire.Address
}

// AccountLocks serializes all send operations for a single (chain, account)
// pair so the solver never races itself into a nonce collision (§4.7:
// "serialize all send operations for the same solver account behind a
// per-account lock"). Grounded on the teacher's per-signer mutex in
// pkg/execution/nonce_tracker.go, generalized from a single Accumulate
// signer URL to an arbitrary (chain, account) key.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[accountKey]*sync.Mutex
}

// NewAccountLocks returns an empty lock table.
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[accountKey]*sync.Mutex)}
}

// Lock acquires the exclusive lock for (chainID, account), creating it on
// first use. Callers must call the returned unlock function exactly once.
func (a *AccountLocks) Lock(chainID chain.ID, account wire.Address) (unlock func()) {
	key := accountKey{chain: chainID, account: account}

	a.mu.Lock()
	l, ok := a.locks[key]
	if !ok {
		l = &sync.Mutex{}
		a.locks[key] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}
