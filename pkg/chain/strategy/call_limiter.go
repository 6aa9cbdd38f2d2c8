package strategy

import "context"

// defaultCallLimiterSize bounds the number of in-flight RPC calls an
// adapter will issue concurrently (SPEC_FULL.md §C: "per-chain RPC
// connection pooling with bounded concurrency"), grounded in the teacher's
// NonceTracker guarding chain I/O with a maxPending cap
// (pkg/execution/nonce_tracker.go).
const defaultCallLimiterSize = 8

// callLimiter is a channel-backed counting semaphore.
type callLimiter chan struct{}

func newCallLimiter(n int) callLimiter {
	if n <= 0 {
		n = defaultCallLimiterSize
	}
	return make(callLimiter, n)
}

// Acquire blocks until a slot is free or ctx is canceled.
func (l callLimiter) Acquire(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot acquired by Acquire.
func (l callLimiter) Release() {
	<-l
}
