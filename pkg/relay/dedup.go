// Package relay implements the GMP relay: per-source-chain pollers that
// read outbox entries, and per-destination-chain deliverers that drain
// queued messages with dedup and exponential backoff (§4.6).
package relay

import (
	"container/list"
	"sync"
)

// dedupLRU is a bounded, in-memory recently-delivered index keyed by
// wire.DedupKey (§4.6: "an in-memory recently-delivered LRU"). Grounded on
// the teacher's cache-with-capacity pattern used throughout pkg/execution,
// generalized to an LRU since the relay must bound memory under sustained
// throughput rather than just TTL-expire entries.
type dedupLRU struct {
	mu       sync.Mutex
	capacity int
	entries  map[[33]byte]*list.Element
	order    *list.List
}

func newDedupLRU(capacity int) *dedupLRU {
	return &dedupLRU{
		capacity: capacity,
		entries:  make(map[[33]byte]*list.Element),
		order:    list.New(),
	}
}

// SeenRecently reports whether key has already been delivered, and if not,
// marks it as delivered.
func (d *dedupLRU) SeenRecently(key [33]byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.entries[key]; ok {
		d.order.MoveToFront(el)
		return true
	}

	el := d.order.PushFront(key)
	d.entries[key] = el

	if d.order.Len() > d.capacity {
		oldest := d.order.Back()
		if oldest != nil {
			d.order.Remove(oldest)
			delete(d.entries, oldest.Value.([33]byte))
		}
	}
	return false
}
