package relay

import "testing"

func TestDedupLRUSeenRecently(t *testing.T) {
	d := newDedupLRU(2)
	var k1, k2, k3 [33]byte
	k1[0] = 1
	k2[0] = 2
	k3[0] = 3

	if d.SeenRecently(k1) {
		t.Fatalf("k1 should not be seen on first insert")
	}
	if !d.SeenRecently(k1) {
		t.Fatalf("k1 should be seen on second insert")
	}
}

func TestDedupLRUEvictsOldest(t *testing.T) {
	d := newDedupLRU(2)
	var k1, k2, k3 [33]byte
	k1[0], k2[0], k3[0] = 1, 2, 3

	d.SeenRecently(k1)
	d.SeenRecently(k2)
	d.SeenRecently(k3) // evicts k1 (capacity 2)

	if d.SeenRecently(k1) {
		t.Errorf("k1 should have been evicted and treated as unseen")
	}
}
