package solver

import (
	"sync"
	"testing"
	"time"

	"github.com/intentbridge/settlement/pkg/wire"
)

func TestAccountLocksSerializesSameAccount(t *testing.T) {
	locks := NewAccountLocks()
	var account wire.Address
	account[0] = 1

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := locks.Lock(1, account)
			defer unlock()

			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			time.Sleep(time.Millisecond)
		}(i)
	}
	wg.Wait()

	if len(order) != 10 {
		t.Fatalf("len(order) = %d, want 10", len(order))
	}
}

func TestAccountLocksIndependentAccountsDoNotBlock(t *testing.T) {
	locks := NewAccountLocks()
	var a1, a2 wire.Address
	a1[0], a2[0] = 1, 2

	unlock1 := locks.Lock(1, a1)
	defer unlock1()

	done := make(chan struct{})
	go func() {
		unlock2 := locks.Lock(1, a2)
		defer unlock2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("independent account lock was blocked")
	}
}
