package draft

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeRegistry struct {
	registered map[string]bool
}

func (f *fakeRegistry) IsRegisteredSolver(addr string) (bool, error) {
	return f.registered[addr], nil
}

func newTestStore(registered ...string) *Store {
	reg := &fakeRegistry{registered: make(map[string]bool)}
	for _, a := range registered {
		reg.registered[a] = true
	}
	return New(reg)
}

func validSig() string {
	return strings.Repeat("0", 128)
}

func TestSubmitDraftThenGet(t *testing.T) {
	s := newTestStore()
	id := s.SubmitDraft("requester-1", json.RawMessage(`{"foo":1}`), time.Now().Add(time.Hour).Unix())

	d, err := s.GetDraft(id)
	if err != nil {
		t.Fatalf("GetDraft returned error: %v", err)
	}
	if d.Status != StatusPending {
		t.Errorf("Status = %v, want Pending", d.Status)
	}
}

func TestGetDraftNotFound(t *testing.T) {
	s := newTestStore()
	if _, err := s.GetDraft(uuid.New()); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestFCFSExactlyOneAccepted covers P4: under concurrent SubmitSignature
// calls from distinct solvers, exactly one succeeds and all others observe
// Conflict.
func TestFCFSExactlyOneAccepted(t *testing.T) {
	const n = 50
	solvers := make([]string, n)
	for i := range solvers {
		solvers[i] = uuid.New().String()
	}
	s := newTestStore(solvers...)

	id := s.SubmitDraft("requester-1", json.RawMessage(`{}`), time.Now().Add(time.Hour).Unix())

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.SubmitSignature(id, solvers[i], validSig(), strings.Repeat("aa", 32))
			results[i] = err
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range results {
		if err == nil {
			accepted++
		} else if err != ErrConflict {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if accepted != 1 {
		t.Errorf("accepted = %d, want exactly 1", accepted)
	}

	d, err := s.GetDraft(id)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if d.Status != StatusSigned {
		t.Errorf("Status = %v, want Signed", d.Status)
	}
}

func TestSubmitSignatureRejectsUnregisteredSolver(t *testing.T) {
	s := newTestStore() // no solvers registered
	id := s.SubmitDraft("requester-1", json.RawMessage(`{}`), time.Now().Add(time.Hour).Unix())

	_, err := s.SubmitSignature(id, "unknown-solver", validSig(), "aa")
	if err != ErrRejectedNotRegistered {
		t.Errorf("err = %v, want ErrRejectedNotRegistered", err)
	}
}

func TestSubmitSignatureRejectsBadSignatureLength(t *testing.T) {
	s := newTestStore("solver-1")
	id := s.SubmitDraft("requester-1", json.RawMessage(`{}`), time.Now().Add(time.Hour).Unix())

	_, err := s.SubmitSignature(id, "solver-1", "aabb", "aa")
	if err != ErrRejectedBadSignature {
		t.Errorf("err = %v, want ErrRejectedBadSignature", err)
	}
}

// TestExpiredDraftExcludedFromListPending covers P5: an expired draft never
// appears in ListPending, and any signature submission against it returns
// Expired rather than being silently accepted.
func TestExpiredDraftExcludedFromListPending(t *testing.T) {
	s := newTestStore("solver-1")
	expired := s.now().Add(-time.Second).Unix()
	id := s.SubmitDraft("requester-1", json.RawMessage(`{}`), expired)

	pending := s.ListPending()
	for _, d := range pending {
		if d.DraftID == id {
			t.Fatalf("expired draft present in ListPending")
		}
	}

	_, err := s.SubmitSignature(id, "solver-1", validSig(), "aa")
	if err != ErrExpired {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestSweepExpiredCountsOnlyNewlyExpired(t *testing.T) {
	s := newTestStore()
	s.SubmitDraft("r1", json.RawMessage(`{}`), s.now().Add(-time.Second).Unix())
	s.SubmitDraft("r2", json.RawMessage(`{}`), s.now().Add(time.Hour).Unix())

	if got := s.SweepExpired(); got != 1 {
		t.Errorf("SweepExpired() = %d, want 1", got)
	}
	if got := s.SweepExpired(); got != 0 {
		t.Errorf("second SweepExpired() = %d, want 0 (already swept)", got)
	}
}

func TestPollSignatureDistinguishesPendingFromNotFound(t *testing.T) {
	s := newTestStore()
	id := s.SubmitDraft("r1", json.RawMessage(`{}`), s.now().Add(time.Hour).Unix())

	d, err := s.PollSignature(id)
	if err != nil {
		t.Fatalf("PollSignature: %v", err)
	}
	if d.Status != StatusPending {
		t.Errorf("Status = %v, want Pending", d.Status)
	}

	if _, err := s.PollSignature(uuid.New()); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
