package draft

import (
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intentbridge/settlement/pkg/wire"
)

// Status is a Draft's position in its lifecycle (§3).
type Status string

const (
	StatusPending Status = "pending"
	StatusSigned  Status = "signed"
	StatusExpired Status = "expired"
)

// Draft mirrors §3's Draft entity.
type Draft struct {
	DraftID        uuid.UUID
	RequesterAddr  string
	DraftData      json.RawMessage
	ExpiryUnix     int64
	CreatedAt      time.Time
	Status         Status
	Signature      []byte // nullable; exactly 64 bytes once set
	SigningSolver  string // nullable
	PublicKey      []byte // nullable
	SignedAt       *time.Time
}

// record wraps a Draft with its own exclusive lock, so that FCFS races are
// resolved by per-draft lock ordering rather than a single store-wide lock
// (§4.4: "Takes an exclusive lock on the draft").
type record struct {
	mu    sync.Mutex
	draft Draft
}

// SolverRegistry is the subset of the hub chain adapter the draft store
// needs to validate a submitting solver (§4.4: "looked up via the hub
// chain adapter").
type SolverRegistry interface {
	IsRegisteredSolver(solverAddr string) (bool, error)
}

// Store is the coordinator's draft store and FCFS negotiation router.
type Store struct {
	mu       sync.RWMutex
	drafts   map[uuid.UUID]*record
	order    []uuid.UUID // insertion order, for deterministic ListPending output
	registry SolverRegistry
	now      func() time.Time
}

// New returns an empty Store. registry is used to validate solvers during
// SubmitSignature.
func New(registry SolverRegistry) *Store {
	return &Store{
		drafts:   make(map[uuid.UUID]*record),
		registry: registry,
		now:      time.Now,
	}
}

// SubmitDraft assigns a fresh UUID and inserts the draft in Pending status
// (§4.4).
func (s *Store) SubmitDraft(requesterAddr string, draftData json.RawMessage, expiryUnix int64) uuid.UUID {
	id := uuid.New()
	r := &record{
		draft: Draft{
			DraftID:       id,
			RequesterAddr: requesterAddr,
			DraftData:     draftData,
			ExpiryUnix:    expiryUnix,
			CreatedAt:     s.now(),
			Status:        StatusPending,
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[id] = r
	s.order = append(s.order, id)
	return id
}

// GetDraft returns a copy of the full draft, including expired ones. Returns
// ErrNotFound if id is unknown (§4.4).
func (s *Store) GetDraft(id uuid.UUID) (Draft, error) {
	r, ok := s.lookup(id)
	if !ok {
		return Draft{}, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s.sweepLocked(r)
	return r.draft, nil
}

func (s *Store) lookup(id uuid.UUID) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.drafts[id]
	return r, ok
}

// sweepLocked transitions r to Expired if its expiry has elapsed. Caller
// must hold r.mu.
func (s *Store) sweepLocked(r *record) {
	if r.draft.Status == StatusPending && r.draft.ExpiryUnix <= s.now().Unix() {
		r.draft.Status = StatusExpired
	}
}

// ListPending returns all non-expired, non-signed drafts in submission
// order (§4.4).
func (s *Store) ListPending() []Draft {
	s.mu.RLock()
	ids := append([]uuid.UUID(nil), s.order...)
	s.mu.RUnlock()

	out := make([]Draft, 0, len(ids))
	for _, id := range ids {
		r, ok := s.lookup(id)
		if !ok {
			continue
		}
		r.mu.Lock()
		s.sweepLocked(r)
		if r.draft.Status == StatusPending {
			out = append(out, r.draft)
		}
		r.mu.Unlock()
	}
	return out
}

// SubmitSignature performs the FCFS signature acquisition described in
// §4.4. The winning solver is the first to acquire the per-draft lock while
// status is still Pending; losers observe Conflict with status already
// Signed (§5, P4).
func (s *Store) SubmitSignature(id uuid.UUID, solverHubAddr string, signatureHex string, publicKeyHex string) (Draft, error) {
	r, ok := s.lookup(id)
	if !ok {
		return Draft{}, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s.sweepLocked(r)
	if r.draft.Status != StatusPending {
		if r.draft.Status == StatusExpired {
			return r.draft, ErrExpired
		}
		return r.draft, ErrConflict
	}

	registered, err := s.registry.IsRegisteredSolver(solverHubAddr)
	if err != nil || !registered {
		return r.draft, ErrRejectedNotRegistered
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != 64 {
		return r.draft, ErrRejectedBadSignature
	}

	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != 32 {
		return r.draft, ErrRejectedBadSignature
	}

	now := s.now()
	r.draft.Signature = sig
	r.draft.SigningSolver = solverHubAddr
	r.draft.PublicKey = pub
	r.draft.SignedAt = &now
	r.draft.Status = StatusSigned

	return r.draft, nil
}

// PollSignature is a one-shot read matching §4.4's status codes: Signed
// returns the signature payload, Pending is a distinct outcome from
// NotFound so callers can map it to HTTP 202.
func (s *Store) PollSignature(id uuid.UUID) (Draft, error) {
	r, ok := s.lookup(id)
	if !ok {
		return Draft{}, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s.sweepLocked(r)
	return r.draft, nil
}

// SweepExpired transitions every Pending draft whose expiry has elapsed to
// Expired. Intended to be run periodically by a dedicated sweeper task
// (§5); ListPending/GetDraft/PollSignature also sweep lazily on read, so
// this only needs to run often enough to keep ListPending cheap under a
// large backlog of expired drafts.
func (s *Store) SweepExpired() int {
	s.mu.RLock()
	ids := append([]uuid.UUID(nil), s.order...)
	s.mu.RUnlock()

	swept := 0
	for _, id := range ids {
		r, ok := s.lookup(id)
		if !ok {
			continue
		}
		r.mu.Lock()
		before := r.draft.Status
		s.sweepLocked(r)
		if before == StatusPending && r.draft.Status == StatusExpired {
			swept++
		}
		r.mu.Unlock()
	}
	return swept
}

// CanonicalSignBytes returns the bytes a solver must sign for a draft
// (§4.7.1.b: "sign the draft's canonical bytes"). It is simply the raw
// draft_data JSON, matching how the requester originally submitted it so
// both sides agree on the signed payload without a separate canonicalization
// format.
func CanonicalSignBytes(d Draft) []byte {
	return append([]byte(nil), d.DraftData...)
}

// SolverAddrFromWire renders a wire.Address as the lowercase hex string the
// coordinator API exchanges over HTTP (§6.2).
func SolverAddrFromWire(a wire.Address) string {
	return hex.EncodeToString(a[:])
}
