package solver

import (
	"context"
	"encoding/hex"
	"log"
	"os"
	"time"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/eventcache"
	"github.com/intentbridge/settlement/pkg/metrics"
	"github.com/intentbridge/settlement/pkg/registry"
	"github.com/intentbridge/settlement/pkg/wire"
)

// Service runs the solver's per-iteration state machine (§4.7): poll
// pending drafts, admit, sign, then fulfill matching on-chain events,
// tracking which signed drafts are awaiting settlement.
type Service struct {
	coordinator *CoordinatorClient
	registry    *registry.Registry
	cache       *eventcache.Cache
	admission   *AdmissionController
	signer      *Signer
	locks       *AccountLocks
	metrics     *metrics.Registry
	logger      *log.Logger

	pollInterval time.Duration

	signedDrafts map[string]signedDraft // draft_id -> payload, awaiting fulfillment
}

type signedDraft struct {
	payload DraftPayload
}

// NewService wires a solver Service. logger defaults to a bracketed stdout
// logger per the teacher's convention.
func NewService(coordinator *CoordinatorClient, reg *registry.Registry, cache *eventcache.Cache, admission *AdmissionController, signer *Signer, pollInterval time.Duration, m *metrics.Registry, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stdout, "[Solver] ", log.LstdFlags)
	}
	return &Service{
		coordinator:  coordinator,
		registry:     reg,
		cache:        cache,
		admission:    admission,
		signer:       signer,
		locks:        NewAccountLocks(),
		metrics:      m,
		logger:       logger,
		pollInterval: pollInterval,
		signedDrafts: make(map[string]signedDraft),
	}
}

// Run executes the solver's cooperative loop until ctx is canceled (§4.7,
// §5: "one task group for the solver").
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.iterate(ctx)
		}
	}
}

func (s *Service) iterate(ctx context.Context) {
	s.pollAndAdmit(ctx)
	s.matchAndFulfill(ctx)
}

// pollAndAdmit implements §4.7 step 1: poll pending drafts, run admission
// control, sign and submit accepted ones.
func (s *Service) pollAndAdmit(ctx context.Context) {
	drafts, err := s.coordinator.ListPendingDrafts()
	if err != nil {
		s.logger.Printf("poll pending drafts: %v", err)
		return
	}

	for _, d := range drafts {
		if d.ExpiryTime > 0 && time.Now().Unix() >= d.ExpiryTime {
			continue // §4.7 Cancellation: expired before admission completes
		}

		payload, err := ParseDraftPayload(d.DraftData)
		if err != nil {
			s.logger.Printf("draft %s: %v", d.DraftID, err)
			continue
		}

		asset, err := payload.Asset()
		if err != nil {
			s.logger.Printf("draft %s: %v", d.DraftID, err)
			continue
		}

		payingAdapter, err := s.registry.Get(payload.PayingChain)
		if err != nil {
			s.logger.Printf("draft %s: paying chain %d not registered", d.DraftID, payload.PayingChain)
			continue
		}

		if err := s.admission.Admit(ctx, payingAdapter, s.signer.HubAddr(), asset, payload.Amount); err != nil {
			if s.metrics != nil {
				s.metrics.AdmissionRejects.WithLabelValues(payload.AssetHex).Inc()
			}
			continue
		}

		unlock := s.locks.Lock(payload.PayingChain, s.signer.HubAddr())
		sigHex, pubHex, err := s.signer.Sign(d.DraftData)
		if err != nil {
			unlock()
			s.logger.Printf("draft %s: sign: %v", d.DraftID, err)
			continue
		}

		outcome, err := s.coordinator.SubmitSignature(d.DraftID, hexAddr(s.signer.HubAddr()), sigHex, pubHex)
		unlock()
		if err != nil {
			s.logger.Printf("draft %s: submit signature: %v", d.DraftID, err)
			continue
		}

		switch outcome {
		case SignatureAccepted:
			s.signedDrafts[d.DraftID] = signedDraft{payload: payload}
		case SignatureConflict, SignatureRejected, SignatureNotFound:
			// §4.7: "on Conflict or Rejected, abandon" — no retry.
		}
	}
}

// matchAndFulfill implements §4.7 steps 2-3: match signed drafts to
// observed escrow/intent events and execute the corresponding fulfillment
// call.
func (s *Service) matchAndFulfill(ctx context.Context) {
	if len(s.signedDrafts) == 0 {
		return
	}

	snap := s.cache.Snapshot()

	for draftID, sd := range s.signedDrafts {
		intentID, err := sd.payload.IntentID()
		if err != nil {
			s.logger.Printf("draft %s: %v", draftID, err)
			delete(s.signedDrafts, draftID)
			continue
		}

		for _, escrow := range snap.Escrows {
			if escrow.IntentID != intentID {
				continue
			}
			// Inflow: escrow observed on a connected chain, fulfillment
			// executes on the hub (§4.7.2.a).
			if err := s.fulfillInflow(ctx, sd.payload, escrow); err != nil {
				s.logger.Printf("draft %s: fulfill inflow: %v", draftID, err)
				continue
			}
			if s.metrics != nil {
				s.metrics.DraftsFulfilled.Inc()
			}
			delete(s.signedDrafts, draftID)
		}

		for _, intent := range snap.Intents {
			if intent.IntentID != intentID || intent.Flow != chain.Outflow {
				continue
			}
			// Outflow: intent observed on the hub, fulfillment executes on
			// the connected chain (§4.7.2.b).
			if err := s.fulfillOutflow(ctx, sd.payload, intent); err != nil {
				s.logger.Printf("draft %s: fulfill outflow: %v", draftID, err)
				continue
			}
			if s.metrics != nil {
				s.metrics.DraftsFulfilled.Inc()
			}
			delete(s.signedDrafts, draftID)
		}
	}
}

// fulfillInflow calls the hub intent contract's fulfill entry with the
// required amount (§4.7.2.a). This is a direct settlement call, distinct
// from SubmitDeliver's GMP message relay.
func (s *Service) fulfillInflow(ctx context.Context, payload DraftPayload, escrow chain.EscrowEvent) error {
	hub, err := s.registry.Hub()
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(hub.Chain(), s.signer.HubAddr())
	defer unlock()

	return hub.SubmitFulfillment(ctx, escrow.IntentID, s.signer.HubAddr(), escrow.OfferedAmount)
}

// fulfillOutflow calls the connected chain's outflow-validator
// fulfill_intent entry (§4.7.2.b). No token-approval call is made before
// it: SubmitFulfillment sends only the fulfill call, so any allowance or
// delegate the contract needs to pull tokens must already be in place.
func (s *Service) fulfillOutflow(ctx context.Context, payload DraftPayload, intent chain.IntentEvent) error {
	dst, err := s.registry.Get(intent.DesiredChain)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(dst.Chain(), s.signer.HubAddr())
	defer unlock()

	return dst.SubmitFulfillment(ctx, intent.IntentID, s.signer.HubAddr(), intent.DesiredAmount)
}

func hexAddr(a wire.Address) string {
	return hex.EncodeToString(a[:])
}
