// Package coordinator implements the read-only event monitor, cache, and
// FCFS negotiation router's HTTP surface (§4.1, §6.2). Routing follows the
// teacher's manual net/http.ServeMux pattern (main.go) rather than a web
// framework; handlers follow pkg/server/batch_handlers.go's
// writeJSONError/json.NewEncoder idiom, generalized into the
// {success,message,data} envelope §6.2 requires.
package coordinator

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/intentbridge/settlement/pkg/draft"
	"github.com/intentbridge/settlement/pkg/eventcache"
	"github.com/intentbridge/settlement/pkg/metrics"
)

// envelope is the response shape required by §6.2.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: success, Message: message, Data: data})
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeEnvelope(w, http.StatusOK, true, "ok", data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, false, message, nil)
}

// Server is the coordinator's HTTP surface over a Cache and a Store.
type Server struct {
	cache   *eventcache.Cache
	drafts  *draft.Store
	metrics *metrics.Registry
	logger  *log.Logger
	started time.Time
}

// New builds a Server. logger defaults to stdout with a bracketed prefix,
// matching the teacher's per-component logger convention.
func New(cache *eventcache.Cache, drafts *draft.Store, m *metrics.Registry, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stdout, "[Coordinator] ", log.LstdFlags)
	}
	return &Server{cache: cache, drafts: drafts, metrics: m, logger: logger, started: time.Now()}
}

// Mux builds the routing table described by §6.2.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleHealthDetailed)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/draftintents/pending", s.handlePendingDrafts)
	mux.HandleFunc("/draftintent", s.handleSubmitDraft)
	mux.HandleFunc("/draftintent/", s.handleDraftByID)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

// handleHealthDetailed is the supplemented endpoint from SPEC_FULL.md §C:
// process uptime plus current cache sizes, useful for operators without
// scraping /metrics.
func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	snap := s.cache.Snapshot()
	writeOK(w, map[string]interface{}{
		"status":           "ok",
		"uptime_seconds":   int(time.Since(s.started).Seconds()),
		"intent_events":    len(snap.Intents),
		"escrow_events":    len(snap.Escrows),
		"fulfillment_events": len(snap.Fulfillments),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap := s.cache.Snapshot()
	writeOK(w, map[string]interface{}{
		"intent_events":      snap.Intents,
		"escrow_events":      snap.Escrows,
		"fulfillment_events": snap.Fulfillments,
	})
}

type submitDraftRequest struct {
	RequesterAddr string          `json:"requester_addr"`
	DraftData     json.RawMessage `json:"draft_data"`
	ExpiryTime    int64           `json:"expiry_time"`
}

func (s *Server) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req submitDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.RequesterAddr == "" || len(req.DraftData) == 0 {
		writeError(w, http.StatusBadRequest, "requester_addr and draft_data are required")
		return
	}

	id := s.drafts.SubmitDraft(req.RequesterAddr, req.DraftData, req.ExpiryTime)
	if s.metrics != nil {
		s.metrics.DraftsPending.Inc()
	}
	writeOK(w, map[string]string{"draft_id": id.String(), "status": string(draft.StatusPending)})
}

// handleDraftByID dispatches the three /draftintent/:id* routes (§6.2):
// GET /draftintent/:id, POST /draftintent/:id/signature, and
// GET /draftintent/:id/signature.
func (s *Server) handleDraftByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/draftintent/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "draft id required")
		return
	}

	if idStr, ok := strings.CutSuffix(rest, "/signature"); ok {
		s.handleSignature(w, r, idStr)
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, err := parseDraftID(rest)
	if err != nil {
		writeError(w, http.StatusNotFound, "draft not found")
		return
	}

	d, err := s.drafts.GetDraft(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "draft not found")
		return
	}
	writeOK(w, map[string]interface{}{
		"draft_id":         d.DraftID.String(),
		"status":           d.Status,
		"requester_address": d.RequesterAddr,
		"draft_data":       d.DraftData,
		"timestamp":        d.CreatedAt.Unix(),
		"expiry_time":      d.ExpiryUnix,
	})
}

func (s *Server) handlePendingDrafts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	pending := s.drafts.ListPending()
	out := make([]map[string]interface{}, 0, len(pending))
	for _, d := range pending {
		out = append(out, map[string]interface{}{
			"draft_id":         d.DraftID.String(),
			"status":           d.Status,
			"requester_address": d.RequesterAddr,
			"draft_data":       d.DraftData,
			"timestamp":        d.CreatedAt.Unix(),
			"expiry_time":      d.ExpiryUnix,
		})
	}
	writeOK(w, out)
}

type submitSignatureRequest struct {
	SolverHubAddr string `json:"solver_hub_addr"`
	Signature     string `json:"signature"`
	PublicKey     string `json:"public_key"`
}

func (s *Server) handleSignature(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := parseDraftID(idStr)
	if err != nil {
		writeError(w, http.StatusNotFound, "draft not found")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req submitSignatureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
		if len(req.Signature) != 128 {
			writeError(w, http.StatusBadRequest, "signature must be 128 hex chars")
			return
		}
		if len(req.PublicKey) != 64 {
			writeError(w, http.StatusBadRequest, "public_key must be 64 hex chars")
			return
		}

		d, err := s.drafts.SubmitSignature(id, req.SolverHubAddr, req.Signature, req.PublicKey)
		switch err {
		case nil:
			if s.metrics != nil {
				s.metrics.DraftsPending.Dec()
			}
			writeOK(w, map[string]string{"draft_id": d.DraftID.String(), "status": string(draft.StatusSigned)})
		case draft.ErrNotFound:
			writeError(w, http.StatusNotFound, "draft not found")
		case draft.ErrConflict:
			if s.metrics != nil {
				s.metrics.DraftFCFSConflicts.Inc()
			}
			writeError(w, http.StatusConflict, "Draft already signed by another solver")
		case draft.ErrExpired:
			writeError(w, http.StatusConflict, "draft expired")
		case draft.ErrRejectedNotRegistered:
			writeError(w, http.StatusBadRequest, "solver not registered")
		case draft.ErrRejectedBadSignature:
			writeError(w, http.StatusBadRequest, "signature or public_key malformed")
		default:
			s.logger.Printf("SubmitSignature error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}

	case http.MethodGet:
		d, err := s.drafts.PollSignature(id)
		switch err {
		case nil:
			switch d.Status {
			case draft.StatusSigned:
				writeOK(w, map[string]interface{}{
					"signature":       hexOrEmpty(d.Signature),
					"solver_hub_addr": d.SigningSolver,
					"timestamp":       d.SignedAt.Unix(),
				})
			default:
				writeEnvelope(w, http.StatusAccepted, false, "Draft not yet signed", nil)
			}
		case draft.ErrNotFound:
			writeError(w, http.StatusNotFound, "draft not found")
		default:
			s.logger.Printf("PollSignature error: %v", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// ListenAndServe blocks serving the mux until ctx is canceled, then drains
// within the given timeout (§9, teacher main.go's shutdown pattern).
func (s *Server) ListenAndServe(ctx context.Context, addr string, drainTimeout time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: s.Mux()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
