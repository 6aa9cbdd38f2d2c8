package coordinator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/intentbridge/settlement/pkg/draft"
	"github.com/intentbridge/settlement/pkg/eventcache"
)

type allowAllRegistry struct{}

func (allowAllRegistry) IsRegisteredSolver(string) (bool, error) { return true, nil }

func newTestServer() *Server {
	return New(eventcache.New(), draft.New(allowAllRegistry{}), nil, nil)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var env envelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !env.Success {
		t.Errorf("success = false, want true")
	}
}

func TestSubmitDraftAndFetch(t *testing.T) {
	s := newTestServer()

	body, _ := json.Marshal(map[string]interface{}{
		"requester_addr": "0xabc",
		"draft_data":     map[string]int{"amount": 10},
		"expiry_time":    9999999999,
	})
	req := httptest.NewRequest(http.MethodPost, "/draftintent", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("submit status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}

	var env envelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data := env.Data.(map[string]interface{})
	draftID := data["draft_id"].(string)
	if data["status"] != "pending" {
		t.Errorf("status = %v, want pending", data["status"])
	}

	getReq := httptest.NewRequest(http.MethodGet, "/draftintent/"+draftID, nil)
	getRR := httptest.NewRecorder()
	s.Mux().ServeHTTP(getRR, getReq)
	if getRR.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getRR.Code)
	}
}

func TestSubmitDraftMissingFields(t *testing.T) {
	s := newTestServer()

	body, _ := json.Marshal(map[string]interface{}{"requester_addr": ""})
	req := httptest.NewRequest(http.MethodPost, "/draftintent", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestDraftNotFound(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/draftintent/00000000-0000-0000-0000-000000000000", nil)
	rr := httptest.NewRecorder()
	s.Mux().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestSignatureConflictOnSecondSubmission(t *testing.T) {
	s := newTestServer()

	body, _ := json.Marshal(map[string]interface{}{
		"requester_addr": "0xabc",
		"draft_data":     map[string]int{"amount": 10},
		"expiry_time":    9999999999,
	})
	postReq := httptest.NewRequest(http.MethodPost, "/draftintent", bytes.NewReader(body))
	postRR := httptest.NewRecorder()
	s.Mux().ServeHTTP(postRR, postReq)

	var env envelope
	json.NewDecoder(postRR.Body).Decode(&env)
	draftID := env.Data.(map[string]interface{})["draft_id"].(string)

	sigBody, _ := json.Marshal(map[string]string{
		"solver_hub_addr": "solver-1",
		"signature":       repeatHex(128),
		"public_key":      repeatHex(64),
	})

	firstReq := httptest.NewRequest(http.MethodPost, "/draftintent/"+draftID+"/signature", bytes.NewReader(sigBody))
	firstRR := httptest.NewRecorder()
	s.Mux().ServeHTTP(firstRR, firstReq)
	if firstRR.Code != http.StatusOK {
		t.Fatalf("first signature status = %d, want 200, body=%s", firstRR.Code, firstRR.Body.String())
	}

	secondReq := httptest.NewRequest(http.MethodPost, "/draftintent/"+draftID+"/signature", bytes.NewReader(sigBody))
	secondRR := httptest.NewRecorder()
	s.Mux().ServeHTTP(secondRR, secondReq)
	if secondRR.Code != http.StatusConflict {
		t.Errorf("second signature status = %d, want 409", secondRR.Code)
	}
}

func repeatHex(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
