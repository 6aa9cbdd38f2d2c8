package solver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CoordinatorClient is the solver's HTTP client for the coordinator API
// (§6.2). Grounded on the teacher's http.Client-with-timeout construction
// pattern (pkg/attestation/service.go).
type CoordinatorClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoordinatorClient builds a client with a bounded per-request timeout.
func NewCoordinatorClient(baseURL string, timeout time.Duration) *CoordinatorClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &CoordinatorClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// PendingDraft mirrors the coordinator's /draftintents/pending entries.
type PendingDraft struct {
	DraftID          string          `json:"draft_id"`
	Status           string          `json:"status"`
	RequesterAddress string          `json:"requester_address"`
	Timestamp        int64           `json:"timestamp"`
	ExpiryTime       int64           `json:"expiry_time"`
	DraftData        json.RawMessage `json:"draft_data,omitempty"`
}

// ListPendingDrafts calls GET /draftintents/pending.
func (c *CoordinatorClient) ListPendingDrafts() ([]PendingDraft, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/draftintents/pending")
	if err != nil {
		return nil, fmt.Errorf("solver: list pending drafts: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("solver: decode pending drafts response: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("solver: list pending drafts: %s", env.Message)
	}

	var drafts []PendingDraft
	if err := json.Unmarshal(env.Data, &drafts); err != nil {
		return nil, fmt.Errorf("solver: unmarshal pending drafts: %w", err)
	}
	return drafts, nil
}

// submitSignatureRequest mirrors the §6.2 POST /draftintent/:id/signature
// body.
type submitSignatureRequest struct {
	SolverHubAddr string `json:"solver_hub_addr"`
	Signature     string `json:"signature"`
	PublicKey     string `json:"public_key"`
}

// SignatureOutcome classifies the coordinator's response to a signature
// submission so callers can apply §7's error-handling policy without
// inspecting HTTP status codes directly.
type SignatureOutcome int

const (
	SignatureAccepted SignatureOutcome = iota
	SignatureConflict
	SignatureRejected
	SignatureNotFound
)

// SubmitSignature calls POST /draftintent/:id/signature.
func (c *CoordinatorClient) SubmitSignature(draftID, solverHubAddr, signatureHex, publicKeyHex string) (SignatureOutcome, error) {
	body, _ := json.Marshal(submitSignatureRequest{
		SolverHubAddr: solverHubAddr,
		Signature:     signatureHex,
		PublicKey:     publicKeyHex,
	})

	resp, err := c.httpClient.Post(c.baseURL+"/draftintent/"+draftID+"/signature", "application/json", bytes.NewReader(body))
	if err != nil {
		return SignatureRejected, fmt.Errorf("solver: submit signature: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return SignatureAccepted, nil
	case http.StatusConflict:
		return SignatureConflict, nil
	case http.StatusNotFound:
		return SignatureNotFound, nil
	default:
		return SignatureRejected, nil
	}
}
