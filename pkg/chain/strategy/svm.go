package strategy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/wire"
)

// SVMConfig configures an SVM (Solana) chain adapter. SVM surfaces its
// outbox and escrow state through program-derived accounts (PDAs) rather
// than a table or log stream (§4.2); observation is via structured program
// logs.
type SVMConfig struct {
	ChainID            chain.ID
	NetworkName        string
	RPCURL             string
	EscrowProgramID    string
	GMPEndpointAddr    string
	SolverRegistryAddr string
	OperatorPubkey     string
	OperatorKeypairB64 string // base64-encoded 64-byte ed25519 keypair
	CallTimeout        time.Duration
	HTTPClient         *http.Client
}

func (c *SVMConfig) withDefaults() *SVMConfig {
	cp := *c
	if cp.CallTimeout == 0 {
		cp.CallTimeout = 10 * time.Second
	}
	if cp.HTTPClient == nil {
		cp.HTTPClient = &http.Client{Timeout: cp.CallTimeout}
	}
	return &cp
}

// SVMAdapter implements chain.Adapter over a Solana JSON-RPC endpoint.
// Like MVMAdapter, this fills in what the teacher left as a pure stub
// (pkg/chain/strategy/solana_strategy.go) with a minimal, dependency-free
// JSON-RPC client (see DESIGN.md for why no Solana SDK is wired).
type SVMAdapter struct {
	mu      sync.Mutex
	config  *SVMConfig
	limiter callLimiter
}

// NewSVMAdapter validates cfg and returns a ready adapter.
func NewSVMAdapter(cfg *SVMConfig) (*SVMAdapter, error) {
	if cfg == nil || cfg.RPCURL == "" {
		return nil, fmt.Errorf("svm: RPC endpoint is required")
	}
	return &SVMAdapter{config: cfg.withDefaults(), limiter: newCallLimiter(defaultCallLimiterSize)}, nil
}

func (a *SVMAdapter) Platform() chain.Type { return chain.Svm }
func (a *SVMAdapter) Chain() chain.ID      { return a.config.ChainID }

// call issues a single JSON-RPC request, bounded by a.limiter so at most
// defaultCallLimiterSize requests are ever in flight on this adapter at once
// (SPEC_FULL.md §C).
func (a *SVMAdapter) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if err := a.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("svm: acquire call slot: %w", err)
	}
	defer a.limiter.Release()

	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("svm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.RPCURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("svm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.config.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("svm: rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("svm: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("svm: %s: %s", method, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// FinalizedHeight returns the current finalized slot (§4.2: "32 slots" is
// the confirmation depth baked into the node's own "finalized" commitment
// level, queried directly rather than computed client-side).
func (a *SVMAdapter) FinalizedHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	var slot uint64
	params := []interface{}{map[string]string{"commitment": "finalized"}}
	if err := a.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

type svmOutboxAccount struct {
	Slot       uint64 `json:"slot"`
	LogIndex   uint64 `json:"log_index"`
	Nonce      uint64 `json:"nonce"`
	SrcAddr    string `json:"src_addr"`
	DstAddr    string `json:"dst_addr"`
	DstChain   uint32 `json:"dst_chain"`
	PayloadB64 string `json:"payload_base64"`
}

// FetchOutbox scans the escrow program's outbox PDAs for entries whose
// slot falls in [from, to], emitted via structured program logs (§4.2).
func (a *SVMAdapter) FetchOutbox(ctx context.Context, from, to uint64) ([]chain.OutboxEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	var rows []svmOutboxAccount
	params := []interface{}{a.config.EscrowProgramID, from, to}
	if err := a.call(ctx, "outbox_program_accounts", params, &rows); err != nil {
		return nil, fmt.Errorf("svm: outbox_program_accounts: %w", err)
	}

	entries := make([]chain.OutboxEntry, 0, len(rows))
	for _, r := range rows {
		entry, err := decodeSVMOutboxRow(r)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	sortOutboxEntries(entries)
	return entries, nil
}

func decodeSVMOutboxRow(r svmOutboxAccount) (chain.OutboxEntry, error) {
	payload, err := base64.StdEncoding.DecodeString(r.PayloadB64)
	if err != nil {
		return chain.OutboxEntry{}, fmt.Errorf("svm: decode payload: %w", err)
	}
	srcAddr, err := decodeBase64Address(r.SrcAddr)
	if err != nil {
		return chain.OutboxEntry{}, err
	}
	dstAddr, err := decodeBase64Address(r.DstAddr)
	if err != nil {
		return chain.OutboxEntry{}, err
	}
	return chain.OutboxEntry{
		Pos:     chain.Position{BlockHeight: r.Slot, LogIndex: r.LogIndex},
		Nonce:   r.Nonce,
		SrcAddr: srcAddr,
		DstAddr: dstAddr,
		Dst:     chain.ID(r.DstChain),
		Payload: payload,
	}, nil
}

func decodeBase64Address(s string) (wire.Address, error) {
	var a wire.Address
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return a, fmt.Errorf("svm: invalid address %q", s)
	}
	copy(a[:], raw)
	return a, nil
}

// ReadOutboxEntry derives the outbox PDA for nonce and reads it directly.
func (a *SVMAdapter) ReadOutboxEntry(ctx context.Context, nonce uint64) (chain.OutboxEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	var row *svmOutboxAccount
	params := []interface{}{a.config.EscrowProgramID, nonce}
	if err := a.call(ctx, "outbox_pda_get", params, &row); err != nil {
		return chain.OutboxEntry{}, fmt.Errorf("svm: outbox_pda_get: %w", err)
	}
	if row == nil {
		return chain.OutboxEntry{}, chain.ErrOutboxEntryNotFound
	}
	return decodeSVMOutboxRow(*row)
}

// SubmitDeliver submits a deliver_message instruction to the GMP endpoint
// program, signed by the configured operator keypair.
func (a *SVMAdapter) SubmitDeliver(ctx context.Context, payload []byte, srcChain chain.ID, srcAddr wire.Address) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	a.mu.Lock()
	defer a.mu.Unlock()

	params := []interface{}{
		a.config.GMPEndpointAddr,
		a.config.OperatorPubkey,
		a.config.OperatorKeypairB64,
		uint32(srcChain),
		base64.StdEncoding.EncodeToString(srcAddr[:]),
		base64.StdEncoding.EncodeToString(payload),
	}
	var result struct {
		AlreadyDelivered bool `json:"already_delivered"`
	}
	if err := a.call(ctx, "submit_deliver_instruction", params, &result); err != nil {
		return fmt.Errorf("svm: submit deliver_message: %w", err)
	}
	if result.AlreadyDelivered {
		return chain.ErrAlreadyDelivered
	}
	return nil
}

// SubmitFulfillment submits a fulfill_instruction to the escrow program,
// settling the intent directly rather than relaying a GMP message (distinct
// from SubmitDeliver, which only reaches the GMP endpoint's
// deliver_message entry).
func (a *SVMAdapter) SubmitFulfillment(ctx context.Context, intentID wire.IntentID, solver wire.Address, amount uint64) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	a.mu.Lock()
	defer a.mu.Unlock()

	params := []interface{}{
		a.config.EscrowProgramID,
		a.config.OperatorPubkey,
		a.config.OperatorKeypairB64,
		base64.StdEncoding.EncodeToString(intentID[:]),
		base64.StdEncoding.EncodeToString(solver[:]),
		amount,
	}
	var result struct {
		AlreadyFulfilled bool `json:"already_fulfilled"`
	}
	if err := a.call(ctx, "fulfill_instruction", params, &result); err != nil {
		return fmt.Errorf("svm: submit fulfill_instruction: %w", err)
	}
	if result.AlreadyFulfilled {
		return chain.ErrAlreadyDelivered
	}
	return nil
}

type svmEscrowAccount struct {
	Slot, LogIndex               uint64
	EscrowID, IntentID           string
	Requester, ReservedSolver    string
	OfferedAsset, DesiredAsset   string
	OfferedAmount, DesiredAmount uint64
	Expiry                       uint64
	TimestampUnix                int64
}

// FetchEventsForAddresses scans the escrow program's PDAs belonging to the
// given addresses within [from, to].
func (a *SVMAdapter) FetchEventsForAddresses(ctx context.Context, addrs []wire.Address, from, to uint64) (chain.ChainEvents, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	keys := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		keys = append(keys, base64.StdEncoding.EncodeToString(addr[:]))
	}

	var rows []svmEscrowAccount
	params := []interface{}{a.config.EscrowProgramID, keys, from, to}
	if err := a.call(ctx, "escrow_program_accounts", params, &rows); err != nil {
		return chain.ChainEvents{}, fmt.Errorf("svm: escrow_program_accounts: %w", err)
	}

	var events chain.ChainEvents
	for _, r := range rows {
		ev, err := decodeSVMEscrowRow(r, a.config.ChainID)
		if err == nil {
			events.Escrows = append(events.Escrows, ev)
		}
	}
	return events, nil
}

func decodeSVMEscrowRow(r svmEscrowAccount, chainID chain.ID) (chain.EscrowEvent, error) {
	var escrowID, intentID [32]byte
	eb, err1 := base64.StdEncoding.DecodeString(r.EscrowID)
	ib, err2 := base64.StdEncoding.DecodeString(r.IntentID)
	if err1 != nil || err2 != nil || len(eb) != 32 || len(ib) != 32 {
		return chain.EscrowEvent{}, fmt.Errorf("svm: bad escrow/intent id")
	}
	copy(escrowID[:], eb)
	copy(intentID[:], ib)

	requester, err := decodeBase64Address(r.Requester)
	if err != nil {
		return chain.EscrowEvent{}, err
	}

	ev := chain.EscrowEvent{
		Pos:           chain.Position{BlockHeight: r.Slot, LogIndex: r.LogIndex},
		EscrowID:      escrowID,
		IntentID:      intentID,
		Chain:         chainID,
		ChainType:     chain.Svm,
		Requester:     requester,
		OfferedAmount: r.OfferedAmount,
		DesiredAmount: r.DesiredAmount,
		Expiry:        r.Expiry,
		Timestamp:     time.Unix(r.TimestampUnix, 0).UTC(),
	}
	if asset, err := decodeBase64Address(r.OfferedAsset); err == nil {
		ev.OfferedAsset = asset
	}
	if asset, err := decodeBase64Address(r.DesiredAsset); err == nil {
		ev.DesiredAsset = asset
	}
	return ev, nil
}

// LookupSolverKey reads a solver's registered ed25519 public key from the
// solver registry program's PDA.
func (a *SVMAdapter) LookupSolverKey(ctx context.Context, solver wire.Address) (chain.SolverKey, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	var result struct {
		PublicKeyB64 string `json:"public_key_base64"`
		Active       bool   `json:"active"`
	}
	params := []interface{}{a.config.SolverRegistryAddr, base64.StdEncoding.EncodeToString(solver[:])}
	if err := a.call(ctx, "solver_registry_lookup", params, &result); err != nil {
		return chain.SolverKey{}, fmt.Errorf("svm: solver_registry_lookup: %w", err)
	}
	pub, err := base64.StdEncoding.DecodeString(result.PublicKeyB64)
	if err != nil {
		return chain.SolverKey{}, fmt.Errorf("svm: decode solver public key: %w", err)
	}
	return chain.SolverKey{PublicKey: pub, Active: result.Active}, nil
}

// Balance reads account's SPL token (or native lamport, when asset is the
// zero address) balance via the node's token-account RPC (§4.7.1a).
func (a *SVMAdapter) Balance(ctx context.Context, account wire.Address, asset wire.Address) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	if asset.IsZero() {
		var result struct {
			Lamports uint64 `json:"lamports"`
		}
		params := []interface{}{base64.StdEncoding.EncodeToString(account[:])}
		if err := a.call(ctx, "getBalance", params, &result); err != nil {
			return 0, fmt.Errorf("svm: getBalance: %w", err)
		}
		return result.Lamports, nil
	}

	var result struct {
		Amount uint64 `json:"amount"`
	}
	params := []interface{}{
		base64.StdEncoding.EncodeToString(account[:]),
		base64.StdEncoding.EncodeToString(asset[:]),
	}
	if err := a.call(ctx, "token_account_balance", params, &result); err != nil {
		return 0, fmt.Errorf("svm: token_account_balance: %w", err)
	}
	return result.Amount, nil
}
