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

// MVMConfig configures a Move-VM chain adapter. Move chains in this system
// expose an account-oriented JSON-RPC surface (§4.2): intents are
// discovered via intent_registry::get_active_requesters, escrows via the
// per-account transaction stream, and the outbox via an on-chain table
// keyed by nonce.
type MVMConfig struct {
	ChainID            chain.ID
	NetworkName        string
	RPCURL             string
	IntentModuleAddr   string
	EscrowModuleAddr   string
	SolverRegistryAddr string
	OperatorAddr       string
	OperatorKeyHex     string
	CallTimeout        time.Duration
	HTTPClient         *http.Client
}

func (c *MVMConfig) withDefaults() *MVMConfig {
	cp := *c
	if cp.CallTimeout == 0 {
		cp.CallTimeout = 10 * time.Second
	}
	if cp.HTTPClient == nil {
		cp.HTTPClient = &http.Client{Timeout: cp.CallTimeout}
	}
	return &cp
}

// MVMAdapter implements chain.Adapter for Move-VM chains (Aptos/Sui-shaped
// account model). The teacher's own Move strategy
// (pkg/chain/strategy/move_strategy.go) is a pure stub; this adapter fills
// it in with a minimal JSON-RPC client since no Move SDK is present in the
// dependency pack (see DESIGN.md).
type MVMAdapter struct {
	mu      sync.Mutex
	config  *MVMConfig
	limiter callLimiter
}

// NewMVMAdapter validates cfg and returns a ready adapter.
func NewMVMAdapter(cfg *MVMConfig) (*MVMAdapter, error) {
	if cfg == nil || cfg.RPCURL == "" {
		return nil, fmt.Errorf("mvm: RPC endpoint is required")
	}
	return &MVMAdapter{config: cfg.withDefaults(), limiter: newCallLimiter(defaultCallLimiterSize)}, nil
}

func (a *MVMAdapter) Platform() chain.Type { return chain.Mvm }
func (a *MVMAdapter) Chain() chain.ID      { return a.config.ChainID }

// rpcRequest is a minimal JSON-RPC 2.0 envelope.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// call issues a single JSON-RPC request, bounded by a.limiter so at most
// defaultCallLimiterSize requests are ever in flight on this adapter at once
// (SPEC_FULL.md §C).
func (a *MVMAdapter) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	if err := a.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("mvm: acquire call slot: %w", err)
	}
	defer a.limiter.Release()

	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("mvm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.RPCURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mvm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.config.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("mvm: rpc call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("mvm: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("mvm: %s: %s", method, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

// FinalizedHeight queries the node's latest finalized ledger height.
func (a *MVMAdapter) FinalizedHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	var height uint64
	if err := a.call(ctx, "get_finalized_height", nil, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// moveOutboxEntry is the on-chain outbox table row shape for Move chains
// (§4.2: "Move exposes an on-chain outbox table keyed by u64 nonce").
type moveOutboxEntry struct {
	Nonce       uint64 `json:"nonce"`
	Height      uint64 `json:"height"`
	LogIndex    uint64 `json:"log_index"`
	SrcAddr     string `json:"src_addr"`
	DstAddr     string `json:"dst_addr"`
	DstChain    uint32 `json:"dst_chain"`
	PayloadB64  string `json:"payload_base64"`
}

// FetchOutbox scans the outbox table for entries in [from, to].
func (a *MVMAdapter) FetchOutbox(ctx context.Context, from, to uint64) ([]chain.OutboxEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	var rows []moveOutboxEntry
	params := []interface{}{a.config.IntentModuleAddr, from, to}
	if err := a.call(ctx, "outbox_scan", params, &rows); err != nil {
		return nil, fmt.Errorf("mvm: outbox_scan: %w", err)
	}

	entries := make([]chain.OutboxEntry, 0, len(rows))
	for _, r := range rows {
		entry, err := decodeMoveOutboxRow(r, a.config.ChainID)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	sortOutboxEntries(entries)
	return entries, nil
}

func decodeMoveOutboxRow(r moveOutboxEntry, src chain.ID) (chain.OutboxEntry, error) {
	payload, err := base64.StdEncoding.DecodeString(r.PayloadB64)
	if err != nil {
		return chain.OutboxEntry{}, fmt.Errorf("mvm: decode payload: %w", err)
	}
	srcAddr, err := decodeMoveAddress(r.SrcAddr)
	if err != nil {
		return chain.OutboxEntry{}, err
	}
	dstAddr, err := decodeMoveAddress(r.DstAddr)
	if err != nil {
		return chain.OutboxEntry{}, err
	}
	return chain.OutboxEntry{
		Pos:     chain.Position{BlockHeight: r.Height, LogIndex: r.LogIndex},
		Nonce:   r.Nonce,
		SrcAddr: srcAddr,
		DstAddr: dstAddr,
		Dst:     chain.ID(r.DstChain),
		Payload: payload,
	}, nil
}

// decodeMoveAddress parses a 32-byte base64-encoded Move account address;
// Move addresses are native 32 bytes and need no padding at the wire
// boundary (§4.2).
func decodeMoveAddress(hexAddr string) (wire.Address, error) {
	var a wire.Address
	raw, err := base64.StdEncoding.DecodeString(hexAddr)
	if err != nil || len(raw) != 32 {
		return a, fmt.Errorf("mvm: invalid address %q", hexAddr)
	}
	copy(a[:], raw)
	return a, nil
}

// ReadOutboxEntry reads a single outbox row by nonce directly (Move
// exposes the table keyed by nonce, unlike EVM's log-only access).
func (a *MVMAdapter) ReadOutboxEntry(ctx context.Context, nonce uint64) (chain.OutboxEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	var row *moveOutboxEntry
	params := []interface{}{a.config.IntentModuleAddr, nonce}
	if err := a.call(ctx, "outbox_get", params, &row); err != nil {
		return chain.OutboxEntry{}, fmt.Errorf("mvm: outbox_get: %w", err)
	}
	if row == nil {
		return chain.OutboxEntry{}, chain.ErrOutboxEntryNotFound
	}
	return decodeMoveOutboxRow(*row, a.config.ChainID)
}

// SubmitDeliver calls the destination module's deliver_message entry
// function. The Move runtime enforces idempotence on (intent_id,
// msg_type) the same way the EVM contract does (§4.6).
func (a *MVMAdapter) SubmitDeliver(ctx context.Context, payload []byte, srcChain chain.ID, srcAddr wire.Address) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	a.mu.Lock()
	defer a.mu.Unlock()

	params := []interface{}{
		a.config.IntentModuleAddr,
		a.config.OperatorAddr,
		a.config.OperatorKeyHex,
		uint32(srcChain),
		base64.StdEncoding.EncodeToString(srcAddr[:]),
		base64.StdEncoding.EncodeToString(payload),
	}
	var result struct {
		AlreadyDelivered bool `json:"already_delivered"`
	}
	if err := a.call(ctx, "submit_transaction", params, &result); err != nil {
		return fmt.Errorf("mvm: submit deliver_message: %w", err)
	}
	if result.AlreadyDelivered {
		return chain.ErrAlreadyDelivered
	}
	return nil
}

// SubmitFulfillment calls the settlement module's fulfill entry directly:
// IntentModuleAddr on the hub (the intent contract's fulfill), or
// EscrowModuleAddr on a connected chain (the outflow validator's
// fulfill_intent), whichever this adapter's config populates. Distinct from
// SubmitDeliver, which only reaches the deliver_message entry.
func (a *MVMAdapter) SubmitFulfillment(ctx context.Context, intentID wire.IntentID, solver wire.Address, amount uint64) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	a.mu.Lock()
	defer a.mu.Unlock()

	target := a.config.IntentModuleAddr
	if target == "" {
		target = a.config.EscrowModuleAddr
	}

	params := []interface{}{
		target,
		a.config.OperatorAddr,
		a.config.OperatorKeyHex,
		base64.StdEncoding.EncodeToString(intentID[:]),
		base64.StdEncoding.EncodeToString(solver[:]),
		amount,
	}
	var result struct {
		AlreadyFulfilled bool `json:"already_fulfilled"`
	}
	if err := a.call(ctx, "intent_fulfill", params, &result); err != nil {
		return fmt.Errorf("mvm: submit fulfill: %w", err)
	}
	if result.AlreadyFulfilled {
		return chain.ErrAlreadyDelivered
	}
	return nil
}

// FetchEventsForAddresses discovers active requesters via
// intent_registry::get_active_requesters and walks each account's
// transaction stream for OracleLimitOrderEvent / LimitOrderEvent /
// LimitOrderFulfillmentEvent in [from, to] (§4.2).
func (a *MVMAdapter) FetchEventsForAddresses(ctx context.Context, addrs []wire.Address, from, to uint64) (chain.ChainEvents, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	accounts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		accounts = append(accounts, base64.StdEncoding.EncodeToString(addr[:]))
	}
	if len(accounts) == 0 {
		var active []string
		if err := a.call(ctx, "intent_registry_get_active_requesters", []interface{}{a.config.IntentModuleAddr}, &active); err != nil {
			return chain.ChainEvents{}, fmt.Errorf("mvm: get_active_requesters: %w", err)
		}
		accounts = active
	}

	var raw struct {
		Intents      []moveIntentRow      `json:"intents"`
		Escrows      []moveEscrowRow      `json:"escrows"`
		Fulfillments []moveFulfillmentRow `json:"fulfillments"`
	}
	params := []interface{}{accounts, from, to}
	if err := a.call(ctx, "scan_account_events", params, &raw); err != nil {
		return chain.ChainEvents{}, fmt.Errorf("mvm: scan_account_events: %w", err)
	}

	var events chain.ChainEvents
	for _, row := range raw.Intents {
		ev, err := row.toEvent()
		if err == nil {
			events.Intents = append(events.Intents, ev)
		}
	}
	for _, row := range raw.Escrows {
		ev, err := row.toEvent(a.config.ChainID)
		if err == nil {
			events.Escrows = append(events.Escrows, ev)
		}
	}
	for _, row := range raw.Fulfillments {
		ev, err := row.toEvent()
		if err == nil {
			events.Fulfillments = append(events.Fulfillments, ev)
		}
	}
	return events, nil
}

type moveIntentRow struct {
	Height, LogIndex               uint64
	IntentID, Requester             string
	ReservedSolver                  string
	OfferedAsset, DesiredAsset      string
	OfferedAmount, DesiredAmount    uint64
	OfferedChain, DesiredChain      uint32
	ExpiryUnix                      uint64
	Revocable                       bool
	Flow                            string
	TimestampUnix                   int64
}

func (r moveIntentRow) toEvent() (chain.IntentEvent, error) {
	var intentID wire.IntentID
	idBytes, err := base64.StdEncoding.DecodeString(r.IntentID)
	if err != nil || len(idBytes) != 32 {
		return chain.IntentEvent{}, fmt.Errorf("mvm: bad intent id")
	}
	copy(intentID[:], idBytes)

	requester, err := decodeMoveAddress(r.Requester)
	if err != nil {
		return chain.IntentEvent{}, err
	}

	ev := chain.IntentEvent{
		Pos:            chain.Position{BlockHeight: r.Height, LogIndex: r.LogIndex},
		IntentID:       intentID,
		Requester:      requester,
		OfferedAmount:  r.OfferedAmount,
		DesiredAmount:  r.DesiredAmount,
		OfferedChain:   chain.ID(r.OfferedChain),
		DesiredChain:   chain.ID(r.DesiredChain),
		ExpiryUnix:     r.ExpiryUnix,
		Revocable:      r.Revocable,
		Flow:           chain.Flow(r.Flow),
		Timestamp:      time.Unix(r.TimestampUnix, 0).UTC(),
	}
	if asset, err := decodeMoveAddress(r.OfferedAsset); err == nil {
		ev.OfferedAsset = asset
	}
	if asset, err := decodeMoveAddress(r.DesiredAsset); err == nil {
		ev.DesiredAsset = asset
	}
	if r.ReservedSolver != "" {
		if solver, err := decodeMoveAddress(r.ReservedSolver); err == nil {
			ev.ReservedSolver = &solver
		}
	}
	return ev, nil
}

type moveEscrowRow struct {
	Height, LogIndex             uint64
	EscrowID, IntentID           string
	Requester, ReservedSolver    string
	OfferedAsset, DesiredAsset   string
	OfferedAmount, DesiredAmount uint64
	Expiry                       uint64
	TimestampUnix                int64
}

func (r moveEscrowRow) toEvent(chainID chain.ID) (chain.EscrowEvent, error) {
	var escrowID, intentID [32]byte
	eb, err1 := base64.StdEncoding.DecodeString(r.EscrowID)
	ib, err2 := base64.StdEncoding.DecodeString(r.IntentID)
	if err1 != nil || err2 != nil || len(eb) != 32 || len(ib) != 32 {
		return chain.EscrowEvent{}, fmt.Errorf("mvm: bad escrow/intent id")
	}
	copy(escrowID[:], eb)
	copy(intentID[:], ib)

	requester, err := decodeMoveAddress(r.Requester)
	if err != nil {
		return chain.EscrowEvent{}, err
	}

	ev := chain.EscrowEvent{
		Pos:           chain.Position{BlockHeight: r.Height, LogIndex: r.LogIndex},
		EscrowID:      escrowID,
		IntentID:      intentID,
		Chain:         chainID,
		ChainType:     chain.Mvm,
		Requester:     requester,
		OfferedAmount: r.OfferedAmount,
		DesiredAmount: r.DesiredAmount,
		Expiry:        r.Expiry,
		Timestamp:     time.Unix(r.TimestampUnix, 0).UTC(),
	}
	if asset, err := decodeMoveAddress(r.OfferedAsset); err == nil {
		ev.OfferedAsset = asset
	}
	if asset, err := decodeMoveAddress(r.DesiredAsset); err == nil {
		ev.DesiredAsset = asset
	}
	return ev, nil
}

type moveFulfillmentRow struct {
	Height, LogIndex uint64
	IntentID, Solver string
	ProvidedAsset    string
	ProvidedAmount   uint64
	TimestampUnix    int64
}

func (r moveFulfillmentRow) toEvent() (chain.FulfillmentEvent, error) {
	var intentID wire.IntentID
	ib, err := base64.StdEncoding.DecodeString(r.IntentID)
	if err != nil || len(ib) != 32 {
		return chain.FulfillmentEvent{}, fmt.Errorf("mvm: bad intent id")
	}
	copy(intentID[:], ib)

	solver, err := decodeMoveAddress(r.Solver)
	if err != nil {
		return chain.FulfillmentEvent{}, err
	}

	ev := chain.FulfillmentEvent{
		Pos:            chain.Position{BlockHeight: r.Height, LogIndex: r.LogIndex},
		IntentID:       intentID,
		Solver:         solver,
		ProvidedAmount: r.ProvidedAmount,
		Timestamp:      time.Unix(r.TimestampUnix, 0).UTC(),
	}
	if asset, err := decodeMoveAddress(r.ProvidedAsset); err == nil {
		ev.ProvidedAsset = asset
	}
	return ev, nil
}

// LookupSolverKey queries solver_registry::list_all_solver_addresses-backed
// key storage for a single solver's registered public key (§4.2, §4.4).
func (a *MVMAdapter) LookupSolverKey(ctx context.Context, solver wire.Address) (chain.SolverKey, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	var result struct {
		PublicKeyB64 string `json:"public_key_base64"`
		Active       bool   `json:"active"`
	}
	params := []interface{}{a.config.SolverRegistryAddr, base64.StdEncoding.EncodeToString(solver[:])}
	if err := a.call(ctx, "solver_registry_lookup", params, &result); err != nil {
		return chain.SolverKey{}, fmt.Errorf("mvm: solver_registry_lookup: %w", err)
	}
	pub, err := base64.StdEncoding.DecodeString(result.PublicKeyB64)
	if err != nil {
		return chain.SolverKey{}, fmt.Errorf("mvm: decode solver public key: %w", err)
	}
	return chain.SolverKey{PublicKey: pub, Active: result.Active}, nil
}

// Balance reads account's coin/fungible-asset balance via the node's
// account-resource RPC (§4.7.1a).
func (a *MVMAdapter) Balance(ctx context.Context, account wire.Address, asset wire.Address) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	var result struct {
		Balance uint64 `json:"balance"`
	}
	params := []interface{}{
		base64.StdEncoding.EncodeToString(account[:]),
		base64.StdEncoding.EncodeToString(asset[:]),
	}
	if err := a.call(ctx, "account_balance", params, &result); err != nil {
		return 0, fmt.Errorf("mvm: account_balance: %w", err)
	}
	return result.Balance, nil
}
