// Package strategy holds the three ChainPlatform-specific implementations
// of chain.Adapter: Mvm (Move VM), Evm, and Svm (§4.2, §9). Implementations
// must be thread-safe; they are shared across pollers, deliverers, and the
// solver's admission/fulfillment paths.
package strategy

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/wire"
)

// messageSentSignature is the canonical event signature the outbox
// endpoint contract emits for an outbound GMP message (§4.2). Its keccak
// hash is the log topic adapters filter on.
const messageSentSignature = "MessageSent(uint64,uint32,address,bytes)"

// escrowInitializedSignature is the event EVM escrow contracts emit on
// escrow creation (§4.2).
const escrowInitializedSignature = "EscrowInitialized(bytes32,bytes32,address,uint256)"

var (
	messageSentTopic       = crypto.Keccak256Hash([]byte(messageSentSignature))
	escrowInitializedTopic = crypto.Keccak256Hash([]byte(escrowInitializedSignature))
)

// deliverMessageSelector is the 4-byte function selector for
// deliver_message(uint32,bytes32,bytes), computed once at init.
var deliverMessageSelector = crypto.Keccak256([]byte("deliver_message(uint32,bytes32,bytes)"))[:4]

// fulfillSelector is the 4-byte function selector for the intent contract's
// fulfill(bytes32,address,uint256) entry, distinct from deliver_message.
var fulfillSelector = crypto.Keccak256([]byte("fulfill(bytes32,address,uint256)"))[:4]

// EVMConfig configures an EVM chain adapter.
type EVMConfig struct {
	ChainID               chain.ID
	NetworkName           string
	RPCURL                string
	EscrowContractAddr    string
	GMPEndpointAddr       string
	SolverRegistryAddr    string
	OperatorPrivateKeyHex string // hex-encoded ECDSA key used to sign deliver_message submissions
	RequiredConfirmations uint64
	CallTimeout           time.Duration // per-RPC-call deadline (default 10s, §5)
}

func (c *EVMConfig) withDefaults() *EVMConfig {
	cp := *c
	if cp.CallTimeout == 0 {
		cp.CallTimeout = 10 * time.Second
	}
	if cp.RequiredConfirmations == 0 {
		cp.RequiredConfirmations = 12
	}
	return &cp
}

// EVMAdapter implements chain.Adapter for EVM-compatible chains.
type EVMAdapter struct {
	mu      sync.RWMutex
	config  *EVMConfig
	client  *ethclient.Client
	limiter callLimiter

	chainIDBig    *big.Int
	operatorKey   *ecdsa.PrivateKey
	operatorAddr  common.Address
	gmpEndpoint   common.Address
	escrowAddr    common.Address
}

// NewEVMAdapter dials the configured RPC endpoint and returns a ready
// adapter. Mirrors the teacher's EVMStrategy constructor: validate, dial,
// parse operator key, resolve chain ID (pkg/chain/strategy/evm_strategy.go).
func NewEVMAdapter(cfg *EVMConfig) (*EVMAdapter, error) {
	if cfg == nil || cfg.RPCURL == "" {
		return nil, fmt.Errorf("evm: RPC endpoint is required")
	}
	cfg = cfg.withDefaults()

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: connect: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout)
	defer cancel()

	chainIDBig, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: get chain id: %w", err)
	}

	a := &EVMAdapter{
		config:     cfg,
		client:     client,
		chainIDBig: chainIDBig,
		limiter:    newCallLimiter(defaultCallLimiterSize),
	}

	if cfg.EscrowContractAddr != "" {
		if !common.IsHexAddress(cfg.EscrowContractAddr) {
			return nil, fmt.Errorf("evm: invalid escrow contract address %q", cfg.EscrowContractAddr)
		}
		a.escrowAddr = common.HexToAddress(cfg.EscrowContractAddr)
	}
	if cfg.GMPEndpointAddr != "" {
		if !common.IsHexAddress(cfg.GMPEndpointAddr) {
			return nil, fmt.Errorf("evm: invalid gmp endpoint address %q", cfg.GMPEndpointAddr)
		}
		a.gmpEndpoint = common.HexToAddress(cfg.GMPEndpointAddr)
	}

	if cfg.OperatorPrivateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorPrivateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("evm: invalid operator key: %w", err)
		}
		a.operatorKey = key
		a.operatorAddr = crypto.PubkeyToAddress(key.PublicKey)
	}

	return a, nil
}

func (a *EVMAdapter) Platform() chain.Type { return chain.Evm }
func (a *EVMAdapter) Chain() chain.ID      { return a.config.ChainID }

// FinalizedHeight returns the current chain head minus the configured
// confirmation depth, since most EVM chains (pre-merge or without a
// finalized-tag RPC) do not expose finality directly (§4.2).
func (a *EVMAdapter) FinalizedHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	if err := a.limiter.Acquire(ctx); err != nil {
		return 0, fmt.Errorf("evm: acquire call slot: %w", err)
	}
	defer a.limiter.Release()

	head, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("evm: block number: %w", err)
	}
	if head < a.config.RequiredConfirmations {
		return 0, nil
	}
	return head - a.config.RequiredConfirmations, nil
}

// FetchOutbox filters MessageSent logs emitted by the GMP endpoint
// contract within [from, to], ordered by (block_height, log_index) (§4.2).
func (a *EVMAdapter) FetchOutbox(ctx context.Context, from, to uint64) ([]chain.OutboxEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	query := gethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{a.gmpEndpoint},
		Topics:    [][]common.Hash{{messageSentTopic}},
	}

	if err := a.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("evm: acquire call slot: %w", err)
	}
	defer a.limiter.Release()

	logs, err := a.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("evm: filter logs: %w", err)
	}

	entries := make([]chain.OutboxEntry, 0, len(logs))
	for _, lg := range logs {
		entry, err := decodeMessageSentLog(lg, a.config.ChainID)
		if err != nil {
			// A log that doesn't decode cleanly is dropped (malformed on
			// the destination side is handled in pkg/wire, not here).
			continue
		}
		entries = append(entries, entry)
	}
	sortOutboxEntries(entries)
	return entries, nil
}

// decodeMessageSentLog translates a raw EVM log into the chain-agnostic
// OutboxEntry shape (§9: translate at the adapter boundary, never unify
// on-chain event models).
func decodeMessageSentLog(lg types.Log, src chain.ID) (chain.OutboxEntry, error) {
	// Expected non-indexed data layout: nonce(uint64) | dstChain(uint32) |
	// dstAddr(address, 32-byte padded) | payload(bytes, ABI-dynamic).
	if len(lg.Data) < 32+32+32 {
		return chain.OutboxEntry{}, fmt.Errorf("evm: MessageSent log too short")
	}
	nonce := new(big.Int).SetBytes(lg.Data[24:32]).Uint64()
	dstChain := chain.ID(new(big.Int).SetBytes(lg.Data[60:64]).Uint64())
	var dstAddr wire.Address
	copy(dstAddr[:], lg.Data[64:96])

	// payload is ABI-encoded bytes: offset at [96:128), length at
	// [offset:offset+32), data after.
	if len(lg.Data) < 128 {
		return chain.OutboxEntry{}, fmt.Errorf("evm: MessageSent log missing payload section")
	}
	payloadOffset := new(big.Int).SetBytes(lg.Data[96:128])
	if !payloadOffset.IsUint64() || payloadOffset.Uint64() > uint64(len(lg.Data)-32) {
		return chain.OutboxEntry{}, fmt.Errorf("evm: MessageSent log payload offset out of range")
	}
	lengthStart := payloadOffset.Uint64()
	payloadLen := new(big.Int).SetBytes(lg.Data[lengthStart : lengthStart+32]).Uint64()
	payloadStart := lengthStart + 32
	if uint64(len(lg.Data))-payloadStart < payloadLen {
		return chain.OutboxEntry{}, fmt.Errorf("evm: MessageSent log payload truncated")
	}
	payload := append([]byte(nil), lg.Data[payloadStart:payloadStart+payloadLen]...)

	return chain.OutboxEntry{
		Pos:     chain.Position{BlockHeight: lg.BlockNumber, LogIndex: uint64(lg.Index)},
		Nonce:   nonce,
		SrcAddr: wire.AddressFromEVM([20]byte(lg.Address)),
		DstAddr: dstAddr,
		Dst:     dstChain,
		Payload: payload,
	}, nil
}

func sortOutboxEntries(entries []chain.OutboxEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0; j-- {
			a, b := entries[j-1].Pos, entries[j].Pos
			if !b.Less(a) {
				break
			}
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

// ReadOutboxEntry re-fetches a single nonce by scanning the current
// finalized window; EVM exposes no direct nonce-indexed getter so this
// walks recent history, matching the on-chain TTL-sweep semantics of
// §4.6 (a restart only re-reads live entries).
func (a *EVMAdapter) ReadOutboxEntry(ctx context.Context, nonce uint64) (chain.OutboxEntry, error) {
	head, err := a.FinalizedHeight(ctx)
	if err != nil {
		return chain.OutboxEntry{}, err
	}
	const lookback = 5000
	from := uint64(0)
	if head > lookback {
		from = head - lookback
	}
	entries, err := a.FetchOutbox(ctx, from, head)
	if err != nil {
		return chain.OutboxEntry{}, err
	}
	for _, e := range entries {
		if e.Nonce == nonce {
			return e, nil
		}
	}
	return chain.OutboxEntry{}, chain.ErrOutboxEntryNotFound
}

// SubmitDeliver signs and submits a deliver_message(uint32,bytes32,bytes)
// transaction carrying srcChain, srcAddr and payload to the GMP endpoint
// contract. The destination contract
// is idempotent on (intent_id, msg_type): an "already delivered" revert is
// reclassified by the relay as success, not here (§4.6, §7).
func (a *EVMAdapter) SubmitDeliver(ctx context.Context, payload []byte, srcChain chain.ID, srcAddr wire.Address) error {
	if a.operatorKey == nil {
		return fmt.Errorf("evm: no operator key configured for submissions")
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	if err := a.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("evm: acquire call slot: %w", err)
	}
	defer a.limiter.Release()

	nonce, err := a.client.PendingNonceAt(ctx, a.operatorAddr)
	if err != nil {
		return fmt.Errorf("evm: pending nonce: %w", err)
	}

	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("evm: suggest gas price: %w", err)
	}

	callData := encodeDeliverMessageCall(payload, srcChain, srcAddr)

	gasLimit, err := a.client.EstimateGas(ctx, gethereum.CallMsg{
		From: a.operatorAddr,
		To:   &a.gmpEndpoint,
		Data: callData,
	})
	if err != nil {
		// Some RPCs reject estimation against a contract that will revert
		// for "already delivered"; fall back to a conservative fixed limit
		// and let the real submission surface the revert classification.
		gasLimit = 300_000
	}

	tx := types.NewTransaction(nonce, a.gmpEndpoint, big.NewInt(0), gasLimit, gasPrice, callData)

	signed, err := types.SignTx(tx, types.NewEIP155Signer(a.chainIDBig), a.operatorKey)
	if err != nil {
		return fmt.Errorf("evm: sign tx: %w", err)
	}

	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return classifySubmitError(err)
	}
	return nil
}

// classifySubmitError maps an on-chain revert string to the relay's
// error taxonomy (§7): "already delivered" reverts are reclassified as
// success by the caller, so they must be distinguishable here.
func classifySubmitError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "already delivered") || strings.Contains(msg, "already fulfilled") {
		return chain.ErrAlreadyDelivered
	}
	return fmt.Errorf("evm: send transaction: %w", err)
}

func encodeDeliverMessageCall(payload []byte, srcChain chain.ID, srcAddr wire.Address) []byte {
	// ABI-encodes deliver_message(uint32 srcChain, bytes32 srcAddr, bytes payload).
	// Static head (3 words) + dynamic tail for payload.
	head := make([]byte, 0, 4+32*4)
	head = append(head, deliverMessageSelector...)

	var srcChainWord [32]byte
	big.NewInt(int64(srcChain)).FillBytes(srcChainWord[:])
	head = append(head, srcChainWord[:]...)
	head = append(head, srcAddr[:]...)

	offset := make([]byte, 32)
	big.NewInt(96).FillBytes(offset)
	head = append(head, offset...)

	length := make([]byte, 32)
	big.NewInt(int64(len(payload))).FillBytes(length)

	tail := append(length, payload...)
	if pad := len(tail) % 32; pad != 0 {
		tail = append(tail, make([]byte, 32-pad)...)
	}

	return append(head, tail...)
}

// SubmitFulfillment signs and submits a fulfill(bytes32,address,uint256)
// transaction directly to the escrow/intent contract (a.escrowAddr),
// settling the intent. This is the on-chain settlement action; it is
// distinct from SubmitDeliver, which only reaches the GMP endpoint's
// deliver_message entry (§4.7.2.a/b).
func (a *EVMAdapter) SubmitFulfillment(ctx context.Context, intentID wire.IntentID, solver wire.Address, amount uint64) error {
	if a.operatorKey == nil {
		return fmt.Errorf("evm: no operator key configured for submissions")
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	if err := a.limiter.Acquire(ctx); err != nil {
		return fmt.Errorf("evm: acquire call slot: %w", err)
	}
	defer a.limiter.Release()

	nonce, err := a.client.PendingNonceAt(ctx, a.operatorAddr)
	if err != nil {
		return fmt.Errorf("evm: pending nonce: %w", err)
	}

	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("evm: suggest gas price: %w", err)
	}

	callData := encodeFulfillCall(intentID, solver, amount)

	gasLimit, err := a.client.EstimateGas(ctx, gethereum.CallMsg{
		From: a.operatorAddr,
		To:   &a.escrowAddr,
		Data: callData,
	})
	if err != nil {
		// Some RPCs reject estimation against a contract that will revert
		// for "already fulfilled"; fall back to a conservative fixed limit
		// and let the real submission surface the revert classification.
		gasLimit = 300_000
	}

	tx := types.NewTransaction(nonce, a.escrowAddr, big.NewInt(0), gasLimit, gasPrice, callData)

	signed, err := types.SignTx(tx, types.NewEIP155Signer(a.chainIDBig), a.operatorKey)
	if err != nil {
		return fmt.Errorf("evm: sign tx: %w", err)
	}

	if err := a.client.SendTransaction(ctx, signed); err != nil {
		return classifySubmitError(err)
	}
	return nil
}

func encodeFulfillCall(intentID wire.IntentID, solver wire.Address, amount uint64) []byte {
	// ABI-encodes fulfill(bytes32 intentId, address solver, uint256 amount).
	// All three args are static 32-byte words; no dynamic tail.
	call := make([]byte, 0, 4+32*3)
	call = append(call, fulfillSelector...)
	call = append(call, intentID[:]...)

	var solverWord [32]byte
	copy(solverWord[12:], solver[12:])
	call = append(call, solverWord[:]...)

	var amountWord [32]byte
	big.NewInt(0).SetUint64(amount).FillBytes(amountWord[:])
	call = append(call, amountWord[:]...)

	return call
}

// FetchEventsForAddresses reads EscrowInitialized logs emitted by the given
// contract addresses (or by the configured escrow contract when addrs is
// empty), translating them into the shared EscrowEvent shape. Only the
// escrow leg is read: this adapter returns no IntentEvent or
// FulfillmentEvent records, including when it serves as the hub.
func (a *EVMAdapter) FetchEventsForAddresses(ctx context.Context, addrs []wire.Address, from, to uint64) (chain.ChainEvents, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	contractAddrs := make([]common.Address, 0, len(addrs))
	for _, addr := range addrs {
		var ca common.Address
		copy(ca[:], addr[12:])
		contractAddrs = append(contractAddrs, ca)
	}
	if len(contractAddrs) == 0 {
		contractAddrs = []common.Address{a.escrowAddr}
	}

	query := gethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: contractAddrs,
		Topics:    [][]common.Hash{{escrowInitializedTopic}},
	}

	if err := a.limiter.Acquire(ctx); err != nil {
		return chain.ChainEvents{}, fmt.Errorf("evm: acquire call slot: %w", err)
	}
	defer a.limiter.Release()

	logs, err := a.client.FilterLogs(ctx, query)
	if err != nil {
		return chain.ChainEvents{}, fmt.Errorf("evm: filter escrow logs: %w", err)
	}

	events := chain.ChainEvents{}
	for _, lg := range logs {
		if len(lg.Topics) < 3 || len(lg.Data) < 64 {
			continue
		}
		var intentID wire.IntentID
		copy(intentID[:], lg.Topics[1].Bytes())
		var escrowID [32]byte
		copy(escrowID[:], lg.Topics[2].Bytes())

		events.Escrows = append(events.Escrows, chain.EscrowEvent{
			Pos:           chain.Position{BlockHeight: lg.BlockNumber, LogIndex: uint64(lg.Index)},
			EscrowID:      escrowID,
			IntentID:      intentID,
			Chain:         a.config.ChainID,
			ChainType:     chain.Evm,
			OfferedAmount: new(big.Int).SetBytes(lg.Data[32:64]).Uint64(),
			Timestamp:     time.Now().UTC(),
		})
	}
	return events, nil
}

// LookupSolverKey reads a solver's registered public key by calling the
// solver registry's eth_call view function.
func (a *EVMAdapter) LookupSolverKey(ctx context.Context, solver wire.Address) (chain.SolverKey, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	if a.config.SolverRegistryAddr == "" || !common.IsHexAddress(a.config.SolverRegistryAddr) {
		return chain.SolverKey{}, fmt.Errorf("evm: solver registry not configured")
	}
	registry := common.HexToAddress(a.config.SolverRegistryAddr)

	selector := crypto.Keccak256([]byte("solverKey(address)"))[:4]
	var addrWord [32]byte
	copy(addrWord[12:], solver[12:])
	calldata := append(append([]byte{}, selector...), addrWord[:]...)

	if err := a.limiter.Acquire(ctx); err != nil {
		return chain.SolverKey{}, fmt.Errorf("evm: acquire call slot: %w", err)
	}
	defer a.limiter.Release()

	out, err := a.client.CallContract(ctx, gethereum.CallMsg{To: &registry, Data: calldata}, nil)
	if err != nil {
		return chain.SolverKey{}, fmt.Errorf("evm: call solverKey: %w", err)
	}
	if len(out) == 0 {
		return chain.SolverKey{}, fmt.Errorf("evm: solver not registered")
	}
	return chain.SolverKey{PublicKey: out, Active: true}, nil
}

// Balance returns account's balance of asset (§4.7.1a). A zero asset
// address means the chain's native currency; anything else is read via an
// ERC-20 balanceOf(address) call.
func (a *EVMAdapter) Balance(ctx context.Context, account wire.Address, asset wire.Address) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()

	ethAccount := common.BytesToAddress(account[12:])

	if err := a.limiter.Acquire(ctx); err != nil {
		return 0, fmt.Errorf("evm: acquire call slot: %w", err)
	}
	defer a.limiter.Release()

	if asset.IsZero() {
		bal, err := a.client.BalanceAt(ctx, ethAccount, nil)
		if err != nil {
			return 0, fmt.Errorf("evm: BalanceAt: %w", err)
		}
		if !bal.IsUint64() {
			return 0, fmt.Errorf("evm: native balance overflows uint64")
		}
		return bal.Uint64(), nil
	}

	tokenAddr := common.BytesToAddress(asset[12:])
	selector := crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	var addrWord [32]byte
	copy(addrWord[12:], ethAccount[:])
	calldata := append(append([]byte{}, selector...), addrWord[:]...)

	out, err := a.client.CallContract(ctx, gethereum.CallMsg{To: &tokenAddr, Data: calldata}, nil)
	if err != nil {
		return 0, fmt.Errorf("evm: call balanceOf: %w", err)
	}
	if len(out) < 32 {
		return 0, fmt.Errorf("evm: balanceOf returned %d bytes, want 32", len(out))
	}
	bal := new(big.Int).SetBytes(out[:32])
	if !bal.IsUint64() {
		return 0, fmt.Errorf("evm: token balance overflows uint64")
	}
	return bal.Uint64(), nil
}
