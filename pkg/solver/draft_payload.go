package solver

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/wire"
)

// DraftPayload is the solver's expected shape of a Draft's opaque
// draft_data field (§3: "draft_data (opaque to coordinator)"). The
// coordinator never parses this; only the solver and the eventual on-chain
// contract do.
type DraftPayload struct {
	IntentIDHex string   `json:"intent_id"`
	PayingChain chain.ID `json:"paying_chain"`
	AssetHex    string   `json:"asset"`
	Amount      uint64   `json:"amount"`
}

// ParseDraftPayload decodes a Draft's draft_data into the fields admission
// control needs.
func ParseDraftPayload(raw json.RawMessage) (DraftPayload, error) {
	var p DraftPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return DraftPayload{}, fmt.Errorf("solver: malformed draft_data: %w", err)
	}
	return p, nil
}

// Asset decodes AssetHex into a wire.Address.
func (p DraftPayload) Asset() (wire.Address, error) {
	b, err := hex.DecodeString(p.AssetHex)
	if err != nil || len(b) != 32 {
		return wire.Address{}, fmt.Errorf("solver: draft_data.asset must be 32 bytes hex")
	}
	var a wire.Address
	copy(a[:], b)
	return a, nil
}

// IntentID decodes IntentIDHex into a wire.IntentID.
func (p DraftPayload) IntentID() (wire.IntentID, error) {
	b, err := hex.DecodeString(p.IntentIDHex)
	if err != nil || len(b) != 32 {
		return wire.IntentID{}, fmt.Errorf("solver: draft_data.intent_id must be 32 bytes hex")
	}
	var id wire.IntentID
	copy(id[:], b)
	return id, nil
}
