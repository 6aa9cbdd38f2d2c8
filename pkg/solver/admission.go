package solver

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/wire"
)

// defaultMinBalanceFloor is used for any asset without a configured
// override (§6.4: "default 1 smallest unit").
const defaultMinBalanceFloor = 1

// AdmissionController implements §4.7.1a's liquidity check: accept a draft
// only if available balance on the paying chain covers the requested
// amount plus a per-asset reserve floor. Grounded on the teacher's
// CreditChecker (pkg/execution/credit_checker.go), generalized from a
// single Accumulate credit balance to an arbitrary (chain, asset) balance
// query through chain.Adapter.
type AdmissionController struct {
	minBalanceFloor map[string]uint64 // keyed by hex-encoded asset address
}

// NewAdmissionController builds a controller with per-asset floor
// overrides. Assets absent from floors use defaultMinBalanceFloor.
func NewAdmissionController(floors map[string]uint64) *AdmissionController {
	if floors == nil {
		floors = make(map[string]uint64)
	}
	return &AdmissionController{minBalanceFloor: floors}
}

func (c *AdmissionController) floorFor(asset wire.Address) uint64 {
	if v, ok := c.minBalanceFloor[assetKey(asset)]; ok {
		return v
	}
	return defaultMinBalanceFloor
}

func assetKey(a wire.Address) string {
	return string(a[:])
}

// BuildFloors converts the hex-asset-keyed config record (§6.4,
// min_balance_floor_per_asset) into the internal floors map expected by
// NewAdmissionController.
func BuildFloors(perAssetHex map[string]string) (map[string]uint64, error) {
	floors := make(map[string]uint64, len(perAssetHex))
	for assetHex, amountStr := range perAssetHex {
		b, err := hex.DecodeString(assetHex)
		if err != nil || len(b) != 32 {
			return nil, fmt.Errorf("solver: invalid asset key %q", assetHex)
		}
		var asset wire.Address
		copy(asset[:], b)

		amount, err := strconv.ParseUint(amountStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("solver: invalid floor amount for %q: %w", assetHex, err)
		}
		floors[assetKey(asset)] = amount
	}
	return floors, nil
}

// Admit checks whether solverAccount has enough of asset on payingChain to
// cover requestedAmount plus the configured reserve floor. Returns
// ErrInsufficientLiquidity (never a business-facing error; §7) when it does
// not.
func (c *AdmissionController) Admit(ctx context.Context, payingChain chain.Adapter, solverAccount wire.Address, asset wire.Address, requestedAmount uint64) error {
	available, err := payingChain.Balance(ctx, solverAccount, asset)
	if err != nil {
		return err
	}

	floor := c.floorFor(asset)
	if available < requestedAmount+floor {
		return ErrInsufficientLiquidity
	}
	return nil
}
