package coordinator

import (
	"context"
	"encoding/hex"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/wire"
)

// hubSolverRegistry adapts a hub chain.Adapter to draft.SolverRegistry by
// looking up the solver's registration through the on-chain solver
// registry (§4.4: "looked up via the hub chain adapter").
type hubSolverRegistry struct {
	hub chain.Adapter
}

// NewHubSolverRegistry wraps hub for use as a draft.Store's SolverRegistry.
func NewHubSolverRegistry(hub chain.Adapter) *hubSolverRegistry {
	return &hubSolverRegistry{hub: hub}
}

func (r *hubSolverRegistry) IsRegisteredSolver(solverAddrHex string) (bool, error) {
	b, err := hex.DecodeString(solverAddrHex)
	if err != nil || len(b) != 32 {
		return false, nil
	}
	var addr wire.Address
	copy(addr[:], b)

	key, err := r.hub.LookupSolverKey(context.Background(), addr)
	if err != nil {
		return false, nil
	}
	return key.Active, nil
}
