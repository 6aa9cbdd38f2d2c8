package coordinator

import (
	"context"
	"log"
	"time"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/eventcache"
	"github.com/intentbridge/settlement/pkg/registry"
	"github.com/intentbridge/settlement/pkg/wire"
)

// AddressSource resolves the set of addresses an EventPoller should watch on
// a given chain. In production this is backed by the hub chain's
// intent_registry::get_active_requesters and solver_registry::list_all_solver_addresses
// (§4.2); tests and small deployments may supply a static list.
type AddressSource interface {
	WatchedAddresses(ctx context.Context, id chain.ID) ([]wire.Address, error)
}

// StaticAddressSource is an AddressSource returning the same fixed list for
// every chain, useful when the set of requesters/solvers is configured
// rather than discovered.
type StaticAddressSource []wire.Address

func (s StaticAddressSource) WatchedAddresses(ctx context.Context, id chain.ID) ([]wire.Address, error) {
	return []wire.Address(s), nil
}

// EventPoller runs one cursor-tracked polling task per registered chain,
// feeding observed IntentEvent/EscrowEvent/FulfillmentEvent records into the
// shared event cache (§4.2, §5: "one task for each chain's event poller").
type EventPoller struct {
	registry     *registry.Registry
	cache        *eventcache.Cache
	addresses    AddressSource
	pollInterval time.Duration
	logger       *log.Logger

	cursors map[chain.ID]uint64
}

// NewEventPoller wires an EventPoller. logger may be nil.
func NewEventPoller(reg *registry.Registry, cache *eventcache.Cache, addresses AddressSource, pollInterval time.Duration, logger *log.Logger) *EventPoller {
	return &EventPoller{
		registry:     reg,
		cache:        cache,
		addresses:    addresses,
		pollInterval: pollInterval,
		logger:       logger,
		cursors:      make(map[chain.ID]uint64),
	}
}

// Run polls every registered chain on a fixed interval until ctx is canceled.
func (p *EventPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *EventPoller) pollAll(ctx context.Context) {
	for _, id := range p.registry.All() {
		a, err := p.registry.Get(id)
		if err != nil {
			continue
		}
		p.pollOne(ctx, a)
	}
}

func (p *EventPoller) pollOne(ctx context.Context, a chain.Adapter) {
	id := a.Chain()

	finalized, err := a.FinalizedHeight(ctx)
	if err != nil {
		p.logf("chain %d: finalized height: %v", id, err)
		return
	}

	from, ok := p.cursors[id]
	if !ok {
		from = finalized
	}
	if from >= finalized {
		return
	}

	addrs, err := p.addresses.WatchedAddresses(ctx, id)
	if err != nil {
		p.logf("chain %d: watched addresses: %v", id, err)
		return
	}
	if len(addrs) == 0 {
		p.cursors[id] = finalized
		return
	}

	events, err := a.FetchEventsForAddresses(ctx, addrs, from, finalized)
	if err != nil {
		p.logf("chain %d: fetch events: %v", id, err)
		return
	}

	for _, e := range events.Intents {
		p.cache.UpsertIntent(e)
	}
	for _, e := range events.Escrows {
		p.cache.UpsertEscrow(e)
	}
	for _, e := range events.Fulfillments {
		p.cache.UpsertFulfillment(e)
	}

	p.cursors[id] = finalized
}

func (p *EventPoller) logf(format string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
