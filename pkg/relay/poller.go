package relay

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/intentbridge/settlement/pkg/chain"
)

// Poller maintains a per-source-chain cursor and feeds outbox entries into
// a Router (§4.6: "a poller maintains a cursor (last_height, last_log_index)
// initialized at startup to finalized_height()").
type Poller struct {
	adapter      chain.Adapter
	router       *Router
	pollInterval time.Duration
	logger       *log.Logger

	cursor uint64
}

// NewPoller builds a Poller for adapter's chain, routing outbox entries
// through router. logger defaults to a bracketed stdout logger per the
// teacher's convention.
func NewPoller(adapter chain.Adapter, router *Router, pollInterval time.Duration, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.New(os.Stdout, "[Poller] ", log.LstdFlags)
	}
	return &Poller{adapter: adapter, router: router, pollInterval: pollInterval, logger: logger}
}

// Run polls until ctx is canceled. The cursor starts at the chain's current
// finalized height so a fresh process only observes outbox entries created
// after it started (§4.6: "a relay restart re-reads only live entries",
// since swept/expired entries are no longer fetchable from the adapter
// regardless of cursor position).
func (p *Poller) Run(ctx context.Context) error {
	initial, err := p.adapter.FinalizedHeight(ctx)
	if err != nil {
		return err
	}
	p.cursor = initial

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	finalized, err := p.adapter.FinalizedHeight(ctx)
	if err != nil {
		p.logger.Printf("chain %d: FinalizedHeight: %v", p.adapter.Chain(), err)
		return
	}
	if finalized <= p.cursor {
		return
	}

	entries, err := p.adapter.FetchOutbox(ctx, p.cursor+1, finalized)
	if err != nil {
		p.logger.Printf("chain %d: FetchOutbox: %v", p.adapter.Chain(), err)
		return
	}

	now := time.Now()
	for _, e := range entries {
		msg := OutboundMessage{
			SrcChain:  p.adapter.Chain(),
			DstChain:  e.Dst,
			SrcAddr:   e.SrcAddr,
			Nonce:     e.Nonce,
			Payload:   e.Payload,
			FirstSeen: now,
		}
		if !p.router.Route(msg) {
			p.logger.Printf("chain %d: no deliverer registered for destination %d, dropping nonce %d", p.adapter.Chain(), e.Dst, e.Nonce)
		}
	}

	p.cursor = finalized
}
