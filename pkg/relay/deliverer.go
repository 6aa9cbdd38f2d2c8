package relay

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/metrics"
	"github.com/intentbridge/settlement/pkg/wire"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 60 * time.Second
	messageTTL     = time.Hour
)

// Deliverer drains a single destination chain's inbound queue, deduplicating
// and retrying with exponential backoff (§4.6). A single worker goroutine
// processes the queue strictly in arrival order, which trivially satisfies
// the "ascending nonce order within (src, dst, intent_id)" guarantee since
// the poller only ever enqueues in increasing nonce order per source chain.
type Deliverer struct {
	adapter chain.Adapter
	queue   chan OutboundMessage
	dedup   *dedupLRU
	metrics *metrics.Registry
	logger  *log.Logger
}

// NewDeliverer builds a Deliverer for adapter's chain with a bounded inbound
// queue. queueDepth bounds backpressure on pollers feeding this destination.
func NewDeliverer(adapter chain.Adapter, queueDepth int, m *metrics.Registry, logger *log.Logger) *Deliverer {
	if logger == nil {
		logger = log.New(os.Stdout, "[Deliverer] ", log.LstdFlags)
	}
	return &Deliverer{
		adapter: adapter,
		queue:   make(chan OutboundMessage, queueDepth),
		dedup:   newDedupLRU(4096),
		metrics: m,
		logger:  logger,
	}
}

// Queue exposes the deliverer's inbound channel for Router registration.
func (d *Deliverer) Queue() chan<- OutboundMessage { return d.queue }

// Run drains the queue until ctx is canceled, honoring a 10 s drain deadline
// for any in-flight submission at shutdown (§5).
func (d *Deliverer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		}
	}
}

func (d *Deliverer) deliver(ctx context.Context, msg OutboundMessage) {
	dstName := chainLabel(msg.DstChain)

	key, err := wire.DedupKey(msg.Payload)
	if err != nil {
		d.logger.Printf("dst %d: malformed payload, dropping nonce %d: %v", msg.DstChain, msg.Nonce, err)
		return
	}
	if d.dedup.SeenRecently(key) {
		if d.metrics != nil {
			d.metrics.DedupCacheHits.Inc()
		}
		return
	}

	backoff := initialBackoff
	for {
		// The submission is detached from ctx's cancellation so an in-flight
		// delivery can finish at shutdown, bounded by the 10 s drain deadline.
		submitCtx, cancelSubmit := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		err := d.adapter.SubmitDeliver(submitCtx, msg.Payload, msg.SrcChain, msg.SrcAddr)
		cancelSubmit()
		if err == nil || errors.Is(err, chain.ErrAlreadyDelivered) {
			if d.metrics != nil {
				d.metrics.DeliveriesSent.WithLabelValues(dstName).Inc()
			}
			return
		}

		if time.Since(msg.FirstSeen) >= messageTTL {
			d.logger.Printf("dst %d: nonce %d exceeded TTL, dropping: %v", msg.DstChain, msg.Nonce, err)
			return
		}

		d.logger.Printf("dst %d: nonce %d submit failed, retrying in %s: %v", msg.DstChain, msg.Nonce, backoff, err)
		if d.metrics != nil {
			d.metrics.DeliveryRetries.WithLabelValues(dstName).Inc()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func chainLabel(id chain.ID) string {
	return "chain-" + strconv.FormatUint(uint64(id), 10)
}
