package relay

import (
	"time"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/wire"
)

// OutboundMessage is a queued GMP delivery derived from a source chain's
// outbox entry (§4.6).
type OutboundMessage struct {
	SrcChain  chain.ID
	DstChain  chain.ID
	SrcAddr   wire.Address
	Nonce     uint64
	Payload   []byte
	FirstSeen time.Time
}

// Router fans OutboundMessages out to the deliverer registered for their
// destination chain.
type Router struct {
	queues map[chain.ID]chan<- OutboundMessage
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{queues: make(map[chain.ID]chan<- OutboundMessage)}
}

// Register binds a destination chain's inbound queue.
func (r *Router) Register(dst chain.ID, queue chan<- OutboundMessage) {
	r.queues[dst] = queue
}

// Route enqueues msg on its destination's queue. Returns false if no
// deliverer is registered for that destination (a misconfiguration the
// poller logs and drops rather than blocking forever).
func (r *Router) Route(msg OutboundMessage) bool {
	q, ok := r.queues[msg.DstChain]
	if !ok {
		return false
	}
	q <- msg
	return true
}
