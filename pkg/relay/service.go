package relay

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/metrics"
	"github.com/intentbridge/settlement/pkg/registry"
	"golang.org/x/sync/errgroup"
)

// Service wires a Router, one Deliverer per registered chain, and one
// Poller per registered chain into the task group described in §5 ("one
// task per source_chain poller, one task per destination_chain deliverer").
type Service struct {
	router     *Router
	deliverers map[chain.ID]*Deliverer
	pollers    []*Poller
}

// NewService builds delivery and polling tasks for every chain in reg.
func NewService(reg *registry.Registry, pollInterval time.Duration, queueDepth int, m *metrics.Registry, logger *log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "[Relay] ", log.LstdFlags)
	}

	router := NewRouter()
	deliverers := make(map[chain.ID]*Deliverer)

	for _, id := range reg.All() {
		adapter, err := reg.Get(id)
		if err != nil {
			return nil, err
		}
		d := NewDeliverer(adapter, queueDepth, m, logger)
		deliverers[id] = d
		router.Register(id, d.Queue())
	}

	pollers := make([]*Poller, 0, len(deliverers))
	for _, id := range reg.All() {
		adapter, err := reg.Get(id)
		if err != nil {
			return nil, err
		}
		pollers = append(pollers, NewPoller(adapter, router, pollInterval, logger))
	}

	return &Service{router: router, deliverers: deliverers, pollers: pollers}, nil
}

// Run blocks running every poller and deliverer task until ctx is canceled
// or one of them returns an error.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, d := range s.deliverers {
		d := d
		g.Go(func() error {
			d.Run(ctx)
			return nil
		})
	}
	for _, p := range s.pollers {
		p := p
		g.Go(func() error {
			return p.Run(ctx)
		})
	}

	return g.Wait()
}
