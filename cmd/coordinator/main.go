// Command coordinator runs the read-only event monitor, cache, and FCFS
// negotiation router's HTTP surface (§4.1, §4.5).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/chain/strategy"
	"github.com/intentbridge/settlement/pkg/config"
	"github.com/intentbridge/settlement/pkg/coordinator"
	"github.com/intentbridge/settlement/pkg/draft"
	"github.com/intentbridge/settlement/pkg/eventcache"
	"github.com/intentbridge/settlement/pkg/metrics"
	"github.com/intentbridge/settlement/pkg/registry"
)

func main() {
	logger := log.New(os.Stdout, "[Coordinator] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		logger.Fatalf("build chain registry: %v", err)
	}

	hub, err := reg.Hub()
	if err != nil {
		logger.Fatalf("resolve hub adapter: %v", err)
	}

	cache := eventcache.New()
	drafts := draft.New(coordinator.NewHubSolverRegistry(hub))
	m := metrics.New()

	srv := coordinator.New(cache, drafts, m, logger)

	ctx, cancel := context.WithCancel(context.Background())

	pollInterval := time.Duration(cfg.Solver.PollIntervalMs) * time.Millisecond
	poller := coordinator.NewEventPoller(reg, cache, coordinator.StaticAddressSource(nil), pollInterval, logger)
	go poller.Run(ctx)
	go runExpirySweeper(ctx, drafts)

	addr := cfg.API.Host + ":" + strconv.Itoa(cfg.API.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(ctx, addr, 30*time.Second); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-quit:
		logger.Printf("shutting down")
	case err := <-errCh:
		logger.Printf("server error: %v", err)
	}

	cancel()
}

// runExpirySweeper periodically sweeps drafts past their expiry time from
// the pending set (§5: "one task for the draft expiry sweeper").
func runExpirySweeper(ctx context.Context, drafts *draft.Store) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drafts.SweepExpired()
		}
	}
}

func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	reg := registry.New()

	// The hub chain is assumed EVM-compatible for this reference build;
	// a Move-VM hub deployment would construct an MVMAdapter here instead
	// (§6.4 does not distinguish hub VM family).
	hubAdapter, err := strategy.NewEVMAdapter(&strategy.EVMConfig{
		ChainID:            chain.ID(cfg.HubChain.ChainID),
		RPCURL:             cfg.HubChain.RPCURL,
		EscrowContractAddr: cfg.HubChain.IntentModuleAddr,
		SolverRegistryAddr: cfg.HubChain.IntentModuleAddr,
	})
	if err != nil {
		return nil, err
	}
	if err := reg.Register(hubAdapter); err != nil {
		return nil, err
	}
	reg.SetHub(hubAdapter.Chain())

	if cfg.ConnectedChainMVM != nil {
		a, err := strategy.NewMVMAdapter(&strategy.MVMConfig{
			ChainID:          chain.ID(cfg.ConnectedChainMVM.ChainID),
			RPCURL:           cfg.ConnectedChainMVM.RPCURL,
			IntentModuleAddr: cfg.ConnectedChainMVM.IntentModuleAddr,
			EscrowModuleAddr: cfg.ConnectedChainMVM.EscrowModuleAddr,
		})
		if err != nil {
			return nil, err
		}
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}

	if cfg.ConnectedChainEVM != nil {
		a, err := strategy.NewEVMAdapter(&strategy.EVMConfig{
			ChainID:            chain.ID(cfg.ConnectedChainEVM.ChainID),
			RPCURL:             cfg.ConnectedChainEVM.RPCURL,
			EscrowContractAddr: cfg.ConnectedChainEVM.EscrowContractAddr,
			GMPEndpointAddr:    cfg.ConnectedChainEVM.GMPEndpointAddr,
		})
		if err != nil {
			return nil, err
		}
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}

	if cfg.ConnectedChainSVM != nil {
		a, err := strategy.NewSVMAdapter(&strategy.SVMConfig{
			ChainID:         chain.ID(cfg.ConnectedChainSVM.ChainID),
			RPCURL:          cfg.ConnectedChainSVM.RPCURL,
			EscrowProgramID: cfg.ConnectedChainSVM.EscrowProgramID,
			GMPEndpointAddr: cfg.ConnectedChainSVM.GMPEndpointAddr,
		})
		if err != nil {
			return nil, err
		}
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
