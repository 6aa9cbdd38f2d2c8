// Command relay runs the GMP outbox poller and deliverer fleet that carries
// MessageSent outbox entries from each chain to their destination's
// deliver_message entry point (§4.6).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/intentbridge/settlement/pkg/chain"
	"github.com/intentbridge/settlement/pkg/chain/strategy"
	"github.com/intentbridge/settlement/pkg/config"
	"github.com/intentbridge/settlement/pkg/metrics"
	"github.com/intentbridge/settlement/pkg/registry"
	"github.com/intentbridge/settlement/pkg/relay"
)

func main() {
	logger := log.New(os.Stdout, "[Relay] ", log.LstdFlags)

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

	m := metrics.New()

	pollInterval := time.Duration(cfg.Relay.PollIntervalMs) * time.Millisecond
	svc, err := relay.NewService(reg, pollInterval, 256, m, logger)
	if err != nil {
		logger.Fatalf("build relay service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx)
	}()

	select {
	case <-quit:
		logger.Printf("shutting down")
	case err := <-done:
		logger.Printf("relay service exited: %v", err)
		return
	}

	cancel()

	// §5: bound the deliverer drain to 10s before the process exits.
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Printf("drain timeout exceeded, exiting")
	}
}

func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	reg := registry.New()

	hubAdapter, err := strategy.NewEVMAdapter(&strategy.EVMConfig{
		ChainID:               chain.ID(cfg.HubChain.ChainID),
		RPCURL:                cfg.HubChain.RPCURL,
		EscrowContractAddr:    cfg.HubChain.IntentModuleAddr,
		SolverRegistryAddr:    cfg.HubChain.IntentModuleAddr,
		OperatorPrivateKeyHex: cfg.Relay.OperatorKey["hub"],
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
			OperatorKeyHex:   cfg.Relay.OperatorKey["mvm"],
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
			ChainID:               chain.ID(cfg.ConnectedChainEVM.ChainID),
			RPCURL:                cfg.ConnectedChainEVM.RPCURL,
			EscrowContractAddr:    cfg.ConnectedChainEVM.EscrowContractAddr,
			GMPEndpointAddr:       cfg.ConnectedChainEVM.GMPEndpointAddr,
			OperatorPrivateKeyHex: cfg.Relay.OperatorKey["evm"],
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
			ChainID:            chain.ID(cfg.ConnectedChainSVM.ChainID),
			RPCURL:             cfg.ConnectedChainSVM.RPCURL,
			EscrowProgramID:    cfg.ConnectedChainSVM.EscrowProgramID,
			GMPEndpointAddr:    cfg.ConnectedChainSVM.GMPEndpointAddr,
			OperatorKeypairB64: cfg.Relay.OperatorKey["svm"],
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
