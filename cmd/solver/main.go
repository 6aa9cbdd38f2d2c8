// Command solver runs the liquidity-admission, signing, and fulfillment
// state machine described in §4.7.
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
	"github.com/intentbridge/settlement/pkg/eventcache"
	"github.com/intentbridge/settlement/pkg/registry"
	"github.com/intentbridge/settlement/pkg/solver"
)

func main() {
	logger := log.New(os.Stdout, "[Solver] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	if cfg.Solver.SigningKeyMaterial == "" {
		logger.Fatalf("solver.signing_key_material is required")
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		logger.Fatalf("build chain registry: %v", err)
	}

	signer, err := solver.NewSigner(cfg.Solver.SigningKeyMaterial)
	if err != nil {
		logger.Fatalf("build signer: %v", err)
	}

	floors, err := solver.BuildFloors(cfg.Solver.MinBalanceFloorPerAsset)
	if err != nil {
		logger.Fatalf("build admission floors: %v", err)
	}
	admission := solver.NewAdmissionController(floors)

	coordinatorURL := os.Getenv("COORDINATOR_URL")
	if coordinatorURL == "" {
		coordinatorURL = "http://127.0.0.1:3333"
	}
	coordClient := solver.NewCoordinatorClient(coordinatorURL, 30*time.Second)

	cache := eventcache.New()

	pollInterval := time.Duration(cfg.Solver.PollIntervalMs) * time.Millisecond
	svc := solver.NewService(coordClient, reg, cache, admission, signer, pollInterval, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Printf("shutting down")
	cancel()
}

func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	reg := registry.New()

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
