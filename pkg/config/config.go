// Package config loads the settlement system's configuration (§6.4). Every
// service (coordinator, relay, solver) shares this loader; each reads only
// the sub-record it needs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// HubChain is the hub chain connection record (§6.4, required).
type HubChain struct {
	RPCURL          string `yaml:"rpc_url"`
	ChainID         uint32 `yaml:"chain_id"`
	IntentModuleAddr string `yaml:"intent_module_addr"`
}

// ConnectedMVM is a Move-VM connected chain record (§6.4, optional).
type ConnectedMVM struct {
	RPCURL          string `yaml:"rpc_url"`
	ChainID         uint32 `yaml:"chain_id"`
	IntentModuleAddr string `yaml:"intent_module_addr"`
	EscrowModuleAddr string `yaml:"escrow_module_addr"`
}

// ConnectedEVM is an EVM connected chain record (§6.4, optional).
type ConnectedEVM struct {
	RPCURL           string `yaml:"rpc_url"`
	ChainID          uint32 `yaml:"chain_id"`
	EscrowContractAddr string `yaml:"escrow_contract_addr"`
	GMPEndpointAddr  string `yaml:"gmp_endpoint_addr"`
}

// ConnectedSVM is an SVM connected chain record (§6.4, optional).
type ConnectedSVM struct {
	RPCURL          string `yaml:"rpc_url"`
	ChainID         uint32 `yaml:"chain_id"`
	EscrowProgramID string `yaml:"escrow_program_id"`
	GMPEndpointAddr string `yaml:"gmp_endpoint_addr"`
}

// API is the coordinator's listen address (§6.4, defaults 127.0.0.1:3333).
type API struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Solver is the solver service's operating parameters (§6.4, §4.7).
type Solver struct {
	SigningKeyMaterial      string             `yaml:"signing_key_material"`
	MinBalanceFloorPerAsset map[string]string  `yaml:"min_balance_floor_per_asset"`
	PollIntervalMs          int                `yaml:"poll_interval_ms"`
}

// Relay is the relay service's operating parameters (§6.4, §4.6).
type Relay struct {
	PollIntervalMs      int               `yaml:"poll_interval_ms"`
	SubmissionTimeoutMs int               `yaml:"submission_timeout_ms"`
	OperatorKey         map[string]string `yaml:"operator_key"` // keyed by chain name
}

// Config is the full keyed record described by §6.4.
type Config struct {
	HubChain          HubChain      `yaml:"hub_chain"`
	ConnectedChainMVM *ConnectedMVM `yaml:"connected_chain_mvm"`
	ConnectedChainEVM *ConnectedEVM `yaml:"connected_chain_evm"`
	ConnectedChainSVM *ConnectedSVM `yaml:"connected_chain_svm"`
	API               API           `yaml:"api"`
	Solver            Solver        `yaml:"solver"`
	Relay             Relay         `yaml:"relay"`
	LogLevel          string        `yaml:"log_level"`
}

// defaults returns a Config pre-populated with every default named in §6.4.
func defaults() *Config {
	return &Config{
		API: API{Host: "127.0.0.1", Port: 3333},
		Solver: Solver{
			MinBalanceFloorPerAsset: make(map[string]string),
			PollIntervalMs:          2000,
		},
		Relay: Relay{
			PollIntervalMs:      2000,
			SubmissionTimeoutMs: 30000,
			OperatorKey:         make(map[string]string),
		},
		LogLevel: "info",
	}
}

// Load builds a Config by first applying defaults, then overlaying a YAML
// file (if CONFIG_FILE points at one), then overlaying individual
// environment variables. Environment variables take final precedence,
// matching the teacher's env-first convention (pkg/config/config.go).
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAMLFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func loadYAMLFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, cfg)
}

func applyEnvOverrides(cfg *Config) {
	cfg.HubChain.RPCURL = getEnv("HUB_RPC_URL", cfg.HubChain.RPCURL)
	cfg.HubChain.ChainID = getEnvUint32("HUB_CHAIN_ID", cfg.HubChain.ChainID)
	cfg.HubChain.IntentModuleAddr = getEnv("HUB_INTENT_MODULE_ADDR", cfg.HubChain.IntentModuleAddr)

	cfg.API.Host = getEnv("API_HOST", cfg.API.Host)
	cfg.API.Port = getEnvInt("API_PORT", cfg.API.Port)

	cfg.Solver.SigningKeyMaterial = getEnv("SOLVER_SIGNING_KEY", cfg.Solver.SigningKeyMaterial)
	cfg.Solver.PollIntervalMs = getEnvInt("SOLVER_POLL_INTERVAL_MS", cfg.Solver.PollIntervalMs)

	cfg.Relay.PollIntervalMs = getEnvInt("RELAY_POLL_INTERVAL_MS", cfg.Relay.PollIntervalMs)
	cfg.Relay.SubmissionTimeoutMs = getEnvInt("RELAY_SUBMISSION_TIMEOUT_MS", cfg.Relay.SubmissionTimeoutMs)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
}

// Validate checks the invariants Load cannot enforce on its own: the hub
// chain record is always required (§6.4), and at least one connected chain
// must be configured for the relay/solver to have any work.
func (c *Config) Validate() error {
	if c.HubChain.RPCURL == "" {
		return fmt.Errorf("config: hub_chain.rpc_url is required")
	}
	if c.HubChain.IntentModuleAddr == "" {
		return fmt.Errorf("config: hub_chain.intent_module_addr is required")
	}
	if c.ConnectedChainMVM == nil && c.ConnectedChainEVM == nil && c.ConnectedChainSVM == nil {
		return fmt.Errorf("config: at least one connected chain must be configured")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint32(n)
		}
	}
	return defaultValue
}
