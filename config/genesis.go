package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zion-chain/zion/internal/chainparams"
	"github.com/zion-chain/zion/pkg/crypto"
	"github.com/zion-chain/zion/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// Genesis holds the genesis block identity. All consensus-critical constants
// (block reward, premine buckets, difficulty retarget parameters, size
// limits) are fixed per-network in internal/chainparams, not configurable
// here: a genesis only names which network's fixed parameter set it uses.
type Genesis struct {
	// Chain identity
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Symbol    string `json:"symbol,omitempty"`

	// Network selects the fixed chainparams.Params (premine buckets, burn
	// address, fee floor) this genesis uses.
	Network chainparams.Network `json:"network"`

	// Genesis block
	Timestamp uint64 `json:"timestamp"`
	ExtraData string `json:"extra_data,omitempty"`

	// Fork activation schedule
	Forks ForkSchedule `json:"forks,omitempty"`
}

// ForkSchedule defines block heights at which protocol upgrades activate.
// A zero value means the fork is not scheduled.
type ForkSchedule struct {
	// Future forks are added here as fields. Example:
	// ScriptEngineHeight uint64 `json:"script_engine_height,omitempty"`
}

// IsActive returns true if a fork at forkHeight has activated at currentHeight.
// Returns false if forkHeight is 0 (not scheduled).
func (f *ForkSchedule) IsActive(forkHeight, currentHeight uint64) bool {
	return forkHeight > 0 && currentHeight >= forkHeight
}

// Params returns the fixed network parameter set (premine buckets, burn
// address, difficulty/size limits) for this genesis.
func (g *Genesis) Params() chainparams.Params {
	return chainparams.ForNetwork(g.Network)
}

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "zion-mainnet-1",
		ChainName: "Zion Mainnet",
		Symbol:    "ZION",
		Network:   chainparams.Mainnet,
		Timestamp: 1770734103, // 2026-02-10
		ExtraData: "Zion Genesis",
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "zion-testnet-1",
		ChainName: "Zion Testnet",
		Symbol:    "ZION",
		Network:   chainparams.Testnet,
		Timestamp: 1770734103,
		ExtraData: "Zion Testnet Genesis",
	}
}

// DevnetGenesis returns the devnet genesis configuration.
func DevnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "zion-devnet-1",
		ChainName: "Zion Devnet",
		Symbol:    "ZION",
		Network:   chainparams.Devnet,
		Timestamp: 1770734103,
		ExtraData: "Zion Devnet Genesis",
	}
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	case Devnet:
		return DevnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	switch g.Network {
	case chainparams.Mainnet, chainparams.Testnet, chainparams.Devnet:
	default:
		return fmt.Errorf("unknown network: %s", g.Network)
	}
	if g.Timestamp == 0 {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// Hash returns a tagged hash of the genesis configuration, used to identify
// the chain and detect genesis mismatches between peers.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.HashGenesis(data), nil
}
