// Package chainparams holds the immutable, network-wide consensus constants
// (§4.1) that every node must agree on. Unlike the config package, nothing here
// is a per-node operational choice.
package chainparams

import (
	"time"

	"github.com/zion-chain/zion/pkg/crypto"
	"github.com/zion-chain/zion/pkg/types"
)

// Network identifies which fixed parameter set and genesis a node runs.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Devnet  Network = "devnet"
)

// Consensus-critical constants shared by every network (§4.1).
const (
	// BlockTimeTarget is the DAA's target seconds between blocks.
	BlockTimeTarget = 60 * time.Second

	// BlockReward is the constant per-block subsidy in atomic units
	// (5,400.067 coins at 6 decimals). No halving.
	BlockReward types.Amount = 5_400_067_000

	// MiningSupplyCapHeight is the last height at which the subsidy is paid;
	// subsidy is 0 for height > MiningSupplyCapHeight.
	MiningSupplyCapHeight uint64 = 23_652_000

	// MiningSupplyCapCoins is the total mined subsidy over the mining era, in coins.
	MiningSupplyCapCoins uint64 = 127_720_000_000

	// GenesisPremineCoins is the total genesis allocation, in coins.
	GenesisPremineCoins uint64 = 16_280_000_000

	// TotalSupplyCoins is the maximum coin supply ever in existence
	// (premine + full mining era), ignoring burns.
	TotalSupplyCoins uint64 = GenesisPremineCoins + MiningSupplyCapCoins

	// CoinbaseMaturity is the number of blocks a coinbase output must age
	// before it is spendable.
	CoinbaseMaturity uint64 = 100

	// MaxReorgDepth bounds how many blocks may be disconnected in a reorg.
	MaxReorgDepth uint64 = 10

	// SoftFinality is the advisory depth beyond which consumers treat blocks
	// as final. Not a consensus rule.
	SoftFinality uint64 = 60

	// LWMAWindow is the number of trailing headers the DAA averages over.
	LWMAWindow = 60

	// DAAClampPercent bounds the per-block difficulty-target change to ±this
	// percentage of the previous block's target.
	DAAClampPercent = 25

	// MaxTimestampDrift is how far into the future a header timestamp may be,
	// relative to the local clock.
	MaxTimestampDrift = 120 * time.Second

	// MedianTimePastWindow is the number of preceding headers used for the
	// timestamp lower bound (§9 Open Question resolution: median-time-past).
	MedianTimePastWindow = 11

	// MaxBlockBytes is a hard consensus limit on canonical-encoded block size
	// (§9 Open Question resolution: treated as hard, not soft).
	MaxBlockBytes = 1 << 20 // 1 MiB

	// MaxBlockTxs bounds the number of transactions per block, including coinbase.
	MaxBlockTxs = 20_000

	// MaxTxInputs bounds the number of inputs per transaction.
	MaxTxInputs = 2_500

	// MaxTxOutputs bounds the number of outputs per transaction.
	MaxTxOutputs = 2_500

	// MinSolveTimeSeconds is the floor applied to a clamped LWMA solve time (§4.6).
	MinSolveTimeSeconds int64 = 1

	// MaxSolveTimeMultiple bounds a solve time to this multiple of BlockTimeTarget (§4.6).
	MaxSolveTimeMultiple int64 = 6
)

// Subsidy returns the miner-claimable block subsidy at the given height.
// Height 0 is genesis (replaced by the fixed premine, not a subsidy);
// heights 1..MiningSupplyCapHeight pay BlockReward; beyond that, 0.
func Subsidy(height uint64) types.Amount {
	if height == 0 || height > MiningSupplyCapHeight {
		return 0
	}
	return BlockReward
}

// Params is the full network-specific constant set: the burn address, the
// four premine buckets, and the mempool admission floor.
type Params struct {
	Network       Network
	AddressHRP    string
	BurnAddress   types.Address
	Premine       [4]PremineBucket
	MinFeePerByte types.Amount
}

// PremineBucket is one of the four fixed genesis allocations (§4.10).
type PremineBucket struct {
	Name    string
	Coins   uint64
	Address types.Address
}

// deriveFixedAddress derives a deterministic, privately-unspendable address
// from a label. Used for the burn address and the premine recipients: there
// is no real keypair behind any of them, only a tagged hash of a label, so
// "no known private key" is true by construction.
func deriveFixedAddress(label string) types.Address {
	h := crypto.TaggedHash("genesis-address", []byte(label))
	var a types.Address
	copy(a[:], h[:types.AddressSize])
	return a
}

// ForNetwork returns the fixed parameter set for a network.
func ForNetwork(n Network) Params {
	switch n {
	case Testnet:
		return paramsFor(Testnet, types.TestnetHRP, 1)
	case Devnet:
		return paramsFor(Devnet, types.DevnetHRP, 1)
	default:
		return paramsFor(Mainnet, types.MainnetHRP, 10)
	}
}

func paramsFor(network Network, hrp string, minFeePerByte types.Amount) Params {
	return Params{
		Network:     network,
		AddressHRP:  hrp,
		BurnAddress: deriveFixedAddress(string(network) + "/burn"),
		Premine: [4]PremineBucket{
			{Name: "mining-operators", Coins: 8_250_000_000, Address: deriveFixedAddress(string(network) + "/premine/mining-operators")},
			{Name: "dao-treasury", Coins: 4_000_000_000, Address: deriveFixedAddress(string(network) + "/premine/dao-treasury")},
			{Name: "infrastructure", Coins: 2_500_000_000, Address: deriveFixedAddress(string(network) + "/premine/infrastructure")},
			{Name: "humanitarian-fund", Coins: 1_530_000_000, Address: deriveFixedAddress(string(network) + "/premine/humanitarian-fund")},
		},
		MinFeePerByte: minFeePerByte,
	}
}
