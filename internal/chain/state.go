package chain

import (
	"math/big"

	"github.com/zion-chain/zion/pkg/types"
)

// State holds the current chain tip state.
type State struct {
	Height         uint64
	TipHash        types.Hash
	Supply         uint64   // Total coins issued (premine + cumulative subsidy), burned coins included.
	CumulativeWork *big.Int // Accumulated proof-of-work for fork choice (§4.8).
	TipTimestamp   uint64   // Timestamp of the current tip block.
}

// IsGenesis returns true if no blocks have been processed yet.
func (s *State) IsGenesis() bool {
	return s.Height == 0 && s.TipHash.IsZero()
}

// workOrZero returns CumulativeWork, defaulting to zero if unset.
func (s *State) workOrZero() *big.Int {
	if s.CumulativeWork == nil {
		return new(big.Int)
	}
	return s.CumulativeWork
}
