package chain

import (
	"fmt"
	"math/big"

	"github.com/zion-chain/zion/config"
	"github.com/zion-chain/zion/internal/chainparams"
	"github.com/zion-chain/zion/pkg/block"
	"github.com/zion-chain/zion/pkg/tx"
	"github.com/zion-chain/zion/pkg/types"
)

// genesisTarget is the bootstrap difficulty target: the easiest target the
// PoW engine will accept, used only for the genesis block (height 0), which
// is never mined.
func genesisTarget() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}

// CreateGenesisBlock builds the genesis block from the genesis configuration.
// The genesis block has height 0, a zero ParentHash, and a single coinbase
// transaction paying the four fixed premine buckets (§4.10) — no subsidy, no
// fee output, since genesis has no predecessor to pay fees to the miner of.
func CreateGenesisBlock(gen *config.Genesis) (*block.Block, error) {
	if gen == nil {
		return nil, fmt.Errorf("genesis config is nil")
	}

	coinbase := buildPremineCoinbase(gen.Params())

	txs := []*tx.Transaction{coinbase}
	txHashes := []types.Hash{coinbase.Hash()}
	merkle := block.ComputeMerkleRoot(txHashes)

	header := &block.Header{
		Version:          block.CurrentVersion,
		ParentHash:       types.Hash{},
		MerkleRoot:       merkle,
		Timestamp:        gen.Timestamp,
		Height:           0,
		DifficultyTarget: genesisTarget(),
	}

	return block.NewBlock(header, txs), nil
}

// buildPremineCoinbase creates the genesis coinbase transaction: one output
// per premine bucket, each unlocked from height 0 (§4.10 — premine is not
// subject to coinbase maturity, since there is no prior chain to wait on).
func buildPremineCoinbase(params chainparams.Params) *tx.Transaction {
	outputs := make([]tx.Output, 0, len(params.Premine))
	for _, bucket := range params.Premine {
		outputs = append(outputs, tx.Output{
			Amount:     bucket.Coins * types.Coin,
			Recipient:  bucket.Address,
			LockHeight: 0,
		})
	}

	return &tx.Transaction{
		Version: 1,
		Inputs: []tx.Input{{
			PrevOut: types.Outpoint{}, // Zero outpoint marks a coinbase.
		}},
		Outputs: outputs,
	}
}
