// Package chain implements the blockchain state machine.
package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/zion-chain/zion/config"
	"github.com/zion-chain/zion/internal/chainparams"
	"github.com/zion-chain/zion/internal/consensus"
	"github.com/zion-chain/zion/internal/storage"
	"github.com/zion-chain/zion/internal/utxo"
	"github.com/zion-chain/zion/pkg/block"
	"github.com/zion-chain/zion/pkg/tx"
	"github.com/zion-chain/zion/pkg/types"
)

// RevertedTxHandler is called after a reorg with transactions from reverted
// blocks that are not present in the new branch (for mempool re-insertion).
type RevertedTxHandler func(txs []*tx.Transaction)

// Chain represents a single blockchain instance with state, storage, and
// consensus.
type Chain struct {
	mu        sync.Mutex // Protects all state mutations (ProcessBlock, Reorg).
	state     *State
	blocks    *BlockStore
	utxos     utxo.Set
	engine    consensus.Engine
	validator *consensus.Validator
	params    chainparams.Params

	genesisHash types.Hash // Hash of the genesis block (immutable).

	revertedTxHandler RevertedTxHandler
}

// New creates a new chain with the given components.
func New(db storage.DB, utxoSet utxo.Set, engine consensus.Engine, params chainparams.Params) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if utxoSet == nil {
		return nil, fmt.Errorf("utxo set is nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("consensus engine is nil")
	}

	blocks := NewBlockStore(db)

	// Recover state from the block store.
	tipHash, height, supply, err := blocks.GetTip()
	if err != nil {
		return nil, fmt.Errorf("recover tip: %w", err)
	}

	cumWork := blocks.GetCumulativeWork()

	// Recover genesis hash for reorg protection.
	var genesisHash types.Hash
	genBlk, err := blocks.GetBlockByHeight(0)
	if err == nil {
		genesisHash = genBlk.Hash()
	}

	ch := &Chain{
		state:       &State{TipHash: tipHash, Height: height, Supply: supply, CumulativeWork: cumWork},
		blocks:      blocks,
		utxos:       utxoSet,
		engine:      engine,
		validator:   consensus.NewValidator(engine),
		params:      params,
		genesisHash: genesisHash,
	}

	// Check for incomplete reorg — if the node crashed mid-reorg, the UTXO
	// set may be inconsistent. Rebuild from blocks.
	if _, found := blocks.GetReorgCheckpoint(); found {
		if err := ch.RebuildUTXOs(); err != nil {
			return nil, fmt.Errorf("recover from interrupted reorg: %w", err)
		}
	}

	return ch, nil
}

// InitFromGenesis initializes a fresh chain from genesis configuration.
// Returns an error if the chain already has blocks.
func (c *Chain) InitFromGenesis(gen *config.Genesis) error {
	if !c.state.IsGenesis() {
		return fmt.Errorf("chain already initialized at height %d", c.state.Height)
	}

	blk, err := CreateGenesisBlock(gen)
	if err != nil {
		return fmt.Errorf("create genesis: %w", err)
	}

	// Genesis block bypasses consensus validation (no parent to check PoW
	// against, no predecessor timestamps). Apply directly: build UTXOs,
	// store the block, set tip.
	if err := c.applyBlock(blk); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}

	if err := c.blocks.PutBlock(blk); err != nil {
		return fmt.Errorf("store genesis: %w", err)
	}

	var supply uint64
	for _, out := range blk.Transactions[0].Outputs {
		supply += out.Amount
	}

	hash := blk.Hash()
	c.state.TipHash = hash
	c.state.Height = 0
	c.state.Supply = supply
	c.state.TipTimestamp = blk.Header.Timestamp
	c.state.CumulativeWork = new(big.Int)
	c.genesisHash = hash

	if err := c.blocks.SetTip(hash, 0, supply); err != nil {
		return fmt.Errorf("set genesis tip: %w", err)
	}
	if err := c.blocks.SetCumulativeWork(c.state.CumulativeWork); err != nil {
		return fmt.Errorf("set genesis cumulative work: %w", err)
	}
	if err := c.blocks.PutWork(hash, c.state.CumulativeWork); err != nil {
		return fmt.Errorf("record genesis work: %w", err)
	}

	return nil
}

// State returns a copy of the current chain state.
func (c *Chain) State() State {
	return *c.state
}

// Params returns the network's fixed consensus parameters.
func (c *Chain) Params() chainparams.Params {
	return c.params
}

// GetBlock retrieves a block by its hash.
func (c *Chain) GetBlock(hash types.Hash) (*block.Block, error) {
	return c.blocks.GetBlock(hash)
}

// GetBlockByHeight retrieves a block by its height.
func (c *Chain) GetBlockByHeight(height uint64) (*block.Block, error) {
	return c.blocks.GetBlockByHeight(height)
}

// Height returns the current chain height.
func (c *Chain) Height() uint64 {
	return c.state.Height
}

// TipHash returns the hash of the current chain tip.
func (c *Chain) TipHash() types.Hash {
	return c.state.TipHash
}

// Supply returns the total coins issued so far (premine plus cumulative
// subsidy), including coins sent to the burn address.
func (c *Chain) Supply() uint64 {
	return c.state.Supply
}

// TipTimestamp returns the timestamp of the current chain tip.
func (c *Chain) TipTimestamp() uint64 {
	return c.state.TipTimestamp
}

// CumulativeWork returns the chain's total accumulated proof-of-work.
func (c *Chain) CumulativeWork() *big.Int {
	return new(big.Int).Set(c.state.workOrZero())
}

// SetRevertedTxHandler sets the callback for transactions reverted during a
// reorg. These transactions should be re-added to the mempool if they are
// still valid.
func (c *Chain) SetRevertedTxHandler(fn RevertedTxHandler) {
	c.revertedTxHandler = fn
}

// headerHistory collects up to n ancestor header samples ending at height,
// oldest first, for LWMA retargeting and median-time-past.
func (c *Chain) headerHistory(height uint64, n int) ([]consensus.HeaderSample, error) {
	var samples []consensus.HeaderSample
	for h := height; len(samples) < n; {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			break
		}
		samples = append([]consensus.HeaderSample{{
			Timestamp: blk.Header.Timestamp,
			Target:    blk.Header.DifficultyTarget,
		}}, samples...)
		if h == 0 {
			break
		}
		h--
	}
	return samples, nil
}

// targetBlockTimeSeconds is chainparams.BlockTimeTarget expressed in seconds,
// as consumed by consensus.NextTarget.
func targetBlockTimeSeconds() int64 {
	return int64(chainparams.BlockTimeTarget / time.Second)
}

// timestampHistory collects up to MedianTimePastWindow trailing ancestor
// timestamps ending at height, oldest first.
func (c *Chain) timestampHistory(height uint64) []uint64 {
	var out []uint64
	for h := height; len(out) < chainparams.MedianTimePastWindow; {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			break
		}
		out = append([]uint64{blk.Header.Timestamp}, out...)
		if h == 0 {
			break
		}
		h--
	}
	return out
}

// ExpectedTarget computes the PoW difficulty target a block at the given
// height must meet, per the same LWMA DAA used by verifyDifficulty. Wired
// into consensus.PoW.TargetFn by the node so mined blocks carry a target
// that verifyDifficulty will accept.
func (c *Chain) ExpectedTarget(height uint64) *big.Int {
	if height == 0 {
		return new(big.Int).Set(c.engineInitialTarget())
	}
	history, err := c.headerHistory(height-1, chainparams.LWMAWindow+1)
	if err != nil || len(history) == 0 {
		return new(big.Int).Set(c.engineInitialTarget())
	}
	return consensus.NextTarget(history, targetBlockTimeSeconds(), chainparams.LWMAWindow)
}

// engineInitialTarget returns the PoW engine's bootstrap target, used before
// any history exists.
func (c *Chain) engineInitialTarget() *big.Int {
	if pow, ok := c.engine.(*consensus.PoW); ok && pow.InitialTarget != nil {
		return pow.InitialTarget
	}
	return new(big.Int).Lsh(big.NewInt(1), 256)
}

// verifyDifficulty checks that a PoW block's stated target matches the
// expected value computed from chain history via the LWMA DAA (§4.6).
func (c *Chain) verifyDifficulty(blk *block.Block) error {
	if blk.Header.Height == 0 {
		return nil // Genesis target is fixed, not DAA-derived.
	}

	history, err := c.headerHistory(blk.Header.Height-1, chainparams.LWMAWindow+1)
	if err != nil {
		return fmt.Errorf("collect header history: %w", err)
	}

	expected := consensus.NextTarget(history, targetBlockTimeSeconds(), chainparams.LWMAWindow)
	if expected.Cmp(blk.Header.DifficultyTarget) != 0 {
		return fmt.Errorf("difficulty target mismatch at height %d: want %s, got %s",
			blk.Header.Height, expected, blk.Header.DifficultyTarget)
	}
	return nil
}

// RebuildUTXOs clears the UTXO set and replays all blocks from genesis to the
// current tip, reconstructing the UTXO state. Used to recover from a crash
// during reorg where the UTXO set may be inconsistent.
func (c *Chain) RebuildUTXOs() error {
	store, ok := c.utxos.(*utxo.Store)
	if !ok {
		return fmt.Errorf("UTXO set does not support ClearAll (not *utxo.Store)")
	}

	if err := store.ClearAll(); err != nil {
		return fmt.Errorf("clear utxo set: %w", err)
	}

	var supply uint64
	cumWork := new(big.Int)
	for h := uint64(0); h <= c.state.Height; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			return fmt.Errorf("load block at height %d: %w", h, err)
		}

		blockReward := c.computeBlockReward(blk)

		undo, err := c.applyBlockWithUndo(blk)
		if err != nil {
			return fmt.Errorf("replay block at height %d: %w", h, err)
		}
		undo.BlockReward = blockReward

		undoBytes, err := json.Marshal(undo)
		if err != nil {
			return fmt.Errorf("marshal undo at height %d: %w", h, err)
		}
		if err := c.blocks.PutUndo(blk.Hash(), undoBytes); err != nil {
			return fmt.Errorf("store undo at height %d: %w", h, err)
		}

		supply += blockReward
		if h > 0 {
			cumWork = consensus.AddWork(cumWork, consensus.WorkFromTarget(blk.Header.DifficultyTarget))
		}
	}

	c.state.Supply = supply
	c.state.CumulativeWork = cumWork

	if err := c.blocks.SetTip(c.state.TipHash, c.state.Height, supply); err != nil {
		return fmt.Errorf("set tip after rebuild: %w", err)
	}
	if err := c.blocks.SetCumulativeWork(cumWork); err != nil {
		return fmt.Errorf("set cumulative work after rebuild: %w", err)
	}

	if err := c.blocks.DeleteReorgCheckpoint(); err != nil {
		return fmt.Errorf("delete reorg checkpoint: %w", err)
	}

	return nil
}

// GetTransaction looks up a confirmed transaction by hash via the tx index.
func (c *Chain) GetTransaction(hash types.Hash) (*tx.Transaction, error) {
	_, blockHash, err := c.blocks.GetTxLocation(hash)
	if err != nil {
		return nil, err
	}
	blk, err := c.blocks.GetBlock(blockHash)
	if err != nil {
		return nil, fmt.Errorf("load block for tx: %w", err)
	}
	for _, t := range blk.Transactions {
		if t.Hash() == hash {
			return t, nil
		}
	}
	return nil, fmt.Errorf("tx %s not found in block %s (index corrupt)", hash, blockHash)
}
