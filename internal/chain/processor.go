package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/zion-chain/zion/internal/chainparams"
	"github.com/zion-chain/zion/internal/consensus"
	"github.com/zion-chain/zion/internal/utxo"
	"github.com/zion-chain/zion/pkg/block"
	"github.com/zion-chain/zion/pkg/tx"
	"github.com/zion-chain/zion/pkg/types"
)

// Block processing errors.
var (
	ErrBlockKnown             = errors.New("block already known")
	ErrPrevNotFound           = errors.New("previous block not found")
	ErrBadHeight              = errors.New("block height does not follow parent")
	ErrBadPrevHash            = errors.New("parent_hash does not match current tip")
	ErrApplyUTXO              = errors.New("failed to apply UTXO changes")
	ErrBadCoinbaseTx          = errors.New("invalid coinbase transaction")
	ErrCoinbaseRewardExceeded = errors.New("coinbase reward exceeds consensus limit")
	ErrCoinbaseFeeBurnInvalid = errors.New("coinbase does not burn collected fees")
)

// ProcessBlock validates a block and applies it to the chain. It checks
// structural validity, consensus rules, UTXO state, then updates the UTXO
// set, block store, and chain tip. If the block extends a fork heavier than
// the current chain, a reorg is triggered automatically.
func (c *Chain) ProcessBlock(blk *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}

	hash := blk.Hash()

	known, err := c.blocks.HasBlock(hash)
	if err != nil {
		return fmt.Errorf("check block: %w", err)
	}
	if known {
		return ErrBlockKnown
	}

	// Check parent linkage first — the correct height is needed before
	// verifying difficulty and running consensus validation.
	parentErr := c.checkParentLink(blk)
	if parentErr != nil && !errors.Is(parentErr, ErrForkDetected) {
		return parentErr
	}

	// Fork blocks are re-verified during reorg replay; only verify
	// difficulty against chain history on the fast path.
	if !errors.Is(parentErr, ErrForkDetected) {
		if err := c.verifyDifficulty(blk); err != nil {
			return err
		}
	}

	prevTimestamps := c.timestampHistory(blk.Header.Height - 1)
	if err := c.validator.ValidateBlock(blk, prevTimestamps, uint64(time.Now().Unix())); err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	if errors.Is(parentErr, ErrForkDetected) {
		if err := c.blocks.StoreBlock(blk); err != nil {
			return fmt.Errorf("store fork block: %w", err)
		}
		// PoW difficulty can make a shorter-height branch heavier; always
		// let Reorg compare cumulative work to decide.
		if err := c.Reorg(hash); err != nil {
			return fmt.Errorf("reorg: %w", err)
		}
		return nil
	}

	// Fast path: block extends current tip.

	if err := c.validateBlockState(blk); err != nil {
		return err
	}

	// Compute block reward before applying, while inputs are still in the
	// UTXO set (reward = coinbase value - total fees).
	blockReward := c.computeBlockReward(blk)

	undo, err := c.applyBlockWithUndo(blk)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrApplyUTXO, err)
	}
	undo.BlockReward = blockReward

	undoBytes, err := json.Marshal(undo)
	if err != nil {
		return fmt.Errorf("marshal undo: %w", err)
	}

	newSupply := c.state.Supply + blockReward
	newWork := consensus.AddWork(c.state.workOrZero(), consensus.WorkFromTarget(blk.Header.DifficultyTarget))

	if err := c.blocks.CommitBlock(blk, undoBytes, newSupply, newWork); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}

	c.state.Supply = newSupply
	c.state.CumulativeWork = newWork
	c.state.TipHash = hash
	c.state.Height = blk.Header.Height
	c.state.TipTimestamp = blk.Header.Timestamp

	return nil
}

// validateBlockState checks UTXO-dependent rules: coinbase shape,
// transaction signatures and fees, and the emission cap.
func (c *Chain) validateBlockState(blk *block.Block) error {
	coinbaseTx := blk.Transactions[0]

	if len(coinbaseTx.Inputs) != 1 || !coinbaseTx.Inputs[0].PrevOut.IsZero() {
		return ErrBadCoinbaseTx
	}

	utxoProvider := c.utxoProvider()

	var totalFees types.Amount
	for i, transaction := range blk.Transactions {
		if i == 0 {
			continue // Coinbase: no inputs to validate against the UTXO set.
		}
		fee, err := transaction.ValidateWithUTXOs(utxoProvider, c.params.BurnAddress, blk.Header.Height)
		if err != nil {
			return fmt.Errorf("tx %d validation: %w", i, err)
		}
		if totalFees > math.MaxUint64-fee {
			return fmt.Errorf("tx %d fee overflow", i)
		}
		totalFees += fee
	}

	// Collected fees must be burned through a dedicated coinbase output to
	// params.BurnAddress, exactly Σfees, never folded into the miner's own
	// payout (§4.7). Whatever remains after the burn output(s) is the
	// miner's mint, which must equal the fixed per-height subsidy exactly.
	coinbaseTotal, err := coinbaseTx.TotalOutputValue()
	if err != nil {
		return fmt.Errorf("coinbase output overflow: %w", err)
	}
	var burned types.Amount
	for _, out := range coinbaseTx.Outputs {
		if out.Recipient != c.params.BurnAddress {
			continue
		}
		if burned > math.MaxUint64-out.Amount {
			return fmt.Errorf("coinbase burn output overflow")
		}
		burned += out.Amount
	}
	if burned != totalFees {
		return fmt.Errorf("%w: burned=%d fees=%d", ErrCoinbaseFeeBurnInvalid, burned, totalFees)
	}

	minted := coinbaseTotal - burned
	allowedMint := chainparams.Subsidy(blk.Header.Height)
	if minted != allowedMint {
		return fmt.Errorf("%w: minted=%d allowed=%d", ErrCoinbaseRewardExceeded, minted, allowedMint)
	}

	// Only transaction 0 may carry a coinbase marker input.
	for i, transaction := range blk.Transactions[1:] {
		for _, in := range transaction.Inputs {
			if in.PrevOut.IsZero() {
				return fmt.Errorf("%w: tx %d contains coinbase input", ErrBadCoinbaseTx, i+1)
			}
		}
	}

	return nil
}

// utxoProvider returns the chain's UTXO set as a tx.UTXOProvider. *utxo.Store
// already implements the interface directly; for other Set implementations
// this falls back to Get/Has.
func (c *Chain) utxoProvider() tx.UTXOProvider {
	if p, ok := c.utxos.(tx.UTXOProvider); ok {
		return p
	}
	return utxoSetAdapter{set: c.utxos}
}

type utxoSetAdapter struct {
	set utxo.Set
}

func (a utxoSetAdapter) GetUTXO(outpoint types.Outpoint) (tx.UTXOEntry, error) {
	u, err := a.set.Get(outpoint)
	if err != nil {
		return tx.UTXOEntry{}, err
	}
	return tx.UTXOEntry{Output: u.Output, Height: u.Height, IsCoinbase: u.Coinbase}, nil
}

func (a utxoSetAdapter) HasUTXO(outpoint types.Outpoint) bool {
	ok, err := a.set.Has(outpoint)
	return err == nil && ok
}

// checkParentLink verifies that the block's ParentHash and Height are
// consistent with the current chain tip.
func (c *Chain) checkParentLink(blk *block.Block) error {
	if c.state.IsGenesis() {
		if blk.Header.Height != 0 {
			return fmt.Errorf("%w: genesis must be height 0, got %d", ErrBadHeight, blk.Header.Height)
		}
		if !blk.Header.ParentHash.IsZero() {
			return fmt.Errorf("%w: genesis must have zero parent_hash", ErrBadPrevHash)
		}
		return nil
	}

	if blk.Header.ParentHash == c.state.TipHash {
		expectedHeight := c.state.Height + 1
		if blk.Header.Height != expectedHeight {
			return fmt.Errorf("%w: want %d, got %d", ErrBadHeight, expectedHeight, blk.Header.Height)
		}
		return nil
	}

	parentKnown, err := c.blocks.HasBlock(blk.Header.ParentHash)
	if err != nil {
		return fmt.Errorf("check parent: %w", err)
	}
	if parentKnown {
		parentBlk, err := c.blocks.GetBlock(blk.Header.ParentHash)
		if err != nil {
			return fmt.Errorf("load parent block: %w", err)
		}
		expectedHeight := parentBlk.Header.Height + 1
		if blk.Header.Height != expectedHeight {
			return fmt.Errorf("%w: parent height %d implies %d, got %d",
				ErrBadHeight, parentBlk.Header.Height, expectedHeight, blk.Header.Height)
		}
		return fmt.Errorf("%w: block %d forks from %s", ErrForkDetected, blk.Header.Height, blk.Header.ParentHash)
	}
	return ErrPrevNotFound
}

// computeBlockReward returns the new coins minted by this block:
// coinbase output total minus the fees burned from non-coinbase
// transactions. Must be called before applyBlock, while spent inputs are
// still present in the UTXO set.
func (c *Chain) computeBlockReward(blk *block.Block) uint64 {
	if len(blk.Transactions) == 0 || len(blk.Transactions[0].Outputs) == 0 {
		return 0
	}

	coinbaseValue, err := blk.Transactions[0].TotalOutputValue()
	if err != nil {
		return 0
	}

	var totalFees uint64
	for _, transaction := range blk.Transactions[1:] {
		totalFees += c.computeTxFee(transaction)
	}

	if coinbaseValue > totalFees {
		return coinbaseValue - totalFees
	}
	return 0
}

// computeTxFee calculates a single transaction's fee: sum(input values) -
// sum(output values). Must be called before applyBlock.
func (c *Chain) computeTxFee(transaction *tx.Transaction) uint64 {
	var inputSum, outputSum uint64
	for _, in := range transaction.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		u, err := c.utxos.Get(in.PrevOut)
		if err != nil {
			continue
		}
		if inputSum > math.MaxUint64-u.Output.Amount {
			continue
		}
		inputSum += u.Output.Amount
	}
	for _, out := range transaction.Outputs {
		if outputSum > math.MaxUint64-out.Amount {
			continue
		}
		outputSum += out.Amount
	}
	if inputSum > outputSum {
		return inputSum - outputSum
	}
	return 0
}

// applyBlock updates the UTXO set: spends inputs and creates outputs.
// The coinbase input (zero outpoint) is skipped during spending.
func (c *Chain) applyBlock(blk *block.Block) error {
	for txIdx, transaction := range blk.Transactions {
		txHash := transaction.Hash()
		isCoinbase := txIdx == 0

		for _, in := range transaction.Inputs {
			if in.PrevOut.IsZero() {
				continue
			}
			if err := c.utxos.Delete(in.PrevOut); err != nil {
				return fmt.Errorf("spend %s: %w", in.PrevOut, err)
			}
		}

		for i, out := range transaction.Outputs {
			u := &utxo.UTXO{
				Outpoint: types.Outpoint{TxID: txHash, Index: uint32(i)},
				Output:   out,
				Height:   blk.Header.Height,
				Coinbase: isCoinbase,
			}
			if err := c.utxos.Put(u); err != nil {
				return fmt.Errorf("create output %s:%d: %w", txHash, i, err)
			}
		}
	}
	return nil
}
