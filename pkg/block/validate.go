package block

import (
	"errors"
	"fmt"

	"github.com/zion-chain/zion/internal/chainparams"
	"github.com/zion-chain/zion/pkg/tx"
	"github.com/zion-chain/zion/pkg/types"
)

// Validation errors.
var (
	ErrNilHeader           = errors.New("block has nil header")
	ErrNoTransactions      = errors.New("block has no transactions")
	ErrBadMerkleRoot       = errors.New("merkle root mismatch")
	ErrBadVersion          = errors.New("unsupported block version")
	ErrZeroTimestamp       = errors.New("block timestamp is zero")
	ErrNilTarget           = errors.New("block has nil difficulty target")
	ErrNoCoinbase          = errors.New("first transaction must be coinbase")
	ErrTooManyTxs          = errors.New("too many transactions in block")
	ErrBlockTooLarge       = errors.New("block too large")
	ErrDuplicateTxID       = errors.New("duplicate transaction id in block")
	ErrDuplicateBlockInput = errors.New("duplicate input across transactions in block")
	ErrMultipleCoinbase    = errors.New("multiple coinbase transactions in block")
)

// Block version constants.
const (
	CurrentVersion = 1 // The current block version produced by this software.
	MaxVersion     = 1 // Bump when a fork introduces a new block version.
)

// Validate runs the context-free block checks of §4.7: structural decoding
// invariants, coinbase placement, no duplicate tx ids, merkle root, and size.
// It does not check anything that requires knowledge of the parent or the
// UTXO set — see internal/consensus for the contextual checks.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}

	if b.Header.Version < 1 || b.Header.Version > MaxVersion {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrBadVersion, b.Header.Version, MaxVersion)
	}

	if b.Header.Timestamp == 0 {
		return ErrZeroTimestamp
	}

	if b.Header.DifficultyTarget == nil {
		return ErrNilTarget
	}

	if len(b.Transactions) == 0 {
		return ErrNoTransactions
	}

	if len(b.Transactions) > chainparams.MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), chainparams.MaxBlockTxs)
	}

	// Check total block size (header signing bytes + all tx signing bytes).
	// MAX_BLOCK_BYTES is a hard consensus limit (§9 Open Question resolution).
	blockSize := len(b.Header.SigningBytes())
	for _, t := range b.Transactions {
		blockSize += len(t.SigningBytes())
	}
	if blockSize > chainparams.MaxBlockBytes {
		return fmt.Errorf("%w: %d bytes, max %d", ErrBlockTooLarge, blockSize, chainparams.MaxBlockBytes)
	}

	// Verify coinbase: first tx must have a single zero-outpoint input.
	if !isCoinbase(b.Transactions[0]) {
		return ErrNoCoinbase
	}
	// Exactly one coinbase transaction per block.
	for i, t := range b.Transactions[1:] {
		for _, in := range t.Inputs {
			if in.PrevOut.IsZero() {
				return fmt.Errorf("tx %d: %w", i+1, ErrMultipleCoinbase)
			}
		}
	}

	// No duplicate tx_id within the block, and merkle root matches.
	txHashes := make([]types.Hash, len(b.Transactions))
	seen := make(map[types.Hash]int, len(b.Transactions))
	for i, t := range b.Transactions {
		h := t.Hash()
		if prev, dup := seen[h]; dup {
			return fmt.Errorf("tx %d: %w: same id as tx %d", i, ErrDuplicateTxID, prev)
		}
		seen[h] = i
		txHashes[i] = h
	}
	expectedRoot := ComputeMerkleRoot(txHashes)
	if b.Header.MerkleRoot != expectedRoot {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadMerkleRoot, b.Header.MerkleRoot, expectedRoot)
	}

	// Validate each transaction structurally.
	for i, t := range b.Transactions {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	// Check for duplicate spent outpoints across different transactions in the block.
	// (Per-tx duplicates are caught by tx.Validate above.)
	allInputs := make(map[types.Outpoint]int) // outpoint -> tx index
	for i, t := range b.Transactions {
		for _, in := range t.Inputs {
			if in.PrevOut.IsZero() {
				continue // Coinbase inputs.
			}
			if prevTx, exists := allInputs[in.PrevOut]; exists {
				return fmt.Errorf("tx %d: %w: outpoint %s also spent in tx %d",
					i, ErrDuplicateBlockInput, in.PrevOut, prevTx)
			}
			allInputs[in.PrevOut] = i
		}
	}

	return nil
}

// isCoinbase returns true if the transaction has a single zero-outpoint input.
func isCoinbase(t *tx.Transaction) bool {
	return len(t.Inputs) == 1 && t.Inputs[0].PrevOut.IsZero()
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}

// Size returns the block's canonical encoded size in bytes.
func (b *Block) Size() int {
	size := len(b.Header.SigningBytes())
	for _, t := range b.Transactions {
		size += len(t.SigningBytes())
	}
	return size
}
