package utxo

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/zion-chain/zion/pkg/block"
	"github.com/zion-chain/zion/pkg/crypto"
	"github.com/zion-chain/zion/pkg/types"
)

// Commitment computes a merkle root over all UTXOs in the store, tagged as
// the utxo-root domain. Each UTXO is hashed deterministically, the hashes
// are sorted, and a merkle tree is built from them. Returns a zero hash for
// an empty set.
func Commitment(store *Store) (types.Hash, error) {
	var hashes []types.Hash

	err := store.ForEach(func(u *UTXO) error {
		hashes = append(hashes, hashUTXO(u))
		return nil
	})
	if err != nil {
		return types.Hash{}, fmt.Errorf("utxo commitment: %w", err)
	}

	if len(hashes) == 0 {
		return types.Hash{}, nil
	}

	// Sort for deterministic ordering (map iteration order varies).
	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i].Less(hashes[j])
	})

	return block.ComputeMerkleRoot(hashes), nil
}

// hashUTXO produces a deterministic tagged hash of a UTXO.
// Format: txid(32) | index(4) | amount(8) | recipient(20) | lock_height(8) | height(8) | coinbase(1)
func hashUTXO(u *UTXO) types.Hash {
	var buf []byte
	buf = append(buf, u.Outpoint.TxID[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, u.Outpoint.Index)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(u.Output.Amount))
	buf = append(buf, u.Output.Recipient[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, u.Output.LockHeight)
	buf = binary.LittleEndian.AppendUint64(buf, u.Height)
	if u.Coinbase {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return crypto.HashUTXORoot(buf)
}
