package block

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/zion-chain/zion/pkg/crypto"
	"github.com/zion-chain/zion/pkg/types"
)

// TargetSize is the width, in bytes, of a canonically encoded u256 difficulty target.
const TargetSize = 32

// Header contains block metadata.
type Header struct {
	Version          uint32     `json:"version"`
	ParentHash       types.Hash `json:"parent_hash"`
	MerkleRoot       types.Hash `json:"merkle_root"`
	Timestamp        uint64     `json:"timestamp"`
	Height           uint64     `json:"height"`
	DifficultyTarget *big.Int   `json:"difficulty_target"` // u256, PoW hash must be <= target
	Nonce            uint64     `json:"nonce"`
}

// headerJSON is the JSON representation of Header with a hex-encoded target.
type headerJSON struct {
	Version          uint32     `json:"version"`
	ParentHash       types.Hash `json:"parent_hash"`
	MerkleRoot       types.Hash `json:"merkle_root"`
	Timestamp        uint64     `json:"timestamp"`
	Height           uint64     `json:"height"`
	DifficultyTarget string     `json:"difficulty_target"`
	Nonce            uint64     `json:"nonce"`
}

// MarshalJSON encodes the header with a hex-encoded difficulty target.
func (h *Header) MarshalJSON() ([]byte, error) {
	target := h.DifficultyTarget
	if target == nil {
		target = new(big.Int)
	}
	return json.Marshal(headerJSON{
		Version:          h.Version,
		ParentHash:       h.ParentHash,
		MerkleRoot:       h.MerkleRoot,
		Timestamp:        h.Timestamp,
		Height:           h.Height,
		DifficultyTarget: fmt.Sprintf("%064x", target),
		Nonce:            h.Nonce,
	})
}

// UnmarshalJSON decodes a header with a hex-encoded difficulty target.
func (h *Header) UnmarshalJSON(data []byte) error {
	var j headerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	h.Version = j.Version
	h.ParentHash = j.ParentHash
	h.MerkleRoot = j.MerkleRoot
	h.Timestamp = j.Timestamp
	h.Height = j.Height
	h.Nonce = j.Nonce
	target, ok := new(big.Int).SetString(j.DifficultyTarget, 16)
	if !ok {
		return fmt.Errorf("invalid difficulty_target hex: %q", j.DifficultyTarget)
	}
	h.DifficultyTarget = target
	return nil
}

// Hash computes the tagged block header hash.
func (h *Header) Hash() types.Hash {
	return crypto.HashHeader(h.SigningBytes())
}

// PoWHash computes the opaque proof-of-work digest for this header.
func (h *Header) PoWHash() types.Hash {
	return crypto.HashPoW(h.SigningBytes())
}

// targetBytes returns the difficulty target as a canonical 32-byte big-endian array.
func (h *Header) targetBytes() [TargetSize]byte {
	var out [TargetSize]byte
	if h.DifficultyTarget == nil {
		return out
	}
	h.DifficultyTarget.FillBytes(out[:])
	return out
}

// SigningBytes returns the canonical bytes for hashing/signing.
// Format: version(4) | parent_hash(32) | merkle_root(32) | timestamp(8) | height(8) | difficulty_target(32) | nonce(8)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 4+32+32+8+8+TargetSize+8)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.ParentHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	target := h.targetBytes()
	buf = append(buf, target[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	return buf
}
