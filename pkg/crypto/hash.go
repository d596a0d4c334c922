// Package crypto provides cryptographic primitives for Zion: domain-separated
// tagged hashing and Ed25519 signing.
package crypto

import (
	"github.com/zeebo/blake3"

	"github.com/zion-chain/zion/pkg/types"
)

// DomainPrefix namespaces every tagged hash so a digest computed for one role
// can never be reinterpreted as a digest for another, even if the underlying
// bytes happen to collide across roles.
const DomainPrefix = "zion/v1/"

// Tags identify the role a tagged hash is computed for.
const (
	TagTx       = "tx"
	TagHeader   = "header"
	TagMerkle   = "merkle"
	TagPoW      = "pow"
	TagSighash  = "sighash"
	TagUTXORoot = "utxo-root"
	TagGenesis  = "genesis"
)

// TaggedHash computes H(DomainPrefix || tag || 0x00 || msg), preventing any
// structure hashed under one tag from being reinterpreted as another.
func TaggedHash(tag string, msg []byte) types.Hash {
	buf := make([]byte, 0, len(DomainPrefix)+len(tag)+1+len(msg))
	buf = append(buf, DomainPrefix...)
	buf = append(buf, tag...)
	buf = append(buf, 0x00)
	buf = append(buf, msg...)
	return blake3.Sum256(buf)
}

// HashTx computes a transaction id from its canonical signing bytes.
func HashTx(msg []byte) types.Hash { return TaggedHash(TagTx, msg) }

// HashHeader computes a block header hash from its canonical signing bytes.
func HashHeader(msg []byte) types.Hash { return TaggedHash(TagHeader, msg) }

// HashPoW computes the opaque proof-of-work digest for a header. Zion's core
// treats the PoW function itself as an external collaborator (Cosmic Harmony
// v3, consumed as an opaque hash(header) -> 256-bit digest); this tagged
// BLAKE3 hash stands in for that opaque function in-tree so the validator's
// `H_pow(header) <= difficulty_target` check is self-contained and testable.
func HashPoW(msg []byte) types.Hash { return TaggedHash(TagPoW, msg) }

// HashSighash computes the canonical transaction signing digest.
func HashSighash(msg []byte) types.Hash { return TaggedHash(TagSighash, msg) }

// HashUTXORoot computes the UTXO set commitment digest.
func HashUTXORoot(msg []byte) types.Hash { return TaggedHash(TagUTXORoot, msg) }

// HashGenesis computes the genesis configuration digest used to identify a network.
func HashGenesis(msg []byte) types.Hash { return TaggedHash(TagGenesis, msg) }

// Hash computes a plain, untagged BLAKE3-256 hash. Used for concerns outside
// the five consensus-critical roles (HD key fingerprints, config digests,
// peer handshake nonces) where cross-role collision is not a security
// property being relied upon.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// DoubleHash computes Hash(Hash(data)).
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// HashConcat hashes the concatenation of two hashes with the plain,
// untagged hash. Non-consensus callers (tests, fixtures) use this; merkle
// tree construction itself uses the tagged HashMerkleNode below.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}

// HashMerkleNode hashes two child hashes together under the merkle tag.
func HashMerkleNode(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return TaggedHash(TagMerkle, buf[:])
}

// AddressFromPubKey derives an address from an Ed25519 public key.
// Address = H_tag("header"-independent tagged hash of the pubkey)[:20].
// It reuses no role tag above (pubkey hashing is part of the address codec,
// §4.3), so it is tagged separately here.
func AddressFromPubKey(pubKey []byte) types.Address {
	h := TaggedHash("address", pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}
