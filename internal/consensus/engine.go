// Package consensus defines consensus engine interfaces.
package consensus

import "github.com/zion-chain/zion/pkg/block"

// Engine is the interface for consensus implementations.
type Engine interface {
	VerifyHeader(header *block.Header) error
	Prepare(header *block.Header) error
	Seal(blk *block.Block) error
}
