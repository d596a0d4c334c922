package consensus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/zion-chain/zion/pkg/block"
	"github.com/zion-chain/zion/pkg/crypto"
)

// PoW errors.
var (
	ErrInsufficientWork = errors.New("hash does not meet difficulty target")
	ErrNilTarget        = errors.New("difficulty target must be set")
	ErrBadDifficulty    = errors.New("block difficulty target does not match expected")
)

// maxUint256 is 2^256 - 1, the easiest possible target.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// PoW implements proof-of-work consensus over a u256 difficulty target
// carried in the block header. The target itself is derived by the LWMA
// difficulty adjustment algorithm (§4.6) and is consensus-enforced: nodes
// recompute it independently from chain history rather than trusting the
// value a peer sends.
type PoW struct {
	InitialTarget   *big.Int // Target used by Prepare when TargetFn is nil, and by Chain.ExpectedTarget when no header history exists.
	TargetBlockTime int64    // Target seconds between blocks.

	// TargetFn computes the expected difficulty target for a new block from
	// chain history. Set by the node operator on startup. If nil, Prepare
	// falls back to InitialTarget.
	TargetFn func(height uint64) *big.Int

	// Threads controls the number of parallel mining goroutines.
	// 0 or 1 = single-threaded (default). Each goroutine searches a
	// strided partition of the nonce space.
	Threads int
}

// NewPoW creates a new PoW engine with the given bootstrap target.
func NewPoW(initialTarget *big.Int, targetBlockTime int64) (*PoW, error) {
	if initialTarget == nil || initialTarget.Sign() <= 0 {
		return nil, ErrNilTarget
	}
	return &PoW{
		InitialTarget:   new(big.Int).Set(initialTarget),
		TargetBlockTime: targetBlockTime,
	}, nil
}

// VerifyHeader checks that the header's PoW hash meets its stated target.
func (p *PoW) VerifyHeader(header *block.Header) error {
	if header.DifficultyTarget == nil || header.DifficultyTarget.Sign() <= 0 {
		return ErrNilTarget
	}
	hash := header.PoWHash()
	hashInt := new(big.Int).SetBytes(hash[:])
	if hashInt.Cmp(header.DifficultyTarget) > 0 {
		return ErrInsufficientWork
	}
	return nil
}

// Prepare sets the block header's difficulty target for mining.
// If TargetFn is set, it computes the expected target from chain state.
// Otherwise it uses InitialTarget.
func (p *PoW) Prepare(header *block.Header) error {
	if p.TargetFn != nil {
		header.DifficultyTarget = p.TargetFn(header.Height)
	} else {
		header.DifficultyTarget = new(big.Int).Set(p.InitialTarget)
	}
	return nil
}

// Seal mines the block by iterating the nonce until the header's PoW hash
// meets the target already set in the header. If Threads > 1, mining runs
// in parallel goroutines.
func (p *PoW) Seal(blk *block.Block) error {
	return p.SealWithCancel(context.Background(), blk)
}

// SealWithCancel mines the block with cancellation support. When the
// context is cancelled, mining stops and ctx.Err() is returned.
func (p *PoW) SealWithCancel(ctx context.Context, blk *block.Block) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}
	if blk.Header.DifficultyTarget == nil || blk.Header.DifficultyTarget.Sign() <= 0 {
		return ErrNilTarget
	}

	threads := p.Threads
	if threads <= 1 {
		return p.sealSingle(ctx, blk)
	}
	return p.sealParallel(ctx, blk, threads)
}

// signingPrefix returns the header's signing bytes without the trailing
// 8-byte nonce, so a mining goroutine can precompute it once and only
// append+hash the nonce per iteration.
func signingPrefix(h *block.Header) []byte {
	buf := h.SigningBytes()
	return buf[:len(buf)-8]
}

// sealSingle mines with a single goroutine.
func (p *PoW) sealSingle(ctx context.Context, blk *block.Block) error {
	target := blk.Header.DifficultyTarget
	prefix := signingPrefix(blk.Header)
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	hashInt := new(big.Int)

	for nonce := uint64(0); ; nonce++ {
		if nonce&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		binary.LittleEndian.PutUint64(buf[len(prefix):], nonce)
		hash := crypto.HashPoW(buf)
		hashInt.SetBytes(hash[:])
		if hashInt.Cmp(target) <= 0 {
			blk.Header.Nonce = nonce
			return nil
		}
		if nonce == ^uint64(0) {
			return fmt.Errorf("nonce space exhausted")
		}
	}
}

// sealParallel mines with multiple goroutines, each searching a strided
// partition of the nonce space (goroutine i starts at nonce=i, step=threads).
func (p *PoW) sealParallel(ctx context.Context, blk *block.Block, threads int) error {
	target := blk.Header.DifficultyTarget
	prefix := signingPrefix(blk.Header)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		nonce uint64
		err   error
	}
	found := make(chan result, 1)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		startNonce := uint64(i)
		stride := uint64(threads)
		go func() {
			defer wg.Done()
			buf := make([]byte, len(prefix)+8)
			copy(buf, prefix)
			hashInt := new(big.Int)

			for nonce := startNonce; ; nonce += stride {
				if (nonce/stride)&0xFFFF == 0 && nonce > 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				binary.LittleEndian.PutUint64(buf[len(prefix):], nonce)
				hash := crypto.HashPoW(buf)
				hashInt.SetBytes(hash[:])
				if hashInt.Cmp(target) <= 0 {
					select {
					case found <- result{nonce: nonce}:
					default:
					}
					cancel()
					return
				}

				if nonce > ^uint64(0)-stride {
					select {
					case found <- result{err: fmt.Errorf("nonce space exhausted")}:
					default:
					}
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			return fmt.Errorf("nonce space exhausted")
		}
		if r.err != nil {
			return r.err
		}
		blk.Header.Nonce = r.nonce
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HeaderSample is one entry of chain history fed to the LWMA.
type HeaderSample struct {
	Timestamp uint64
	Target    *big.Int
}

const (
	lwmaMinSolveTime int64 = 1
	lwmaMaxSolveTime int64 = 6
	daaClampPercent        = 25
)

// NextTarget computes the next block's difficulty target using a
// linearly-weighted moving average over history (the trailing window, most
// recent last). history must not include the new block itself. window is
// the configured LWMA window (60 per consensus rules); fewer samples than
// the window are used verbatim during the bootstrap period.
//
// The algorithm: weight solve times 1..N (oldest to newest), weight targets
// the same way, and scale the weighted-average target so the weighted
// average solve time equals targetBlockTime. The result is clamped to
// ±daaClampPercent% of the most recent block's target.
func NextTarget(history []HeaderSample, targetBlockTime int64, window int) *big.Int {
	if len(history) < 2 {
		return clampTarget(bootstrapTargetFrom(history), nil, targetBlockTime)
	}

	if len(history) > window+1 {
		history = history[len(history)-(window+1):]
	}

	n := len(history) - 1 // Number of solve-time samples.

	weightedSolveTime := new(big.Int)
	weightedTarget := new(big.Int)
	sumWeight := int64(n) * int64(n+1) / 2

	for i := 1; i <= n; i++ {
		solveTime := int64(history[i].Timestamp) - int64(history[i-1].Timestamp)
		if solveTime < lwmaMinSolveTime {
			solveTime = lwmaMinSolveTime
		}
		maxSolve := lwmaMaxSolveTime * targetBlockTime
		if solveTime > maxSolve {
			solveTime = maxSolve
		}

		weight := int64(i)
		weightedSolveTime.Add(weightedSolveTime, big.NewInt(weight*solveTime))
		weightedTarget.Add(weightedTarget, new(big.Int).Mul(big.NewInt(weight), history[i].Target))
	}

	// avgTarget = weightedTarget / sumWeight
	// avgSolveTime = weightedSolveTime / sumWeight
	// next = avgTarget * avgSolveTime / targetBlockTime
	next := new(big.Int).Mul(weightedTarget, weightedSolveTime)
	denom := new(big.Int).Mul(big.NewInt(sumWeight), big.NewInt(sumWeight*targetBlockTime))
	if denom.Sign() == 0 {
		denom = big.NewInt(1)
	}
	next.Div(next, denom)

	prevTarget := history[len(history)-1].Target
	return clampTarget(next, prevTarget, targetBlockTime)
}

// bootstrapTargetFrom returns a starting target for the bootstrap window
// when there isn't enough history for a full LWMA computation.
func bootstrapTargetFrom(history []HeaderSample) *big.Int {
	if len(history) == 0 {
		return new(big.Int).Set(maxUint256)
	}
	return new(big.Int).Set(history[len(history)-1].Target)
}

// clampTarget restricts next to within ±daaClampPercent% of prev (if prev is
// non-nil), and to the valid target range [1, maxUint256].
func clampTarget(next, prev *big.Int, _ int64) *big.Int {
	if prev != nil && prev.Sign() > 0 {
		lo := new(big.Int).Mul(prev, big.NewInt(100-daaClampPercent))
		lo.Div(lo, big.NewInt(100))
		hi := new(big.Int).Mul(prev, big.NewInt(100+daaClampPercent))
		hi.Div(hi, big.NewInt(100))

		if next.Cmp(lo) < 0 {
			next = lo
		}
		if next.Cmp(hi) > 0 {
			next = hi
		}
	}

	if next.Sign() <= 0 {
		next = big.NewInt(1)
	}
	if next.Cmp(maxUint256) > 0 {
		next = new(big.Int).Set(maxUint256)
	}
	return next
}
