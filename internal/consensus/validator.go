package consensus

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zion-chain/zion/internal/chainparams"
	"github.com/zion-chain/zion/pkg/block"
)

// Timestamp validation errors.
var (
	ErrTimestampTooOld   = errors.New("header timestamp is not greater than the median of the last 11 headers")
	ErrTimestampTooFuture = errors.New("header timestamp too far in the future")
)

// Validator validates blocks against consensus rules.
type Validator struct {
	engine Engine
}

// NewValidator creates a block validator with the given consensus engine.
func NewValidator(engine Engine) *Validator {
	return &Validator{engine: engine}
}

// ValidateBlock checks a block against structural rules, proof-of-work, and
// the timestamp rules that require chain context. prevTimestamps is the
// trailing window of ancestor header timestamps (oldest first, up to
// chainparams.MedianTimePastWindow entries, not including blk itself); now
// is the validator's current wall-clock time in unix seconds.
func (v *Validator) ValidateBlock(blk *block.Block, prevTimestamps []uint64, now uint64) error {
	if err := blk.Validate(); err != nil {
		return fmt.Errorf("block structure: %w", err)
	}

	if err := v.engine.VerifyHeader(blk.Header); err != nil {
		return fmt.Errorf("consensus: %w", err)
	}

	if len(prevTimestamps) > 0 {
		mtp := medianTimePast(prevTimestamps)
		if blk.Header.Timestamp <= mtp {
			return ErrTimestampTooOld
		}
	}

	maxFuture := now + uint64(chainparams.MaxTimestampDrift/time.Second)
	if blk.Header.Timestamp > maxFuture {
		return ErrTimestampTooFuture
	}

	return nil
}

// medianTimePast returns the median of the given timestamps. If more than
// chainparams.MedianTimePastWindow are supplied, only the trailing window
// is considered.
func medianTimePast(timestamps []uint64) uint64 {
	if len(timestamps) > chainparams.MedianTimePastWindow {
		timestamps = timestamps[len(timestamps)-chainparams.MedianTimePastWindow:]
	}
	sorted := make([]uint64, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}
