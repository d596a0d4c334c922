package consensus

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/zion-chain/zion/pkg/block"
	"github.com/zion-chain/zion/pkg/types"
)

func easyTarget() *big.Int {
	// maxUint256 >> 8: trivially satisfied by almost any hash, seals fast.
	return new(big.Int).Rsh(maxUint256, 8)
}

func testHeader(target *big.Int) *block.Header {
	return &block.Header{
		Version:          1,
		ParentHash:       types.Hash{0x01},
		MerkleRoot:       types.Hash{0x02},
		Timestamp:        1000,
		Height:           1,
		DifficultyTarget: target,
	}
}

func TestNewPoW_NilTarget(t *testing.T) {
	_, err := NewPoW(nil, 60)
	if err != ErrNilTarget {
		t.Fatalf("NewPoW(nil) err = %v, want ErrNilTarget", err)
	}
}

func TestNewPoW_ZeroTarget(t *testing.T) {
	_, err := NewPoW(big.NewInt(0), 60)
	if err != ErrNilTarget {
		t.Fatalf("NewPoW(0) err = %v, want ErrNilTarget", err)
	}
}

func TestNewPoW_Valid(t *testing.T) {
	pow, err := NewPoW(easyTarget(), 60)
	if err != nil {
		t.Fatalf("NewPoW: %v", err)
	}
	if pow.InitialTarget.Cmp(easyTarget()) != 0 {
		t.Error("InitialTarget not copied correctly")
	}
}

func TestPoW_SealAndVerify(t *testing.T) {
	pow, err := NewPoW(easyTarget(), 60)
	if err != nil {
		t.Fatal(err)
	}

	header := testHeader(easyTarget())
	blk := &block.Block{Header: header}

	if err := pow.Seal(blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := pow.VerifyHeader(blk.Header); err != nil {
		t.Fatalf("VerifyHeader after Seal: %v", err)
	}
}

func TestPoW_SealParallel(t *testing.T) {
	pow, err := NewPoW(easyTarget(), 60)
	if err != nil {
		t.Fatal(err)
	}
	pow.Threads = 4

	header := testHeader(easyTarget())
	blk := &block.Block{Header: header}

	if err := pow.Seal(blk); err != nil {
		t.Fatalf("Seal (parallel): %v", err)
	}
	if err := pow.VerifyHeader(blk.Header); err != nil {
		t.Fatalf("VerifyHeader after parallel Seal: %v", err)
	}
}

func TestPoW_VerifyHeader_NilTarget(t *testing.T) {
	pow, _ := NewPoW(easyTarget(), 60)
	header := testHeader(nil)
	if err := pow.VerifyHeader(header); err != ErrNilTarget {
		t.Fatalf("VerifyHeader(nil target) = %v, want ErrNilTarget", err)
	}
}

func TestPoW_VerifyHeader_RejectsInsufficientWork(t *testing.T) {
	pow, _ := NewPoW(easyTarget(), 60)
	// Impossibly small target: essentially no nonce will satisfy it.
	header := testHeader(big.NewInt(1))
	header.Nonce = 12345
	if err := pow.VerifyHeader(header); err != ErrInsufficientWork {
		t.Fatalf("VerifyHeader = %v, want ErrInsufficientWork", err)
	}
}

func TestPoW_Prepare_UsesInitialTarget(t *testing.T) {
	pow, _ := NewPoW(easyTarget(), 60)
	header := &block.Header{Height: 5}
	if err := pow.Prepare(header); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if header.DifficultyTarget.Cmp(easyTarget()) != 0 {
		t.Error("Prepare should copy InitialTarget when TargetFn is nil")
	}
}

func TestPoW_Prepare_UsesTargetFn(t *testing.T) {
	want := big.NewInt(42)
	pow, _ := NewPoW(easyTarget(), 60)
	pow.TargetFn = func(height uint64) *big.Int {
		if height != 7 {
			t.Errorf("TargetFn called with height %d, want 7", height)
		}
		return want
	}

	header := &block.Header{Height: 7}
	if err := pow.Prepare(header); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if header.DifficultyTarget.Cmp(want) != 0 {
		t.Error("Prepare should use TargetFn's result")
	}
}

func TestPoW_SealWithCancel_Cancelled(t *testing.T) {
	pow, _ := NewPoW(big.NewInt(1), 60) // Near-impossible target.
	header := testHeader(big.NewInt(1))
	blk := &block.Block{Header: header}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := pow.SealWithCancel(ctx, blk)
	if err == nil {
		t.Fatal("expected cancellation error, got nil")
	}
}

func TestPoW_SealWithCancel_NilBlock(t *testing.T) {
	pow, _ := NewPoW(easyTarget(), 60)
	if err := pow.SealWithCancel(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil block")
	}
}

func TestPoW_SealWithCancel_NilTarget(t *testing.T) {
	pow, _ := NewPoW(easyTarget(), 60)
	blk := &block.Block{Header: testHeader(nil)}
	if err := pow.SealWithCancel(context.Background(), blk); err != ErrNilTarget {
		t.Fatalf("Seal with nil target = %v, want ErrNilTarget", err)
	}
}

func sampleHistory(targets []int64, times []int64) []HeaderSample {
	hs := make([]HeaderSample, len(targets))
	for i := range targets {
		hs[i] = HeaderSample{
			Timestamp: uint64(times[i]),
			Target:    big.NewInt(targets[i]),
		}
	}
	return hs
}

func TestNextTarget_BootstrapEmpty(t *testing.T) {
	next := NextTarget(nil, 60, 60)
	if next.Cmp(maxUint256) != 0 {
		t.Errorf("bootstrap with no history should be maxUint256, got %s", next)
	}
}

func TestNextTarget_BootstrapSingleSample(t *testing.T) {
	history := sampleHistory([]int64{1000}, []int64{0})
	next := NextTarget(history, 60, 60)
	if next.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("bootstrap with 1 sample should reuse its target, got %s", next)
	}
}

func TestNextTarget_Deterministic(t *testing.T) {
	history := sampleHistory(
		[]int64{1000, 1000, 1000, 1000},
		[]int64{0, 60, 120, 180},
	)
	t1 := NextTarget(history, 60, 60)
	t2 := NextTarget(history, 60, 60)
	if t1.Cmp(t2) != 0 {
		t.Error("NextTarget should be a deterministic pure function of history")
	}
}

func TestNextTarget_StableWhenOnTime(t *testing.T) {
	// Solve times exactly match the target; next target should equal prev target.
	history := sampleHistory(
		[]int64{1000, 1000, 1000, 1000, 1000},
		[]int64{0, 60, 120, 180, 240},
	)
	next := NextTarget(history, 60, 60)
	prev := big.NewInt(1000)
	diff := new(big.Int).Sub(next, prev)
	diff.Abs(diff)
	// Allow integer-division rounding slack.
	if diff.Cmp(big.NewInt(5)) > 0 {
		t.Errorf("NextTarget should stay near prev target when on-time, got %s want ~%s", next, prev)
	}
}

func TestNextTarget_RisesWhenBlocksSlow(t *testing.T) {
	// Solve times longer than target (blocks coming in slow) should raise the
	// target (lower difficulty) to bring block time back down, bounded by the clamp.
	history := sampleHistory(
		[]int64{1000, 1000, 1000},
		[]int64{0, 120, 240}, // 120s actual vs 60s target, doubled
	)
	next := NextTarget(history, 60, 60)
	prev := big.NewInt(1000)
	if next.Cmp(prev) <= 0 {
		t.Errorf("NextTarget should rise when blocks are slow: next=%s prev=%s", next, prev)
	}
	// Clamp: must not exceed +25%.
	hi := new(big.Int).Mul(prev, big.NewInt(125))
	hi.Div(hi, big.NewInt(100))
	if next.Cmp(hi) > 0 {
		t.Errorf("NextTarget exceeded clamp ceiling: next=%s hi=%s", next, hi)
	}
}

func TestNextTarget_FallsWhenBlocksFast(t *testing.T) {
	// Solve times shorter than target (blocks coming in fast) should lower the
	// target (raise difficulty).
	history := sampleHistory(
		[]int64{1000, 1000, 1000},
		[]int64{0, 30, 60}, // 30s actual vs 60s target, halved
	)
	next := NextTarget(history, 60, 60)
	prev := big.NewInt(1000)
	if next.Cmp(prev) >= 0 {
		t.Errorf("NextTarget should fall when blocks are fast: next=%s prev=%s", next, prev)
	}
	lo := new(big.Int).Mul(prev, big.NewInt(75))
	lo.Div(lo, big.NewInt(100))
	if next.Cmp(lo) < 0 {
		t.Errorf("NextTarget exceeded clamp floor: next=%s lo=%s", next, lo)
	}
}

func TestNextTarget_SolveTimeClampedOnExtremeGap(t *testing.T) {
	// An enormous gap between two timestamps should be clamped to
	// 6x targetBlockTime rather than producing a wildly inflated target.
	history := sampleHistory(
		[]int64{1000, 1000},
		[]int64{0, 100000},
	)
	clamped := NextTarget(history, 60, 60)

	unclamped := sampleHistory(
		[]int64{1000, 1000},
		[]int64{0, 6 * 60},
	)
	wantSame := NextTarget(unclamped, 60, 60)

	if clamped.Cmp(wantSame) != 0 {
		t.Errorf("extreme solve time should clamp to 6x target, got %s want %s", clamped, wantSame)
	}
}

func TestNextTarget_SolveTimeClampedOnNegativeGap(t *testing.T) {
	// Out-of-order or equal timestamps should clamp to the minimum solve time,
	// never go negative or divide oddly.
	history := sampleHistory(
		[]int64{1000, 1000},
		[]int64{100, 100},
	)
	next := NextTarget(history, 60, 60)
	if next.Sign() <= 0 {
		t.Errorf("NextTarget should stay positive on zero solve time, got %s", next)
	}
}

func TestNextTarget_WindowTruncation(t *testing.T) {
	// History longer than window+1 should only use the trailing window.
	n := 70
	targets := make([]int64, n)
	times := make([]int64, n)
	for i := 0; i < n; i++ {
		targets[i] = 1000
		times[i] = int64(i) * 60
	}
	history := sampleHistory(targets, times)
	next := NextTarget(history, 60, 60)
	if next.Sign() <= 0 {
		t.Fatal("NextTarget should produce a positive target")
	}
}

func TestNextTarget_NeverExceedsMaxUint256(t *testing.T) {
	history := sampleHistory(
		[]int64{},
		[]int64{},
	)
	history = append(history, HeaderSample{Timestamp: 0, Target: new(big.Int).Set(maxUint256)})
	history = append(history, HeaderSample{Timestamp: 6000, Target: new(big.Int).Set(maxUint256)})
	next := NextTarget(history, 60, 60)
	if next.Cmp(maxUint256) > 0 {
		t.Errorf("NextTarget exceeded maxUint256: %s", next)
	}
}

func TestClampTarget_NoPrevious(t *testing.T) {
	next := clampTarget(big.NewInt(500), nil, 60)
	if next.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("clampTarget with nil prev should pass value through, got %s", next)
	}
}

func TestClampTarget_FloorAtOne(t *testing.T) {
	next := clampTarget(big.NewInt(0), nil, 60)
	if next.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("clampTarget should floor non-positive values at 1, got %s", next)
	}
}
