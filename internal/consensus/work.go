package consensus

import "math/big"

// maxUint128 is the saturation ceiling for cumulative chain work
// (2^128 - 1), applied by AddWork. WorkFromTarget itself is not clamped.
var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// WorkFromTarget returns the approximate proof-of-work "work" represented by
// successfully mining a header at the given difficulty target:
// work = 2^256 / (target + 1). A lower target (harder difficulty) yields
// more work.
func WorkFromTarget(target *big.Int) *big.Int {
	if target == nil || target.Sign() <= 0 {
		return new(big.Int)
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	return new(big.Int).Div(maxUint256Plus1(), denom)
}

func maxUint256Plus1() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), 256)
}

// AddWork adds two work values and clamps the saturating sum at maxUint128.
func AddWork(a, b *big.Int) *big.Int {
	sum := new(big.Int).Add(a, b)
	if sum.Cmp(maxUint128) > 0 {
		return new(big.Int).Set(maxUint128)
	}
	return sum
}

// SubWork subtracts b's work contribution from a, flooring at zero. Used to
// unwind cumulative work when reverting a block during a reorg.
func SubWork(a, b *big.Int) *big.Int {
	diff := new(big.Int).Sub(a, b)
	if diff.Sign() < 0 {
		return new(big.Int)
	}
	return diff
}
