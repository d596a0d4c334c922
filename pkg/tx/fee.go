package tx

import "github.com/zion-chain/zion/pkg/types"

// EstimateTxFee returns the minimum fee for a transaction with the given
// number of inputs and outputs at the given fee rate (atomic units per byte).
//
// The estimate is based on the SigningBytes layout:
//
//	version(4) + inputCount(4) + inputs(36*n) + outputCount(4) + outputs(36*n) + fee(8)
func EstimateTxFee(numInputs, numOutputs int, feeRate types.Amount) types.Amount {
	const overhead = 4 + 4 + 4 + 8 // version + inputCount + outputCount + fee
	const perInput = 32 + 4        // txID + index
	const perOutput = 8 + 20 + 8   // amount + recipient + lock_height

	size := overhead + perInput*numInputs + perOutput*numOutputs
	return types.Amount(size) * feeRate
}

// RequiredFee returns the exact minimum fee for a fully built transaction
// at the given fee rate (atomic units per byte of SigningBytes).
func RequiredFee(transaction *Transaction, feeRate types.Amount) types.Amount {
	return types.Amount(len(transaction.SigningBytes())) * feeRate
}
