package tx

import (
	"testing"

	"github.com/zion-chain/zion/pkg/types"
)

func TestEstimateTxFee(t *testing.T) {
	tests := []struct {
		name       string
		numInputs  int
		numOutputs int
		feeRate    types.Amount
		want       types.Amount
	}{
		{"zero rate", 1, 2, 0, 0},
		{"simple 1-in 2-out", 1, 2, 10, (20 + 36 + 72) * 10},
		{"2-in 2-out", 2, 2, 10, (20 + 72 + 72) * 10},
		{"consolidate 10-in 1-out", 10, 1, 10, (20 + 360 + 36) * 10},
		{"rate 1", 1, 1, 1, 20 + 36 + 36},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateTxFee(tt.numInputs, tt.numOutputs, tt.feeRate)
			if got != tt.want {
				t.Errorf("EstimateTxFee(%d, %d, %d) = %d, want %d",
					tt.numInputs, tt.numOutputs, tt.feeRate, got, tt.want)
			}
		})
	}
}
