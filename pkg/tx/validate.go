package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/zion-chain/zion/internal/chainparams"
	"github.com/zion-chain/zion/pkg/crypto"
	"github.com/zion-chain/zion/pkg/types"
)

// Validation errors.
var (
	ErrNoInputs       = errors.New("transaction has no inputs")
	ErrNoOutputs      = errors.New("transaction has no outputs")
	ErrDuplicateInput = errors.New("duplicate input")
	ErrOutputOverflow = errors.New("output values overflow")
	ErrZeroOutput     = errors.New("output amount is zero")
	ErrSupplyExceeded = errors.New("output sum exceeds total supply")
	ErrMissingPubKey  = errors.New("input missing public key")
	ErrMissingSig     = errors.New("input missing signature")
	ErrInvalidSig     = errors.New("invalid signature")
	ErrTooManyInputs  = errors.New("too many inputs")
	ErrTooManyOutputs = errors.New("too many outputs")
)

// Validate checks transaction structure and basic rules (§4.7 context-free
// transaction checks). This does NOT check UTXO existence (that requires
// the UTXO set — see ValidateWithUTXOs).
func (t *Transaction) Validate() error {
	if len(t.Outputs) == 0 {
		return ErrNoOutputs
	}
	if !t.IsCoinbase() && len(t.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(t.Inputs) > chainparams.MaxTxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(t.Inputs), chainparams.MaxTxInputs)
	}
	if len(t.Outputs) > chainparams.MaxTxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(t.Outputs), chainparams.MaxTxOutputs)
	}

	// Check for duplicate inputs.
	seen := make(map[types.Outpoint]bool, len(t.Inputs))
	for i, in := range t.Inputs {
		if seen[in.PrevOut] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[in.PrevOut] = true
	}

	// Validate inputs have signatures and public keys.
	// The coinbase's sentinel input is exempt — it creates coins.
	for i, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		if len(in.PubKey) == 0 {
			return fmt.Errorf("input %d: %w", i, ErrMissingPubKey)
		}
		if len(in.Signature) == 0 {
			return fmt.Errorf("input %d: %w", i, ErrMissingSig)
		}
	}

	// Validate outputs.
	var totalOutput types.Amount
	maxSupply := chainparams.TotalSupplyCoins * types.Coin
	for i, out := range t.Outputs {
		if out.Amount == 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
		if totalOutput > math.MaxUint64-out.Amount {
			return fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
		totalOutput += out.Amount
		if totalOutput > maxSupply {
			return fmt.Errorf("output %d: %w", i, ErrSupplyExceeded)
		}
	}

	return nil
}

// IsCoinbase returns true if t has the single sentinel zero-outpoint input
// that marks a coinbase transaction.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].PrevOut.IsZero()
}

// VerifySignatures checks that all input signatures are valid for this
// transaction's canonical sighash.
func (t *Transaction) VerifySignatures() error {
	sighash := crypto.HashSighash(t.SigningBytes())
	for i, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue // Coinbase input.
		}
		if !crypto.VerifySignature(sighash[:], in.Signature, in.PubKey) {
			return fmt.Errorf("input %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}
