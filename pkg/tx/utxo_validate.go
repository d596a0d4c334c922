package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/zion-chain/zion/pkg/crypto"
	"github.com/zion-chain/zion/pkg/types"
)

// UTXO-aware validation errors.
var (
	ErrInputNotFound     = errors.New("input UTXO not found")
	ErrInputSpent        = errors.New("input UTXO already spent")
	ErrInsufficientFee   = errors.New("insufficient fee")
	ErrInputOverflow     = errors.New("input values overflow")
	ErrPubKeyMismatch    = errors.New("pubkey does not match UTXO recipient")
	ErrImmature          = errors.New("coinbase output not yet mature")
	ErrUnspendableOutput = errors.New("output is unspendable")
)

// UTXOEntry is the read-only view ValidateWithUTXOs needs of a referenced
// output: the output itself plus the height it was mined at and whether it
// came from a coinbase (for maturity checks).
type UTXOEntry struct {
	Output      Output
	Height      uint64
	IsCoinbase  bool
}

// UTXOProvider provides read-only access to the UTXO set for validation.
type UTXOProvider interface {
	GetUTXO(outpoint types.Outpoint) (UTXOEntry, error)
	HasUTXO(outpoint types.Outpoint) bool
}

// ValidateWithUTXOs performs full validation of a transaction against the
// UTXO set at the given spending height: it checks that all inputs exist,
// are unspent and mature, that the pubkey matches the UTXO's recipient
// address, that signatures are valid, and that inputs >= outputs. Returns
// the fee (inputs - outputs).
func (t *Transaction) ValidateWithUTXOs(provider UTXOProvider, burnAddress types.Address, spendHeight uint64) (types.Amount, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}

	var totalInput types.Amount
	for i, in := range t.Inputs {
		if in.PrevOut.IsZero() {
			continue // Coinbase input.
		}

		if !provider.HasUTXO(in.PrevOut) {
			return 0, fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrInputNotFound)
		}

		entry, err := provider.GetUTXO(in.PrevOut)
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}

		if entry.Output.Recipient == burnAddress {
			return 0, fmt.Errorf("input %d (%s): %w: burned output cannot be spent", i, in.PrevOut, ErrUnspendableOutput)
		}

		if entry.IsCoinbase && spendHeight < entry.Height+entry.Output.LockHeight {
			return 0, fmt.Errorf("input %d (%s): %w: matures at height %d, spend at %d",
				i, in.PrevOut, ErrImmature, entry.Height+entry.Output.LockHeight, spendHeight)
		}

		if err := verifyRecipient(in.PubKey, entry.Output.Recipient); err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}

		if totalInput > math.MaxUint64-entry.Output.Amount {
			return 0, fmt.Errorf("input %d: %w", i, ErrInputOverflow)
		}
		totalInput += entry.Output.Amount
	}

	if err := t.VerifySignatures(); err != nil {
		return 0, err
	}

	totalOutput, ovfErr := t.TotalOutputValue()
	if ovfErr != nil {
		return 0, fmt.Errorf("output overflow: %w", ovfErr)
	}
	if totalInput < totalOutput {
		return 0, fmt.Errorf("%w: inputs=%d outputs=%d", ErrInsufficientFee, totalInput, totalOutput)
	}

	return totalInput - totalOutput, nil
}

// verifyRecipient checks that a public key derives the expected recipient
// address (§4.2: address = truncated tagged hash of the public key).
func verifyRecipient(pubKey []byte, recipient types.Address) error {
	if len(pubKey) == 0 {
		return ErrMissingPubKey
	}
	derived := crypto.AddressFromPubKey(pubKey)
	if derived != recipient {
		return fmt.Errorf("%w: expected %s, got %s", ErrPubKeyMismatch, recipient, derived)
	}
	return nil
}
