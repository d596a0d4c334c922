// Package tx defines transaction types and validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"
	"fmt"

	"github.com/zion-chain/zion/pkg/crypto"
	"github.com/zion-chain/zion/pkg/types"
)

// Transaction represents a blockchain transaction.
type Transaction struct {
	Version uint32       `json:"version"`
	Inputs  []Input      `json:"inputs"`
	Outputs []Output     `json:"outputs"`
	Fee     types.Amount `json:"fee"`
}

// Input references a UTXO being spent.
type Input struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature []byte         `json:"signature"`
	PubKey    []byte         `json:"pubkey"`
}

// inputJSON is the JSON representation of Input with hex-encoded byte fields.
type inputJSON struct {
	PrevOut   types.Outpoint `json:"prevout"`
	Signature *string        `json:"signature"`
	PubKey    *string        `json:"pubkey"`
}

// MarshalJSON encodes the input with hex-encoded signature and pubkey.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{PrevOut: in.PrevOut}
	if in.Signature != nil {
		s := hex.EncodeToString(in.Signature)
		j.Signature = &s
	}
	if in.PubKey != nil {
		p := hex.EncodeToString(in.PubKey)
		j.PubKey = &p
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an input with hex-encoded signature and pubkey.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	if j.Signature != nil {
		b, err := hex.DecodeString(*j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	if j.PubKey != nil {
		b, err := hex.DecodeString(*j.PubKey)
		if err != nil {
			return err
		}
		in.PubKey = b
	}
	return nil
}

// Output defines a new UTXO. LockHeight is 0 for ordinary outputs; coinbase
// outputs set it to block_height + COINBASE_MATURITY so maturity can be
// checked without re-reading the origin block.
type Output struct {
	Amount     types.Amount  `json:"amount"`
	Recipient  types.Address `json:"recipient"`
	LockHeight uint64        `json:"lock_height"`
}

// Hash computes the transaction id: the tagged hash of the canonical
// signing bytes. Not stored in the transaction body.
func (t *Transaction) Hash() types.Hash {
	return crypto.HashTx(t.SigningBytes())
}

// SigningBytes returns the canonical byte representation used for both
// hashing and signing. Input signatures are excluded (the sighash covers
// everything except the signatures themselves) except for the coinbase's
// sentinel input, whose signature field carries arbitrary extra-nonce/height
// data that must still distinguish one coinbase from another.
//
// Format: version(4) | input_count(4) | [prevout(36)]... | output_count(4) |
// [amount(8) + recipient(20) + lock_height(8)]... | fee(8)
func (t *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, t.Version)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
		if in.PrevOut.IsZero() && len(in.Signature) > 0 {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.Signature)))
			buf = append(buf, in.Signature...)
		}
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Amount)
		buf = append(buf, out.Recipient[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, out.LockHeight)
	}

	buf = binary.LittleEndian.AppendUint64(buf, t.Fee)

	return buf
}

// TotalOutputValue returns the sum of all output amounts.
// Returns an error if the sum overflows uint64.
func (t *Transaction) TotalOutputValue() (types.Amount, error) {
	var total types.Amount
	for _, out := range t.Outputs {
		if total > math.MaxUint64-out.Amount {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Amount
	}
	return total, nil
}
