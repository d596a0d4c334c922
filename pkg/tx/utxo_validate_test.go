package tx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/zion-chain/zion/pkg/crypto"
	"github.com/zion-chain/zion/pkg/types"
)

// mockUTXOProvider is a simple in-memory UTXO provider for testing.
type mockUTXOProvider struct {
	utxos map[types.Outpoint]UTXOEntry
}

func newMockProvider() *mockUTXOProvider {
	return &mockUTXOProvider{utxos: make(map[types.Outpoint]UTXOEntry)}
}

func (m *mockUTXOProvider) add(op types.Outpoint, amount types.Amount, recipient types.Address) {
	m.utxos[op] = UTXOEntry{Output: Output{Amount: amount, Recipient: recipient}}
}

func (m *mockUTXOProvider) addCoinbase(op types.Outpoint, amount types.Amount, recipient types.Address, height, maturity uint64) {
	m.utxos[op] = UTXOEntry{
		Output:     Output{Amount: amount, Recipient: recipient, LockHeight: maturity},
		Height:     height,
		IsCoinbase: true,
	}
}

func (m *mockUTXOProvider) GetUTXO(op types.Outpoint) (UTXOEntry, error) {
	u, ok := m.utxos[op]
	if !ok {
		return UTXOEntry{}, fmt.Errorf("not found")
	}
	return u, nil
}

func (m *mockUTXOProvider) HasUTXO(op types.Outpoint) bool {
	_, ok := m.utxos[op]
	return ok
}

var noBurn types.Address

func TestValidateWithUTXOs_Valid(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, addr)

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(4000, types.Address{0x42})
	b.Sign(key)
	transaction := b.Build()

	fee, err := transaction.ValidateWithUTXOs(provider, noBurn, 1)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 1000 {
		t.Errorf("fee = %d, want 1000", fee)
	}
}

func TestValidateWithUTXOs_ZeroFee(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 3000, addr)

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(3000, types.Address{0x42})
	b.Sign(key)
	transaction := b.Build()

	fee, err := transaction.ValidateWithUTXOs(provider, noBurn, 1)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 0 {
		t.Errorf("fee = %d, want 0", fee)
	}
}

func TestValidateWithUTXOs_InputNotFound(t *testing.T) {
	key, _ := crypto.GenerateKey()

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider() // Empty — no UTXOs.

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(1000, types.Address{0x42})
	b.Sign(key)
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider, noBurn, 1)
	if !errors.Is(err, ErrInputNotFound) {
		t.Errorf("expected ErrInputNotFound, got: %v", err)
	}
}

func TestValidateWithUTXOs_InsufficientFunds(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 1000, addr)

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(2000, types.Address{0x42})
	b.Sign(key)
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider, noBurn, 1)
	if !errors.Is(err, ErrInsufficientFee) {
		t.Errorf("expected ErrInsufficientFee, got: %v", err)
	}
}

func TestValidateWithUTXOs_PubKeyMismatch(t *testing.T) {
	key, _ := crypto.GenerateKey()
	wrongAddr := types.Address{0xff}

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, wrongAddr)

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(4000, types.Address{0x42})
	b.Sign(key)
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider, noBurn, 1)
	if !errors.Is(err, ErrPubKeyMismatch) {
		t.Errorf("expected ErrPubKeyMismatch, got: %v", err)
	}
}

func TestValidateWithUTXOs_MultipleInputs(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	prevOut2 := types.Outpoint{TxID: types.Hash{0x02}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut1, 3000, addr)
	provider.add(prevOut2, 2000, addr)

	b := NewBuilder().
		AddInput(prevOut1).
		AddInput(prevOut2).
		AddOutput(4500, types.Address{0x42})
	b.Sign(key)
	transaction := b.Build()

	fee, err := transaction.ValidateWithUTXOs(provider, noBurn, 1)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 500 {
		t.Errorf("fee = %d, want 500", fee)
	}
}

func TestValidateWithUTXOs_InvalidSignature(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()
	addr2 := crypto.AddressFromPubKey(key2.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	// UTXO is locked to key2's address...
	provider.add(prevOut, 5000, addr2)

	// ...but signed with key1. The pubkey check catches the mismatch.
	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(4000, types.Address{0x42})
	b.Sign(key1)
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider, noBurn, 1)
	if !errors.Is(err, ErrPubKeyMismatch) {
		t.Errorf("expected ErrPubKeyMismatch, got: %v", err)
	}
}

func TestValidateWithUTXOs_StructuralFailure(t *testing.T) {
	transaction := &Transaction{
		Version: 1,
		Outputs: []Output{{Amount: 1000, Recipient: types.Address{0x42}}},
	}
	provider := newMockProvider()

	_, err := transaction.ValidateWithUTXOs(provider, noBurn, 1)
	if !errors.Is(err, ErrNoInputs) {
		t.Errorf("expected ErrNoInputs, got: %v", err)
	}
}

func TestValidateWithUTXOs_BurnedOutputUnspendable(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	burn := types.Address{0xee}

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, burn)

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(4000, addr)
	b.Sign(key)
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider, burn, 1)
	if !errors.Is(err, ErrUnspendableOutput) {
		t.Errorf("expected ErrUnspendableOutput, got: %v", err)
	}
}

func TestValidateWithUTXOs_ImmatureCoinbase(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.addCoinbase(prevOut, 5000, addr, 10, 100) // matures at height 110.

	b := NewBuilder().
		AddInput(prevOut).
		AddOutput(4000, types.Address{0x42})
	b.Sign(key)
	transaction := b.Build()

	_, err := transaction.ValidateWithUTXOs(provider, noBurn, 50) // Too early.
	if !errors.Is(err, ErrImmature) {
		t.Errorf("expected ErrImmature, got: %v", err)
	}

	_, err = transaction.ValidateWithUTXOs(provider, noBurn, 110) // Mature.
	if err != nil {
		t.Errorf("expected mature coinbase to spend cleanly: %v", err)
	}
}

func TestVerifyRecipient(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	if err := verifyRecipient(key.PublicKey(), addr); err != nil {
		t.Errorf("valid recipient should pass: %v", err)
	}

	key2, _ := crypto.GenerateKey()
	if err := verifyRecipient(key2.PublicKey(), addr); !errors.Is(err, ErrPubKeyMismatch) {
		t.Errorf("expected ErrPubKeyMismatch for wrong pubkey, got: %v", err)
	}

	if err := verifyRecipient(nil, addr); !errors.Is(err, ErrMissingPubKey) {
		t.Errorf("expected ErrMissingPubKey, got: %v", err)
	}
}
