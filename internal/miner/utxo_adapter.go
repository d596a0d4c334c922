package miner

import (
	"fmt"

	"github.com/zion-chain/zion/internal/utxo"
	"github.com/zion-chain/zion/pkg/tx"
	"github.com/zion-chain/zion/pkg/types"
)

// UTXOAdapter bridges utxo.Set to tx.UTXOProvider.
type UTXOAdapter struct {
	set utxo.Set
}

// NewUTXOAdapter creates a UTXOProvider from a utxo.Set.
func NewUTXOAdapter(set utxo.Set) *UTXOAdapter {
	return &UTXOAdapter{set: set}
}

// GetUTXO returns the entry for a given outpoint.
func (a *UTXOAdapter) GetUTXO(outpoint types.Outpoint) (tx.UTXOEntry, error) {
	u, err := a.set.Get(outpoint)
	if err != nil {
		return tx.UTXOEntry{}, err
	}
	if u == nil {
		return tx.UTXOEntry{}, fmt.Errorf("utxo %s not found", outpoint)
	}
	return tx.UTXOEntry{Output: u.Output, Height: u.Height, IsCoinbase: u.Coinbase}, nil
}

// HasUTXO returns whether the outpoint exists in the UTXO set.
func (a *UTXOAdapter) HasUTXO(outpoint types.Outpoint) bool {
	has, err := a.set.Has(outpoint)
	if err != nil {
		return false
	}
	return has
}
