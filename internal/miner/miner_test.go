package miner

import (
	"math/big"
	"testing"

	"github.com/zion-chain/zion/internal/chainparams"
	"github.com/zion-chain/zion/internal/consensus"
	"github.com/zion-chain/zion/internal/storage"
	"github.com/zion-chain/zion/internal/utxo"
	"github.com/zion-chain/zion/pkg/crypto"
	"github.com/zion-chain/zion/pkg/tx"
	"github.com/zion-chain/zion/pkg/types"
)

// --- BuildCoinbase ---

func TestBuildCoinbase(t *testing.T) {
	addr := types.Address{0x01, 0x02, 0x03}
	burnAddr := types.Address{0xff}
	cb := BuildCoinbase(addr, 50000, burnAddr, 0, 42)

	if cb.Version != 1 {
		t.Errorf("version: got %d, want 1", cb.Version)
	}
	if len(cb.Inputs) != 1 {
		t.Fatalf("inputs: got %d, want 1", len(cb.Inputs))
	}
	if !cb.Inputs[0].PrevOut.IsZero() {
		t.Error("coinbase input should be zero outpoint")
	}
	if len(cb.Inputs[0].Signature) != 8 {
		t.Errorf("coinbase signature should be 8-byte height, got %d", len(cb.Inputs[0].Signature))
	}
	if len(cb.Inputs[0].PubKey) != 0 {
		t.Error("coinbase should have no pubkey")
	}
	if len(cb.Outputs) != 1 {
		t.Fatalf("outputs: got %d, want 1 (no fees, no burn output)", len(cb.Outputs))
	}
	if cb.Outputs[0].Amount != 50000 {
		t.Errorf("output amount: got %d, want 50000", cb.Outputs[0].Amount)
	}
	if cb.Outputs[0].Recipient != addr {
		t.Error("output recipient mismatch")
	}
	if cb.Outputs[0].LockHeight != chainparams.CoinbaseMaturity {
		t.Errorf("lock height: got %d, want %d", cb.Outputs[0].LockHeight, chainparams.CoinbaseMaturity)
	}

	// Different heights must produce different tx hashes.
	cb2 := BuildCoinbase(addr, 50000, burnAddr, 0, 43)
	if cb.Hash() == cb2.Hash() {
		t.Error("coinbase txs at different heights must have different hashes")
	}
}

func TestBuildCoinbase_BurnsFees(t *testing.T) {
	addr := types.Address{0x01}
	burnAddr := types.Address{0xff}
	cb := BuildCoinbase(addr, 50000, burnAddr, 100, 42)

	if len(cb.Outputs) != 2 {
		t.Fatalf("outputs: got %d, want 2 (subsidy + burn)", len(cb.Outputs))
	}
	if cb.Outputs[0].Amount != 50000 || cb.Outputs[0].Recipient != addr {
		t.Errorf("subsidy output mismatch: %+v", cb.Outputs[0])
	}
	if cb.Outputs[1].Amount != 100 || cb.Outputs[1].Recipient != burnAddr {
		t.Errorf("burn output mismatch: got amount=%d recipient=%v, want amount=100 recipient=%v",
			cb.Outputs[1].Amount, cb.Outputs[1].Recipient, burnAddr)
	}
}

func TestBuildCoinbase_Validate(t *testing.T) {
	addr := types.Address{0xaa}
	burnAddr := types.Address{0xff}
	cb := BuildCoinbase(addr, 1000, burnAddr, 0, 1)

	if err := cb.Validate(); err != nil {
		t.Errorf("coinbase should pass Validate: %v", err)
	}
}

// --- mockChainState ---

type mockChainState struct {
	height    uint64
	tipHash   types.Hash
	tipTS     uint64
}

func (m *mockChainState) Height() uint64        { return m.height }
func (m *mockChainState) TipHash() types.Hash   { return m.tipHash }
func (m *mockChainState) TipTimestamp() uint64  { return m.tipTS }

// --- mockMempool ---

type mockMempool struct {
	txs  []*tx.Transaction
	fees map[types.Hash]types.Amount
}

func newMockMempool(txs []*tx.Transaction, fees map[types.Hash]types.Amount) *mockMempool {
	return &mockMempool{txs: txs, fees: fees}
}

func (m *mockMempool) SelectForBlock(limit int) []*tx.Transaction {
	if limit >= len(m.txs) {
		return m.txs
	}
	return m.txs[:limit]
}

func (m *mockMempool) GetFee(txHash types.Hash) types.Amount {
	if m.fees == nil {
		return 0
	}
	return m.fees[txHash]
}

func newTestPoW(t *testing.T) *consensus.PoW {
	t.Helper()
	// A high initial target so tests seal near-instantly.
	target := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	pow, err := consensus.NewPoW(target, 60)
	if err != nil {
		t.Fatalf("NewPoW: %v", err)
	}
	return pow
}

func testMiner(t *testing.T) *Miner {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.AddressFromPubKey(key.PublicKey())
	chain := &mockChainState{height: 0, tipHash: types.Hash{0xaa, 0xbb}}
	return New(chain, newTestPoW(t), nil, addr, types.Address{0xee})
}

func TestMiner_ProduceBlock(t *testing.T) {
	m := testMiner(t)

	blk, err := m.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}

	if blk.Header.Height != 1 {
		t.Errorf("height: got %d, want 1", blk.Header.Height)
	}
	if blk.Header.ParentHash != (types.Hash{0xaa, 0xbb}) {
		t.Error("ParentHash should match chain tip")
	}
	if blk.Header.Version != 1 {
		t.Errorf("version: got %d, want 1", blk.Header.Version)
	}
	if blk.Header.Timestamp == 0 {
		t.Error("timestamp should not be zero")
	}
	if len(blk.Transactions) != 1 {
		t.Fatalf("expected 1 tx (coinbase), got %d", len(blk.Transactions))
	}
	wantReward := chainparams.Subsidy(1)
	if blk.Transactions[0].Outputs[0].Amount != wantReward {
		t.Errorf("coinbase amount: got %d, want %d", blk.Transactions[0].Outputs[0].Amount, wantReward)
	}
}

func TestMiner_ProduceBlock_ValidStructure(t *testing.T) {
	m := testMiner(t)

	blk, err := m.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}

	if err := blk.Validate(); err != nil {
		t.Errorf("block should pass Validate: %v", err)
	}
}

func TestMiner_ProduceBlock_ValidConsensus(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	pow := newTestPoW(t)
	chain := &mockChainState{height: 5, tipHash: types.Hash{0x11}}
	m := New(chain, pow, nil, addr, types.Address{0xee})

	blk, err := m.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}

	if err := pow.VerifyHeader(blk.Header); err != nil {
		t.Errorf("block should pass consensus: %v", err)
	}
	if blk.Header.Height != 6 {
		t.Errorf("height: got %d, want 6", blk.Header.Height)
	}
}

func TestMiner_ProduceBlock_WithMempool(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	chain := &mockChainState{height: 0, tipHash: types.Hash{0x01}}

	mempoolTx := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{TxID: types.Hash{0xff}, Index: 0}, Signature: []byte("s"), PubKey: []byte("k")}},
		Outputs: []tx.Output{{Amount: 500, Recipient: types.Address{0x01}}},
	}
	txFee := types.Amount(100)
	fees := map[types.Hash]types.Amount{mempoolTx.Hash(): txFee}
	pool := newMockMempool([]*tx.Transaction{mempoolTx}, fees)

	burnAddr := types.Address{0xee}
	m := New(chain, newTestPoW(t), pool, addr, burnAddr)

	blk, err := m.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}

	if len(blk.Transactions) != 2 {
		t.Errorf("expected 2 txs, got %d", len(blk.Transactions))
	}

	coinbase := blk.Transactions[0]
	if len(coinbase.Outputs) != 2 {
		t.Fatalf("expected 2 coinbase outputs (subsidy + burn), got %d", len(coinbase.Outputs))
	}
	wantSubsidy := chainparams.Subsidy(1)
	if coinbase.Outputs[0].Amount != wantSubsidy {
		t.Errorf("subsidy amount: got %d, want %d", coinbase.Outputs[0].Amount, wantSubsidy)
	}
	if coinbase.Outputs[1].Amount != txFee || coinbase.Outputs[1].Recipient != burnAddr {
		t.Errorf("burn output: got amount=%d recipient=%v, want amount=%d recipient=%v",
			coinbase.Outputs[1].Amount, coinbase.Outputs[1].Recipient, txFee, burnAddr)
	}
}

func TestMiner_ProduceBlock_SubsidyExpired(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	chain := &mockChainState{height: chainparams.MiningSupplyCapHeight, tipHash: types.Hash{0x01}}
	m := New(chain, newTestPoW(t), nil, addr, types.Address{0xee})

	blk, err := m.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}

	// Height MiningSupplyCapHeight+1 is past the subsidy cutoff: reward is 0.
	if blk.Transactions[0].Outputs[0].Amount != 0 {
		t.Errorf("coinbase amount: got %d, want 0 (subsidy expired)", blk.Transactions[0].Outputs[0].Amount)
	}
}

func TestMiner_ProduceBlock_MonotonicTimestamp(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())
	chain := &mockChainState{height: 0, tipHash: types.Hash{0x01}, tipTS: 1 << 40} // far future
	m := New(chain, newTestPoW(t), nil, addr, types.Address{0xee})

	blk, err := m.ProduceBlock()
	if err != nil {
		t.Fatalf("ProduceBlock: %v", err)
	}
	if blk.Header.Timestamp <= chain.tipTS {
		t.Errorf("timestamp %d should exceed parent timestamp %d", blk.Header.Timestamp, chain.tipTS)
	}
}

// --- UTXOAdapter ---

func TestUTXOAdapter_GetUTXO(t *testing.T) {
	db := storage.NewMemory()
	store := utxo.NewStore(db)

	op := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	u := &utxo.UTXO{
		Outpoint: op,
		Output:   tx.Output{Amount: 1000, Recipient: types.Address{0x02}},
	}
	store.Put(u)

	adapter := NewUTXOAdapter(store)

	entry, err := adapter.GetUTXO(op)
	if err != nil {
		t.Fatalf("GetUTXO: %v", err)
	}
	if entry.Output.Amount != 1000 {
		t.Errorf("amount: got %d, want 1000", entry.Output.Amount)
	}
	if entry.Output.Recipient != (types.Address{0x02}) {
		t.Error("recipient mismatch")
	}
}

func TestUTXOAdapter_HasUTXO(t *testing.T) {
	db := storage.NewMemory()
	store := utxo.NewStore(db)

	op := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	store.Put(&utxo.UTXO{Outpoint: op, Output: tx.Output{Amount: 1}})

	adapter := NewUTXOAdapter(store)

	if !adapter.HasUTXO(op) {
		t.Error("HasUTXO should return true for existing outpoint")
	}

	missing := types.Outpoint{TxID: types.Hash{0xff}, Index: 0}
	if adapter.HasUTXO(missing) {
		t.Error("HasUTXO should return false for missing outpoint")
	}
}

func TestUTXOAdapter_GetUTXO_NotFound(t *testing.T) {
	db := storage.NewMemory()
	store := utxo.NewStore(db)
	adapter := NewUTXOAdapter(store)

	_, err := adapter.GetUTXO(types.Outpoint{TxID: types.Hash{0xff}})
	if err == nil {
		t.Error("GetUTXO should fail for missing outpoint")
	}
}
