package chain

import (
	"testing"

	"github.com/zion-chain/zion/internal/chainparams"
	"github.com/zion-chain/zion/pkg/block"
	"github.com/zion-chain/zion/pkg/tx"
	"github.com/zion-chain/zion/pkg/types"
)

// TestChain_Reorg_SwitchesToHeavierBranch builds two competing branches from
// the same tip and checks that the chain adopts the one with more
// cumulative work, never flip-flopping on a tie.
func TestChain_Reorg_SwitchesToHeavierBranch(t *testing.T) {
	ch, _ := testChain(t)

	base := coinbaseOnlyBlock(t, ch, ch.TipHash(), 1, types.Address{0x01}, 1700000060)
	if err := ch.ProcessBlock(base); err != nil {
		t.Fatalf("process base: %v", err)
	}

	branchA := coinbaseOnlyBlock(t, ch, base.Hash(), 2, types.Address{0x02}, 1700000120)
	if err := ch.ProcessBlock(branchA); err != nil {
		t.Fatalf("process branch A: %v", err)
	}

	branchB := coinbaseOnlyBlock(t, ch, base.Hash(), 2, types.Address{0x03}, 1700000121)
	if branchB.Hash() == branchA.Hash() {
		t.Fatal("test setup produced identical blocks for both branches")
	}
	if err := ch.ProcessBlock(branchB); err != nil {
		t.Fatalf("process branch B: %v", err)
	}

	// Equal height, equal work (same target) — the tip must not flip away
	// from the already-applied branch A.
	if ch.TipHash() != branchA.Hash() {
		t.Fatalf("tip flipped on equal work: got %s, want %s (branch A)", ch.TipHash(), branchA.Hash())
	}

	branchB2 := coinbaseOnlyBlock(t, ch, branchB.Hash(), 3, types.Address{0x04}, 1700000180)
	if err := ch.ProcessBlock(branchB2); err != nil {
		t.Fatalf("process branch B extension: %v", err)
	}

	if ch.TipHash() != branchB2.Hash() {
		t.Fatalf("chain did not reorg to the heavier branch: tip = %s, want %s", ch.TipHash(), branchB2.Hash())
	}
	if ch.Height() != 3 {
		t.Fatalf("height after reorg = %d, want 3", ch.Height())
	}

	undoneOutpoint := types.Outpoint{TxID: branchA.Transactions[0].Hash(), Index: 0}
	if has, _ := ch.utxos.Has(undoneOutpoint); has {
		t.Fatal("reverted branch A's coinbase output is still present in the UTXO set")
	}

	activeOutpoint := types.Outpoint{TxID: branchB2.Transactions[0].Hash(), Index: 0}
	if has, _ := ch.utxos.Has(activeOutpoint); !has {
		t.Fatal("new branch's coinbase output missing from the UTXO set")
	}

	branchBOutpoint := types.Outpoint{TxID: branchB.Transactions[0].Hash(), Index: 0}
	if has, _ := ch.utxos.Has(branchBOutpoint); !has {
		t.Fatal("branch B's own coinbase output missing after reorg adopted it")
	}
}

// TestChain_Reorg_RejectsGenesisReplacement checks that a competing branch
// rooted at a different genesis block is rejected outright.
func TestChain_Reorg_RejectsGenesisReplacement(t *testing.T) {
	ch, _ := testChain(t)

	coinbase := &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{}}},
		Outputs: []tx.Output{{Amount: chainparams.GenesisPremineCoins * types.Coin, Recipient: types.Address{0xEE}}},
	}
	merkle := block.ComputeMerkleRoot([]types.Hash{coinbase.Hash()})
	fakeGenesis := block.NewBlock(&block.Header{
		Version:    block.CurrentVersion,
		ParentHash: types.Hash{},
		MerkleRoot: merkle,
		Timestamp:  1600000000,
		Height:     0,
	}, []*tx.Transaction{coinbase})
	mineBlock(t, ch, fakeGenesis)

	fakeChild := coinbaseOnlyBlock(t, ch, fakeGenesis.Hash(), 1, types.Address{0x01}, 1600000060)

	if err := ch.blocks.StoreBlock(fakeGenesis); err != nil {
		t.Fatalf("store fake genesis: %v", err)
	}
	if err := ch.blocks.StoreBlock(fakeChild); err != nil {
		t.Fatalf("store fake child: %v", err)
	}

	if err := ch.Reorg(fakeChild.Hash()); err == nil {
		t.Fatal("expected reorg to a different genesis to fail")
	}
}

// TestChain_Reorg_RejectsOverdepth checks that a branch deeper than
// chainparams.MaxReorgDepth is rejected without mutating chain state.
func TestChain_Reorg_RejectsOverdepth(t *testing.T) {
	ch, _ := testChain(t)

	parent := ch.TipHash()
	for h := uint64(1); h <= chainparams.MaxReorgDepth+2; h++ {
		blk := coinbaseOnlyBlock(t, ch, parent, h, types.Address{byte(h)}, 1700000000+h*60)
		if err := ch.blocks.StoreBlock(blk); err != nil {
			t.Fatalf("store block at height %d: %v", h, err)
		}
		parent = blk.Hash()
	}

	if err := ch.Reorg(parent); err == nil {
		t.Fatal("expected overdepth reorg to fail")
	}
	if ch.Height() != 0 {
		t.Fatalf("height changed after rejected reorg: got %d, want 0", ch.Height())
	}
}
