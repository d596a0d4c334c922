package chain

import (
	"encoding/json"
	"testing"

	"github.com/zion-chain/zion/internal/chainparams"
	"github.com/zion-chain/zion/pkg/block"
	"github.com/zion-chain/zion/pkg/types"
)

// TestRebuildReorg_MissingUndo verifies that a reorg succeeds via a full UTXO
// rebuild when old-branch blocks are missing undo data.
func TestRebuildReorg_MissingUndo(t *testing.T) {
	ch, _ := testChain(t)

	// Main chain: 3 blocks.
	parent := ch.TipHash()
	var mainBlocks []*block.Block
	ts := uint64(1700000060)
	for h := uint64(1); h <= 3; h++ {
		blk := coinbaseOnlyBlock(t, ch, parent, h, types.Address{byte(h)}, ts)
		if err := ch.ProcessBlock(blk); err != nil {
			t.Fatalf("process main block %d: %v", h, err)
		}
		mainBlocks = append(mainBlocks, blk)
		parent = blk.Hash()
		ts += 60
	}
	if ch.Height() != 3 {
		t.Fatalf("expected height 3, got %d", ch.Height())
	}

	// Delete undo data for all 3 blocks to simulate the "missing undo" scenario.
	for _, blk := range mainBlocks {
		if err := ch.blocks.DeleteUndo(blk.Hash()); err != nil {
			t.Fatalf("DeleteUndo(%s): %v", blk.Hash(), err)
		}
	}

	// Build a longer fork from genesis (4 blocks) to trigger a reorg via
	// rebuildReorg (the undo-based path is unavailable).
	genBlk, err := ch.blocks.GetBlockByHeight(0)
	if err != nil {
		t.Fatalf("get genesis: %v", err)
	}
	var forkBlocks []*block.Block
	prevHash := genBlk.Hash()
	forkTS := uint64(1700000061)
	for i := 0; i < 4; i++ {
		height := uint64(i + 1)
		blk := coinbaseOnlyBlock(t, ch, prevHash, height, types.Address{0xF0 + byte(i)}, forkTS)
		forkBlocks = append(forkBlocks, blk)
		prevHash = blk.Hash()
		forkTS += 60
	}

	for _, blk := range forkBlocks {
		if err := ch.ProcessBlock(blk); err != nil {
			t.Fatalf("process fork block height %d: %v", blk.Header.Height, err)
		}
	}

	if ch.Height() != 4 {
		t.Fatalf("expected height 4 after reorg, got %d", ch.Height())
	}
	lastFork := forkBlocks[len(forkBlocks)-1]
	if ch.TipHash() != lastFork.Hash() {
		t.Fatalf("tip hash mismatch: got %s, want %s", ch.TipHash(), lastFork.Hash())
	}

	// Undo data should now exist for every block on the new branch.
	for _, blk := range forkBlocks {
		undoBytes, err := ch.blocks.GetUndo(blk.Hash())
		if err != nil {
			t.Fatalf("GetUndo for new block at height %d: %v", blk.Header.Height, err)
		}
		var undo UndoData
		if err := json.Unmarshal(undoBytes, &undo); err != nil {
			t.Fatalf("unmarshal undo at height %d: %v", blk.Header.Height, err)
		}
	}
}

// TestRebuildReorg_SupplyCorrect verifies that supply is correctly
// recomputed after a rebuild reorg.
func TestRebuildReorg_SupplyCorrect(t *testing.T) {
	ch, gen := testChain(t)
	params := gen.Params()
	var genesisSupply uint64
	for _, bucket := range params.Premine {
		genesisSupply += bucket.Coins * types.Coin
	}

	// Main chain: 2 blocks.
	blk1 := coinbaseOnlyBlock(t, ch, ch.TipHash(), 1, types.Address{0x01}, 1700000060)
	if err := ch.ProcessBlock(blk1); err != nil {
		t.Fatalf("process block 1: %v", err)
	}
	blk2 := coinbaseOnlyBlock(t, ch, blk1.Hash(), 2, types.Address{0x02}, 1700000120)
	if err := ch.ProcessBlock(blk2); err != nil {
		t.Fatalf("process block 2: %v", err)
	}

	// Delete undo data so the reorg must rebuild.
	if err := ch.blocks.DeleteUndo(blk1.Hash()); err != nil {
		t.Fatalf("DeleteUndo block 1: %v", err)
	}
	if err := ch.blocks.DeleteUndo(blk2.Hash()); err != nil {
		t.Fatalf("DeleteUndo block 2: %v", err)
	}

	// Build a 3-block fork from genesis.
	genBlk, err := ch.blocks.GetBlockByHeight(0)
	if err != nil {
		t.Fatalf("get genesis: %v", err)
	}
	prevHash := genBlk.Hash()
	forkTS := uint64(1700000061)
	var wantReward uint64
	for i := 0; i < 3; i++ {
		height := uint64(i + 1)
		blk := coinbaseOnlyBlock(t, ch, prevHash, height, types.Address{0xF0 + byte(i)}, forkTS)
		if err := ch.ProcessBlock(blk); err != nil {
			t.Fatalf("process fork block height %d: %v", height, err)
		}
		wantReward += chainparams.Subsidy(height)
		prevHash = blk.Hash()
		forkTS += 60
	}

	expectedSupply := genesisSupply + wantReward
	if ch.Supply() != expectedSupply {
		t.Errorf("supply after rebuild reorg = %d, want %d", ch.Supply(), expectedSupply)
	}
}

// TestRebuildUTXOs_StoresUndoData verifies that RebuildUTXOs persists undo
// data for every replayed block, so later reorgs can use the faster
// undo-based path instead of falling back to another rebuild.
func TestRebuildUTXOs_StoresUndoData(t *testing.T) {
	ch, _ := testChain(t)

	parent := ch.TipHash()
	ts := uint64(1700000060)
	var blocks []*block.Block
	for h := uint64(1); h <= 3; h++ {
		blk := coinbaseOnlyBlock(t, ch, parent, h, types.Address{byte(h)}, ts)
		if err := ch.ProcessBlock(blk); err != nil {
			t.Fatalf("process block %d: %v", h, err)
		}
		blocks = append(blocks, blk)
		parent = blk.Hash()
		ts += 60
	}

	for _, blk := range blocks {
		if err := ch.blocks.DeleteUndo(blk.Hash()); err != nil {
			t.Fatalf("DeleteUndo(%s): %v", blk.Hash(), err)
		}
	}

	if err := ch.RebuildUTXOs(); err != nil {
		t.Fatalf("RebuildUTXOs: %v", err)
	}

	for _, blk := range blocks {
		undoBytes, err := ch.blocks.GetUndo(blk.Hash())
		if err != nil {
			t.Fatalf("GetUndo after rebuild at height %d: %v", blk.Header.Height, err)
		}
		var undo UndoData
		if err := json.Unmarshal(undoBytes, &undo); err != nil {
			t.Fatalf("unmarshal undo at height %d: %v", blk.Header.Height, err)
		}
		if len(undo.CreatedOutpoints) == 0 {
			t.Errorf("undo at height %d has no created outpoints", blk.Header.Height)
		}
	}
}
