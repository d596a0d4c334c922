package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/zion-chain/zion/internal/chainparams"
	"github.com/zion-chain/zion/internal/utxo"
	"github.com/zion-chain/zion/internal/wallet"
	"github.com/zion-chain/zion/pkg/crypto"
	"github.com/zion-chain/zion/pkg/tx"
	"github.com/zion-chain/zion/pkg/types"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// setupWalletEnv builds a plain testEnv (see server_test.go) and wires a
// keystore plus a persistent wallet tx index onto it, the way a node started
// with --wallet would.
func setupWalletEnv(t *testing.T) *testEnv {
	t.Helper()
	env := setupTestEnv(t)

	ksDir := t.TempDir()
	ks, err := wallet.NewKeystore(ksDir)
	if err != nil {
		t.Fatalf("create keystore: %v", err)
	}
	env.server.SetKeystore(ks)
	env.server.SetWalletTxIndex(NewWalletTxIndex(env.db))

	return env
}

// putUTXO injects a spendable, mature output for addr directly into the
// chain's UTXO store, as if a prior confirmed transaction had produced it.
func putUTXO(t *testing.T, env *testEnv, seed string, addr types.Address, amount uint64) types.Outpoint {
	t.Helper()
	op := types.Outpoint{Index: 0}
	copy(op.TxID[:], []byte(fmt.Sprintf("%-32s", seed)))
	entry := &utxo.UTXO{
		Outpoint: op,
		Output: tx.Output{
			Amount:    types.Amount(amount),
			Recipient: addr,
		},
		Height:   1,
		Coinbase: false,
	}
	if err := env.utxos.Put(entry); err != nil {
		t.Fatalf("put utxo: %v", err)
	}
	return op
}

func importedAddress(t *testing.T, resp Response) types.Address {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("wallet_import error: %s", resp.Error.Message)
	}
	var result WalletImportResult
	d, _ := json.Marshal(resp.Result)
	if err := json.Unmarshal(d, &result); err != nil {
		t.Fatalf("unmarshal import result: %v", err)
	}
	addr, err := types.ParseAddress(result.Address)
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}
	return addr
}

func historyTypes(entries []TxHistoryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Type
	}
	return out
}

// ── Wallet create ────────────────────────────────────────────────────────

func TestRPC_WalletCreate(t *testing.T) {
	env := setupWalletEnv(t)

	resp := rpcCall(t, env.url, "wallet_create", WalletCreateParam{
		Name:     "test",
		Password: "pass123",
	})
	if resp.Error != nil {
		t.Fatalf("wallet_create error: %s", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result WalletCreateResult
	json.Unmarshal(data, &result)

	if result.Mnemonic == "" {
		t.Error("mnemonic should not be empty")
	}
	if result.Address == "" {
		t.Error("address should not be empty")
	}
	if !wallet.ValidateMnemonic(result.Mnemonic) {
		t.Error("returned mnemonic should be valid")
	}
}

func TestRPC_WalletCreate_DuplicateName(t *testing.T) {
	env := setupWalletEnv(t)

	resp := rpcCall(t, env.url, "wallet_create", WalletCreateParam{Name: "dup", Password: "pass"})
	if resp.Error != nil {
		t.Fatalf("first create: %s", resp.Error.Message)
	}

	resp2 := rpcCall(t, env.url, "wallet_create", WalletCreateParam{Name: "dup", Password: "pass"})
	if resp2.Error == nil {
		t.Fatal("expected error for duplicate wallet name")
	}
}

func TestRPC_WalletCreate_WalletNotEnabled(t *testing.T) {
	env := setupTestEnv(t) // no keystore wired

	resp := rpcCall(t, env.url, "wallet_create", WalletCreateParam{Name: "x", Password: "p"})
	if resp.Error == nil {
		t.Fatal("expected error when wallet is disabled")
	}
	if resp.Error.Code != CodeInternalError {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeInternalError)
	}
}

// ── Wallet import ────────────────────────────────────────────────────────

func TestRPC_WalletImport(t *testing.T) {
	env := setupWalletEnv(t)

	resp := rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "imported", Password: "pass", Mnemonic: testMnemonic,
	})
	if resp.Error != nil {
		t.Fatalf("wallet_import error: %s", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result WalletImportResult
	json.Unmarshal(data, &result)

	if result.Address == "" {
		t.Error("address should not be empty")
	}
}

func TestRPC_WalletImport_AddressDiscovery(t *testing.T) {
	env := setupWalletEnv(t)

	seed, _ := wallet.SeedFromMnemonic(testMnemonic, "")
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		t.Fatalf("master key: %v", err)
	}
	for i := range seed {
		seed[i] = 0
	}

	ext0Key, _ := master.DeriveAddress(0, wallet.ChangeExternal, 0)
	ext2Key, _ := master.DeriveAddress(0, wallet.ChangeExternal, 2)
	chg0Key, _ := master.DeriveAddress(0, wallet.ChangeInternal, 0)

	for i, k := range []*wallet.HDKey{ext0Key, ext2Key, chg0Key} {
		putUTXO(t, env, fmt.Sprintf("disc-test-utxo-%d", i), k.Address(), 1*uint64(chainparams.Subsidy(0)))
	}

	resp := rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "disc-test", Password: "pass", Mnemonic: testMnemonic,
	})
	if resp.Error != nil {
		t.Fatalf("wallet_import error: %s", resp.Error.Message)
	}

	accounts, err := env.server.keystore.ListAccounts("disc-test")
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}

	type acctKey struct {
		Index  uint32
		Change uint32
	}
	found := make(map[acctKey]bool)
	for _, a := range accounts {
		found[acctKey{a.Index, a.Change}] = true
	}

	for _, want := range []acctKey{
		{0, wallet.ChangeExternal},
		{2, wallet.ChangeExternal},
		{0, wallet.ChangeInternal},
	} {
		if !found[want] {
			t.Errorf("account (index=%d, change=%d) not discovered; found: %v", want.Index, want.Change, found)
		}
	}
	if found[acctKey{1, wallet.ChangeExternal}] {
		t.Error("ext index 1 should not be discovered (no UTXOs)")
	}

	extIdx, _ := env.server.keystore.GetExternalIndex("disc-test")
	if extIdx != 3 {
		t.Errorf("NextExternalIndex = %d, want 3", extIdx)
	}
	chgIdx, _ := env.server.keystore.GetChangeIndex("disc-test")
	if chgIdx != 1 {
		t.Errorf("NextChangeIndex = %d, want 1", chgIdx)
	}
}

func TestRPC_WalletImport_InvalidMnemonic(t *testing.T) {
	env := setupWalletEnv(t)

	resp := rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "bad", Password: "pass", Mnemonic: "not a valid mnemonic phrase at all",
	})
	if resp.Error == nil {
		t.Fatal("expected error for invalid mnemonic")
	}
}

// ── Wallet list ──────────────────────────────────────────────────────────

func TestRPC_WalletList(t *testing.T) {
	env := setupWalletEnv(t)

	resp := rpcCall(t, env.url, "wallet_list", nil)
	if resp.Error != nil {
		t.Fatalf("wallet_list error: %s", resp.Error.Message)
	}
	data, _ := json.Marshal(resp.Result)
	var result WalletListResult
	json.Unmarshal(data, &result)
	if len(result.Wallets) != 0 {
		t.Errorf("expected 0 wallets, got %d", len(result.Wallets))
	}

	rpcCall(t, env.url, "wallet_create", WalletCreateParam{Name: "w1", Password: "p"})

	resp2 := rpcCall(t, env.url, "wallet_list", nil)
	data2, _ := json.Marshal(resp2.Result)
	var result2 WalletListResult
	json.Unmarshal(data2, &result2)
	if len(result2.Wallets) != 1 {
		t.Errorf("expected 1 wallet, got %d", len(result2.Wallets))
	}
}

// ── Wallet new address ───────────────────────────────────────────────────

func TestRPC_WalletNewAddress(t *testing.T) {
	env := setupWalletEnv(t)

	rpcCall(t, env.url, "wallet_create", WalletCreateParam{Name: "addr-test", Password: "pass"})

	resp := rpcCall(t, env.url, "wallet_newAddress", WalletNewAddressParam{
		Name: "addr-test", Password: "pass",
	})
	if resp.Error != nil {
		t.Fatalf("wallet_newAddress error: %s", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result WalletAddressResult
	json.Unmarshal(data, &result)

	if result.Index != 1 {
		t.Errorf("index = %d, want 1 (first new address after default)", result.Index)
	}
	if result.Address == "" {
		t.Error("address should not be empty")
	}
}

func TestRPC_WalletNewAddress_WrongPassword(t *testing.T) {
	env := setupWalletEnv(t)

	rpcCall(t, env.url, "wallet_create", WalletCreateParam{Name: "pw-test", Password: "correct"})

	resp := rpcCall(t, env.url, "wallet_newAddress", WalletNewAddressParam{
		Name: "pw-test", Password: "wrong",
	})
	if resp.Error == nil {
		t.Fatal("expected error for wrong password")
	}
}

// ── Wallet list addresses ────────────────────────────────────────────────

func TestRPC_WalletListAddresses(t *testing.T) {
	env := setupWalletEnv(t)

	rpcCall(t, env.url, "wallet_create", WalletCreateParam{Name: "addrs", Password: "p"})

	resp := rpcCall(t, env.url, "wallet_listAddresses", WalletUnlockParam{Name: "addrs", Password: "p"})
	if resp.Error != nil {
		t.Fatalf("wallet_listAddresses error: %s", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result WalletAddressListResult
	json.Unmarshal(data, &result)

	if len(result.Accounts) != 1 {
		t.Errorf("expected 1 account (default), got %d", len(result.Accounts))
	}
}

// ── Wallet send ──────────────────────────────────────────────────────────

func TestRPC_WalletSend(t *testing.T) {
	env := setupWalletEnv(t)

	importResp := rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "sender", Password: "pass", Mnemonic: testMnemonic,
	})
	senderAddr := importedAddress(t, importResp)

	putUTXO(t, env, "test-tx-for-send", senderAddr, 10*uint64(types.Coin))

	resp := rpcCall(t, env.url, "wallet_send", WalletSendParam{
		Name: "sender", Password: "pass", To: env.addrHex, Amount: uint64(types.Coin),
	})
	if resp.Error != nil {
		t.Fatalf("wallet_send error: %s", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result WalletSendResult
	json.Unmarshal(data, &result)
	if result.TxHash == "" {
		t.Error("tx_hash should not be empty")
	}
	if env.pool.Count() != 1 {
		t.Errorf("mempool count = %d, want 1", env.pool.Count())
	}
}

func TestRPC_WalletSend_InsufficientFunds(t *testing.T) {
	env := setupWalletEnv(t)

	rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "broke", Password: "pass", Mnemonic: testMnemonic,
	})

	resp := rpcCall(t, env.url, "wallet_send", WalletSendParam{
		Name: "broke", Password: "pass", To: env.addrHex, Amount: uint64(types.Coin),
	})
	if resp.Error == nil {
		t.Fatal("expected error for insufficient funds")
	}
}

func TestRPC_WalletSend_FromChangeAddress(t *testing.T) {
	env := setupWalletEnv(t)

	rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "multi-addr", Password: "pass", Mnemonic: testMnemonic,
	})

	seed, _ := wallet.SeedFromMnemonic(testMnemonic, "")
	master, _ := wallet.NewMasterKey(seed)
	for i := range seed {
		seed[i] = 0
	}
	changeKey, _ := master.DeriveAddress(0, wallet.ChangeInternal, 0)
	changeAddr := changeKey.Address()

	if err := env.server.keystore.AddAccount("multi-addr", wallet.AccountEntry{
		Index: 0, Change: wallet.ChangeInternal, Name: "Change 0", Address: changeAddr.String(),
	}); err != nil {
		t.Fatalf("add change account: %v", err)
	}

	putUTXO(t, env, "test-tx-for-change", changeAddr, 5*uint64(types.Coin))

	resp := rpcCall(t, env.url, "wallet_send", WalletSendParam{
		Name: "multi-addr", Password: "pass", To: env.addrHex, Amount: uint64(types.Coin),
	})
	if resp.Error != nil {
		t.Fatalf("wallet_send error: %s", resp.Error.Message)
	}
	if env.pool.Count() != 1 {
		t.Errorf("mempool count = %d, want 1", env.pool.Count())
	}
}

func TestRPC_WalletSend_MultipleAddresses(t *testing.T) {
	env := setupWalletEnv(t)

	importResp := rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "multi-all", Password: "pass", Mnemonic: testMnemonic,
	})
	senderAddr := importedAddress(t, importResp)

	seed, _ := wallet.SeedFromMnemonic(testMnemonic, "")
	master, _ := wallet.NewMasterKey(seed)
	for i := range seed {
		seed[i] = 0
	}
	addr1Key, _ := master.DeriveAddress(0, wallet.ChangeExternal, 1)
	addr1 := addr1Key.Address()

	if err := env.server.keystore.AddAccount("multi-all", wallet.AccountEntry{
		Index: 1, Name: "Address 1", Address: addr1.String(),
	}); err != nil {
		t.Fatalf("add account 1: %v", err)
	}

	putUTXO(t, env, "test-tx-multi-addr0", senderAddr, 1*uint64(types.Coin))
	putUTXO(t, env, "test-tx-multi-addr1", addr1, 1*uint64(types.Coin))

	resp := rpcCall(t, env.url, "wallet_send", WalletSendParam{
		Name: "multi-all", Password: "pass", To: env.addrHex, Amount: uint64(types.Coin) + uint64(types.Coin)/2,
	})
	if resp.Error != nil {
		t.Fatalf("wallet_send error: %s", resp.Error.Message)
	}
	if env.pool.Count() != 1 {
		t.Errorf("mempool count = %d, want 1", env.pool.Count())
	}
}

// ── Wallet consolidate ───────────────────────────────────────────────────

func TestRPC_WalletConsolidate(t *testing.T) {
	env := setupWalletEnv(t)

	importResp := rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "consolidator", Password: "pass", Mnemonic: testMnemonic,
	})
	senderAddr := importedAddress(t, importResp)

	for i := 0; i < 5; i++ {
		putUTXO(t, env, fmt.Sprintf("test-tx-consolidate-%d", i), senderAddr, 1*uint64(types.Coin))
	}

	resp := rpcCall(t, env.url, "wallet_consolidate", WalletConsolidateParam{
		Name: "consolidator", Password: "pass",
	})
	if resp.Error != nil {
		t.Fatalf("wallet_consolidate error: %s", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result WalletConsolidateResult
	json.Unmarshal(data, &result)

	if result.TxHash == "" {
		t.Error("tx_hash should not be empty")
	}
	if result.InputsUsed != 5 {
		t.Errorf("inputs_used = %d, want 5", result.InputsUsed)
	}
}

func TestRPC_WalletConsolidate_MaxInputsTooHigh(t *testing.T) {
	env := setupWalletEnv(t)

	rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "consolidator2", Password: "pass", Mnemonic: testMnemonic,
	})

	resp := rpcCall(t, env.url, "wallet_consolidate", WalletConsolidateParam{
		Name: "consolidator2", Password: "pass",
		MaxInputs: uint32(chainparams.MaxTxInputs) + 1,
	})
	if resp.Error == nil {
		t.Fatal("expected error for max_inputs above the cap")
	}
	if resp.Error.Code != CodeInvalidParams {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeInvalidParams)
	}
}

func TestRPC_WalletConsolidate_NoUTXOs(t *testing.T) {
	env := setupWalletEnv(t)

	rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "empty-wallet", Password: "pass", Mnemonic: testMnemonic,
	})

	resp := rpcCall(t, env.url, "wallet_consolidate", WalletConsolidateParam{
		Name: "empty-wallet", Password: "pass",
	})
	if resp.Error == nil {
		t.Fatal("expected error when there is nothing to consolidate")
	}
}

// ── Wallet send many ─────────────────────────────────────────────────────

func TestRPC_WalletSendMany(t *testing.T) {
	env := setupWalletEnv(t)

	importResp := rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "sendmany-test", Password: "pass", Mnemonic: testMnemonic,
	})
	senderAddr := importedAddress(t, importResp)

	putUTXO(t, env, "test-tx-for-sendmany", senderAddr, 20*uint64(types.Coin))

	resp := rpcCall(t, env.url, "wallet_sendMany", WalletSendManyParam{
		Name: "sendmany-test", Password: "pass",
		Recipients: []Recipient{
			{To: env.addrHex, Amount: 1 * uint64(types.Coin)},
			{To: env.addrHex, Amount: 2 * uint64(types.Coin)},
		},
	})
	if resp.Error != nil {
		t.Fatalf("wallet_sendMany error: %s", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result WalletSendManyResult
	json.Unmarshal(data, &result)
	if result.TxHash == "" {
		t.Error("tx_hash should not be empty")
	}
	if env.pool.Count() != 1 {
		t.Errorf("mempool count = %d, want 1", env.pool.Count())
	}
}

func TestRPC_WalletSendMany_InsufficientFunds(t *testing.T) {
	env := setupWalletEnv(t)

	rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "sendmany-broke", Password: "pass", Mnemonic: testMnemonic,
	})

	resp := rpcCall(t, env.url, "wallet_sendMany", WalletSendManyParam{
		Name: "sendmany-broke", Password: "pass",
		Recipients: []Recipient{{To: env.addrHex, Amount: 1 * uint64(types.Coin)}},
	})
	if resp.Error == nil {
		t.Fatal("expected error for insufficient funds")
	}
}

func TestRPC_WalletSendMany_EmptyRecipients(t *testing.T) {
	env := setupWalletEnv(t)

	rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "sendmany-empty", Password: "pass", Mnemonic: testMnemonic,
	})

	resp := rpcCall(t, env.url, "wallet_sendMany", WalletSendManyParam{
		Name: "sendmany-empty", Password: "pass", Recipients: []Recipient{},
	})
	if resp.Error == nil {
		t.Fatal("expected error for empty recipients")
	}
}

func TestRPC_WalletSendMany_InvalidAddress(t *testing.T) {
	env := setupWalletEnv(t)

	importResp := rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "sendmany-badaddr", Password: "pass", Mnemonic: testMnemonic,
	})
	senderAddr := importedAddress(t, importResp)
	putUTXO(t, env, "test-tx-sendmany-badaddr", senderAddr, 10*uint64(types.Coin))

	resp := rpcCall(t, env.url, "wallet_sendMany", WalletSendManyParam{
		Name: "sendmany-badaddr", Password: "pass",
		Recipients: []Recipient{{To: "not-a-valid-address", Amount: 1 * uint64(types.Coin)}},
	})
	if resp.Error == nil {
		t.Fatal("expected error for invalid address")
	}
}

// ── Wallet export key ────────────────────────────────────────────────────

func TestRPC_WalletExportKey(t *testing.T) {
	env := setupWalletEnv(t)

	importResp := rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "export-test", Password: "pass", Mnemonic: testMnemonic,
	})
	if importResp.Error != nil {
		t.Fatalf("import: %s", importResp.Error.Message)
	}
	var importResult WalletImportResult
	d, _ := json.Marshal(importResp.Result)
	json.Unmarshal(d, &importResult)

	resp := rpcCall(t, env.url, "wallet_exportKey", WalletExportKeyParam{
		Name: "export-test", Password: "pass", Account: 0, Index: 0,
	})
	if resp.Error != nil {
		t.Fatalf("wallet_exportKey error: %s", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result WalletExportKeyResult
	json.Unmarshal(data, &result)

	if result.PrivateKey == "" {
		t.Error("private_key should not be empty")
	}
	if result.PubKey == "" {
		t.Error("pubkey should not be empty")
	}
	if result.Address != importResult.Address {
		t.Errorf("address = %s, want %s", result.Address, importResult.Address)
	}
	if len(result.PrivateKey) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(result.PrivateKey))
	}

	privBytes, _ := hex.DecodeString(result.PrivateKey)
	privKey, err := crypto.PrivateKeyFromBytes(privBytes)
	if err != nil {
		t.Fatalf("reconstruct key: %v", err)
	}
	pubHex := hex.EncodeToString(privKey.PublicKey())
	if pubHex != result.PubKey {
		t.Errorf("reconstructed pubkey = %s, want %s", pubHex, result.PubKey)
	}
}

// ── Wallet disabled ──────────────────────────────────────────────────────

func TestRPC_WalletDisabled(t *testing.T) {
	env := setupTestEnv(t) // no keystore set

	methods := []struct {
		method string
		params interface{}
	}{
		{"wallet_create", WalletCreateParam{Name: "x", Password: "p"}},
		{"wallet_import", WalletImportParam{Name: "x", Password: "p", Mnemonic: "m"}},
		{"wallet_list", nil},
		{"wallet_newAddress", WalletNewAddressParam{Name: "x", Password: "p"}},
		{"wallet_listAddresses", WalletUnlockParam{Name: "x", Password: "p"}},
		{"wallet_send", WalletSendParam{Name: "x", Password: "p", To: "aa", Amount: 1}},
		{"wallet_consolidate", WalletConsolidateParam{Name: "x", Password: "p"}},
		{"wallet_sendMany", WalletSendManyParam{Name: "x", Password: "p"}},
		{"wallet_exportKey", WalletExportKeyParam{Name: "x", Password: "p"}},
		{"wallet_getHistory", WalletGetHistoryParam{Name: "x", Password: "p"}},
		{"wallet_rescan", WalletRescanParam{Name: "x", Password: "p"}},
	}

	for _, tc := range methods {
		t.Run(tc.method, func(t *testing.T) {
			resp := rpcCall(t, env.url, tc.method, tc.params)
			if resp.Error == nil {
				t.Fatalf("%s: expected error when wallet is disabled", tc.method)
			}
			if resp.Error.Code != CodeInternalError {
				t.Errorf("%s: error code = %d, want %d", tc.method, resp.Error.Code, CodeInternalError)
			}
		})
	}
}

// ── Wallet history ───────────────────────────────────────────────────────

func TestRPC_WalletGetHistory_Mined(t *testing.T) {
	env := setupWalletEnv(t)

	if err := env.server.keystore.Create("validator-wallet", make([]byte, 64), []byte("pass"), wallet.DefaultParams()); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if err := env.server.keystore.AddAccount("validator-wallet", wallet.AccountEntry{
		Index: 0, Name: "Default", Address: env.addrHex,
	}); err != nil {
		t.Fatalf("add account: %v", err)
	}

	mineAndSubmit(t, env)

	resp := rpcCall(t, env.url, "wallet_getHistory", WalletGetHistoryParam{
		Name: "validator-wallet", Password: "pass", Limit: 50,
	})
	if resp.Error != nil {
		t.Fatalf("wallet_getHistory error: %s", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result WalletGetHistoryResult
	json.Unmarshal(data, &result)

	if result.Total == 0 {
		t.Fatal("expected at least one history entry")
	}

	hasMined := false
	for _, e := range result.Entries {
		if e.Type == "mined" {
			hasMined = true
			break
		}
	}
	if !hasMined {
		t.Errorf("expected a 'mined' entry in history, got types: %v", historyTypes(result.Entries))
	}
}

func TestRPC_WalletGetHistory_Sent(t *testing.T) {
	env := setupWalletEnv(t)

	importResp := rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "sender", Password: "pass", Mnemonic: testMnemonic,
	})
	senderAddr := importedAddress(t, importResp)
	putUTXO(t, env, "test-tx-for-hist", senderAddr, 10*uint64(types.Coin))

	sendResp := rpcCall(t, env.url, "wallet_send", WalletSendParam{
		Name: "sender", Password: "pass", To: env.addrHex, Amount: uint64(types.Coin),
	})
	if sendResp.Error != nil {
		t.Fatalf("wallet_send error: %s", sendResp.Error.Message)
	}
	var sendResult WalletSendResult
	sd, _ := json.Marshal(sendResp.Result)
	json.Unmarshal(sd, &sendResult)

	resp := rpcCall(t, env.url, "wallet_getHistory", WalletGetHistoryParam{
		Name: "sender", Password: "pass", Limit: 50,
	})
	if resp.Error != nil {
		t.Fatalf("wallet_getHistory error: %s", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result WalletGetHistoryResult
	json.Unmarshal(data, &result)

	if result.Total == 0 {
		t.Fatal("expected at least one history entry")
	}

	hasSent := false
	for _, e := range result.Entries {
		if e.Type == "sent" {
			hasSent = true
			if e.TxHash != sendResult.TxHash {
				t.Errorf("sent tx hash = %s, want %s", e.TxHash, sendResult.TxHash)
			}
			break
		}
	}
	if !hasSent {
		t.Errorf("expected a 'sent' entry in history, got types: %v", historyTypes(result.Entries))
	}
}

func TestRPC_WalletGetHistory_Pagination(t *testing.T) {
	env := setupWalletEnv(t)

	if err := env.server.keystore.Create("paginated", make([]byte, 64), []byte("pass"), wallet.DefaultParams()); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if err := env.server.keystore.AddAccount("paginated", wallet.AccountEntry{
		Index: 0, Name: "Default", Address: env.addrHex,
	}); err != nil {
		t.Fatalf("add account: %v", err)
	}

	for i := 0; i < 3; i++ {
		mineAndSubmit(t, env)
	}

	resp := rpcCall(t, env.url, "wallet_getHistory", WalletGetHistoryParam{
		Name: "paginated", Password: "pass", Limit: 2, Offset: 0,
	})
	if resp.Error != nil {
		t.Fatalf("wallet_getHistory error: %s", resp.Error.Message)
	}
	data, _ := json.Marshal(resp.Result)
	var result WalletGetHistoryResult
	json.Unmarshal(data, &result)

	if result.Total < 4 {
		t.Errorf("total = %d, want >= 4 (genesis + 3 blocks)", result.Total)
	}
	if len(result.Entries) != 2 {
		t.Errorf("entries = %d, want 2 (limit)", len(result.Entries))
	}

	resp2 := rpcCall(t, env.url, "wallet_getHistory", WalletGetHistoryParam{
		Name: "paginated", Password: "pass", Limit: 2, Offset: 2,
	})
	if resp2.Error != nil {
		t.Fatalf("wallet_getHistory page 2 error: %s", resp2.Error.Message)
	}
	data2, _ := json.Marshal(resp2.Result)
	var result2 WalletGetHistoryResult
	json.Unmarshal(data2, &result2)

	if result2.Total != result.Total {
		t.Errorf("total changed between pages: %d vs %d", result.Total, result2.Total)
	}
	if len(result2.Entries) != 2 {
		t.Errorf("page 2 entries = %d, want 2", len(result2.Entries))
	}
}

func TestRPC_WalletGetHistory_WrongPassword(t *testing.T) {
	env := setupWalletEnv(t)

	if err := env.server.keystore.Create("locked", make([]byte, 64), []byte("correct"), wallet.DefaultParams()); err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	resp := rpcCall(t, env.url, "wallet_getHistory", WalletGetHistoryParam{
		Name: "locked", Password: "wrong",
	})
	if resp.Error == nil {
		t.Fatal("expected error for wrong password")
	}
}

// ── Wallet rescan ────────────────────────────────────────────────────────

func TestRPC_WalletRescan(t *testing.T) {
	env := setupWalletEnv(t)

	rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "rescan-test", Password: "pass", Mnemonic: testMnemonic,
	})

	resp := rpcCall(t, env.url, "wallet_rescan", WalletRescanParam{
		Name: "rescan-test", Password: "pass",
	})
	if resp.Error != nil {
		t.Fatalf("wallet_rescan error: %s", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result WalletRescanResult
	json.Unmarshal(data, &result)
	if result.ToHeight < result.FromHeight {
		t.Errorf("to_height %d < from_height %d", result.ToHeight, result.FromHeight)
	}
}

func TestRPC_WalletRescan_WrongPassword(t *testing.T) {
	env := setupWalletEnv(t)

	rpcCall(t, env.url, "wallet_import", WalletImportParam{
		Name: "rescan-wrong", Password: "correct", Mnemonic: testMnemonic,
	})

	resp := rpcCall(t, env.url, "wallet_rescan", WalletRescanParam{
		Name: "rescan-wrong", Password: "incorrect",
	})
	if resp.Error == nil {
		t.Fatal("expected error for wrong password")
	}
}
