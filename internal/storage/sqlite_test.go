package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chainpulse/wallet-tracker/internal/models"
	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

func newTestStorage(t *testing.T) Storage {
	t.Helper()

	utils.InitLogger("error", "text", "stdout", "")

	store := NewSQLiteStorage(&StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "tracker_test.db"),
		MaxConnections:   10,
		MaxIdleTime:      15 * time.Minute,
	})

	if err := store.Connect(); err != nil {
		t.Fatalf("Failed to connect to storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(); err != nil {
		t.Fatalf("Failed to migrate storage: %v", err)
	}
	if err := store.Ping(); err != nil {
		t.Fatalf("Failed to ping storage: %v", err)
	}

	return store
}

func testWallet(address string, temporal bool) *models.TrackedWallet {
	return &models.TrackedWallet{
		Name:     "Test Trader",
		Wallet:   address,
		Twitter:  "@trader",
		Chains:   []string{"eth", "base"},
		Temporal: temporal,
	}
}

func testTransaction(id, wallet, chain, hash string, index int, ts string) *models.Transaction {
	return &models.Transaction{
		ID:                id,
		Wallet:            wallet,
		Chain:             chain,
		Type:              "buy",
		TxHash:            hash,
		TxIndex:           index,
		BlockTimestamp:    ts,
		TokenOutSymbol:    "WETH",
		TokenOutAddress:   "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
		TokenOutAmount:    "1.5",
		TokenOutAmountUsd: "4500",
		TokenInSymbol:     "PEPE",
		TokenInAddress:    "0x6982508145454ce325ddbe47a25d4ec3d2311933",
		TokenInAmount:     "1000000",
		TokenInAmountUsd:  "4490",
	}
}

func TestSQLiteStorage(t *testing.T) {
	store := newTestStorage(t)

	t.Run("Wallet Operations", func(t *testing.T) { testWalletOperations(t, store) })
	t.Run("Transaction Operations", func(t *testing.T) { testTransactionOperations(t, store) })
	t.Run("Credential Cursor", func(t *testing.T) { testCredentialCursor(t, store) })
	t.Run("Temporal Cleanup", func(t *testing.T) { testTemporalCleanup(t, store) })
	t.Run("Statistics", func(t *testing.T) { testStatistics(t, store) })
}

func testWalletOperations(t *testing.T, store Storage) {
	ctx := context.Background()

	wallet := testWallet("0x1111111111111111111111111111111111111111", false)
	if err := store.SaveWallet(ctx, wallet); err != nil {
		t.Fatalf("Failed to save wallet: %v", err)
	}
	t.Logf("✓ Wallet saved successfully")

	// Duplicate registration is rejected
	err := store.SaveWallet(ctx, testWallet("0x1111111111111111111111111111111111111111", false))
	if err == nil {
		t.Fatal("Expected duplicate wallet registration to fail")
	}
	if appErr, ok := err.(*utils.AppError); !ok || appErr.Code != utils.ErrCodeDuplicate {
		t.Errorf("Expected DUPLICATE_KEY error, got %v", err)
	}
	t.Logf("✓ Duplicate registration rejected")

	retrieved, err := store.GetWallet(ctx, wallet.Wallet)
	if err != nil {
		t.Fatalf("Failed to get wallet: %v", err)
	}
	if retrieved.Name != wallet.Name {
		t.Errorf("Expected name %q, got %q", wallet.Name, retrieved.Name)
	}
	if len(retrieved.Chains) != 2 || retrieved.Chains[0] != "eth" {
		t.Errorf("Chains not round-tripped: %v", retrieved.Chains)
	}
	t.Logf("✓ Wallet retrieved successfully")

	retrieved.Name = "Renamed"
	retrieved.Chains = []string{"eth"}
	if err := store.UpdateWallet(ctx, retrieved); err != nil {
		t.Fatalf("Failed to update wallet: %v", err)
	}
	updated, err := store.GetWallet(ctx, wallet.Wallet)
	if err != nil {
		t.Fatalf("Failed to get updated wallet: %v", err)
	}
	if updated.Name != "Renamed" || len(updated.Chains) != 1 {
		t.Errorf("Update not persisted: %+v", updated)
	}
	t.Logf("✓ Wallet updated successfully")

	wallets, err := store.GetWallets(ctx)
	if err != nil {
		t.Fatalf("Failed to list wallets: %v", err)
	}
	if len(wallets) != 1 {
		t.Errorf("Expected 1 wallet, got %d", len(wallets))
	}

	if err := store.DeleteWallet(ctx, wallet.Wallet); err != nil {
		t.Fatalf("Failed to delete wallet: %v", err)
	}
	if _, err := store.GetWallet(ctx, wallet.Wallet); err == nil {
		t.Fatal("Expected deleted wallet to be gone")
	}
	if err := store.DeleteWallet(ctx, wallet.Wallet); err == nil {
		t.Fatal("Expected deleting a missing wallet to fail")
	}
	t.Logf("✓ Wallet deleted successfully")
}

func testTransactionOperations(t *testing.T, store Storage) {
	ctx := context.Background()
	wallet := "0x2222222222222222222222222222222222222222"

	older := testTransaction("tx-1", wallet, "eth", "0xaaa", 0, "2025-08-30T10:00:00Z")
	newer := testTransaction("tx-2", wallet, "eth", "0xbbb", 3, "2025-08-30T12:00:00Z")
	base := testTransaction("tx-3", wallet, "base", "0xccc", 1, "2025-08-30T11:00:00Z")

	for _, tx := range []*models.Transaction{older, newer, base} {
		if err := store.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("Failed to save transaction %s: %v", tx.ID, err)
		}
	}
	t.Logf("✓ Transactions saved successfully")

	// Same (tx_hash, tx_index) under a different ID hits the unique index
	dup := testTransaction("tx-4", wallet, "eth", "0xaaa", 0, "2025-08-30T10:00:00Z")
	err := store.SaveTransaction(ctx, dup)
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}
	t.Logf("✓ Duplicate transaction rejected by unique index")

	// Same hash at a different index is a distinct swap
	sibling := testTransaction("tx-5", wallet, "eth", "0xaaa", 7, "2025-08-30T10:00:00Z")
	if err := store.SaveTransaction(ctx, sibling); err != nil {
		t.Fatalf("Expected same hash at new index to save: %v", err)
	}

	all, err := store.GetTransactionsByWallet(ctx, wallet, "", 0)
	if err != nil {
		t.Fatalf("Failed to get transactions: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("Expected 4 transactions, got %d", len(all))
	}
	if all[0].TxHash != "0xbbb" {
		t.Errorf("Expected newest transaction first, got %s", all[0].TxHash)
	}
	t.Logf("✓ Transactions listed newest first")

	ethOnly, err := store.GetTransactionsByWallet(ctx, wallet, "eth", 0)
	if err != nil {
		t.Fatalf("Failed to filter by chain: %v", err)
	}
	if len(ethOnly) != 3 {
		t.Errorf("Expected 3 eth transactions, got %d", len(ethOnly))
	}

	limited, err := store.GetTransactionsByWallet(ctx, wallet, "", 2)
	if err != nil {
		t.Fatalf("Failed to limit transactions: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 transactions with limit, got %d", len(limited))
	}
	t.Logf("✓ Chain filter and limit applied")

	removed, err := store.DeleteTransactionsByWallets(ctx, []string{wallet})
	if err != nil {
		t.Fatalf("Failed to delete transactions: %v", err)
	}
	if removed != 4 {
		t.Errorf("Expected 4 deleted rows, got %d", removed)
	}
	t.Logf("✓ Transactions deleted by wallet")
}

func testCredentialCursor(t *testing.T, store Storage) {
	ctx := context.Background()

	_, found, err := store.GetCredentialCursor(ctx)
	if err != nil {
		t.Fatalf("Failed to read cursor: %v", err)
	}
	if found {
		t.Fatal("Expected no cursor before first write")
	}

	if err := store.SetCredentialCursor(ctx, 3); err != nil {
		t.Fatalf("Failed to set cursor: %v", err)
	}
	index, found, err := store.GetCredentialCursor(ctx)
	if err != nil {
		t.Fatalf("Failed to read cursor: %v", err)
	}
	if !found || index != 3 {
		t.Errorf("Expected cursor 3, got %d (found=%v)", index, found)
	}

	// Second write updates the single row
	if err := store.SetCredentialCursor(ctx, 0); err != nil {
		t.Fatalf("Failed to update cursor: %v", err)
	}
	index, _, _ = store.GetCredentialCursor(ctx)
	if index != 0 {
		t.Errorf("Expected cursor 0 after update, got %d", index)
	}
	t.Logf("✓ Credential cursor persisted and updated")
}

func testTemporalCleanup(t *testing.T, store Storage) {
	ctx := context.Background()

	keeper := testWallet("0x3333333333333333333333333333333333333333", false)
	ephemeral := testWallet("0x4444444444444444444444444444444444444444", true)
	for _, w := range []*models.TrackedWallet{keeper, ephemeral} {
		if err := store.SaveWallet(ctx, w); err != nil {
			t.Fatalf("Failed to save wallet: %v", err)
		}
	}

	if err := store.SaveTransaction(ctx,
		testTransaction("tmp-1", ephemeral.Wallet, "eth", "0xddd", 0, "2025-08-30T09:00:00Z")); err != nil {
		t.Fatalf("Failed to save transaction: %v", err)
	}

	removed, err := store.DeleteTemporalWallets(ctx)
	if err != nil {
		t.Fatalf("Failed to delete temporal wallets: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 temporal wallet removed, got %d", removed)
	}

	if _, err := store.GetWallet(ctx, ephemeral.Wallet); err == nil {
		t.Fatal("Expected temporal wallet to be gone")
	}
	if _, err := store.GetWallet(ctx, keeper.Wallet); err != nil {
		t.Fatalf("Expected permanent wallet to survive: %v", err)
	}
	orphans, err := store.GetTransactionsByWallet(ctx, ephemeral.Wallet, "", 0)
	if err != nil {
		t.Fatalf("Failed to check orphan transactions: %v", err)
	}
	if len(orphans) != 0 {
		t.Errorf("Expected temporal transactions removed, got %d", len(orphans))
	}
	t.Logf("✓ Temporal wallets and their transactions cleaned up")
}

func testStatistics(t *testing.T, store Storage) {
	ctx := context.Background()

	if err := store.SaveTransaction(ctx,
		testTransaction("stat-1", "0x3333333333333333333333333333333333333333", "eth", "0xeee", 0, "2025-08-30T13:00:00Z")); err != nil {
		t.Fatalf("Failed to save transaction: %v", err)
	}

	stats, err := store.GetStorageStats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalWallets < 1 {
		t.Errorf("Expected at least 1 wallet, got %d", stats.TotalWallets)
	}
	if stats.TotalTransactions < 1 {
		t.Errorf("Expected at least 1 transaction, got %d", stats.TotalTransactions)
	}
	if stats.LatestTransaction == nil {
		t.Error("Expected latest transaction timestamp")
	}
	t.Logf("✓ Statistics computed: %d wallets, %d transactions", stats.TotalWallets, stats.TotalTransactions)
}
