package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/chainpulse/wallet-tracker/internal/models"
	"github.com/chainpulse/wallet-tracker/internal/provider"
	"github.com/chainpulse/wallet-tracker/internal/rotation"
	"github.com/chainpulse/wallet-tracker/internal/storage"
	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

func newTestServer(t *testing.T, providerURL string) (*HTTPServer, storage.Storage) {
	t.Helper()

	utils.InitLogger("error", "text", "stdout", "")

	store := storage.NewSQLiteStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "server_test.db"),
		MaxConnections:   10,
		MaxIdleTime:      15 * time.Minute,
	})
	if err := store.Connect(); err != nil {
		t.Fatalf("Failed to connect storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("Failed to migrate storage: %v", err)
	}

	client := provider.NewClient(&provider.ClientConfig{
		BaseURL:        providerURL,
		RequestTimeout: 5 * time.Second,
	})
	rotator := rotation.NewRotator([]string{"key-a", "key-b"}, store, nil)

	srv := NewHTTPServer(&ServerConfig{
		Port:              0,
		Host:              "127.0.0.1",
		EnableHealth:      true,
		TransactionsLimit: 50,
	}, store, client, rotator, nil, nil, nil)

	return srv, store
}

func doRequest(srv *HTTPServer, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	srv.router.ServeHTTP(recorder, req)
	return recorder
}

func TestWalletLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused")

	wallet := map[string]interface{}{
		"name":   "Whale",
		"wallet": "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B",
		"chains": []string{"eth"},
	}

	// Register
	resp := doRequest(srv, "POST", "/api/v1/wallets", wallet)
	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var created models.TrackedWallet
	json.Unmarshal(resp.Body.Bytes(), &created)
	if created.Wallet != "0xab5801a7d398351b8be11c439e05c5b3259aec9b" {
		t.Errorf("Expected normalized lowercase address, got %s", created.Wallet)
	}
	t.Logf("✓ Wallet registered with normalized address")

	// Duplicate registration
	resp = doRequest(srv, "POST", "/api/v1/wallets", wallet)
	if resp.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate, got %d", resp.Code)
	}

	// Invalid address
	resp = doRequest(srv, "POST", "/api/v1/wallets", map[string]interface{}{
		"wallet": "not-an-address", "chains": []string{"eth"},
	})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid address, got %d", resp.Code)
	}

	// Missing chains
	resp = doRequest(srv, "POST", "/api/v1/wallets", map[string]interface{}{
		"wallet": "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	})
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing chains, got %d", resp.Code)
	}
	t.Logf("✓ Registration validation enforced")

	// Fetch, case-insensitive lookup
	resp = doRequest(srv, "GET", "/api/v1/wallets/0xAB5801a7D398351b8bE11C439e05C5B3259aeC9B", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	// Update
	resp = doRequest(srv, "PUT", "/api/v1/wallets/0xab5801a7d398351b8be11c439e05c5b3259aec9b",
		map[string]interface{}{"name": "Renamed", "chains": []string{"eth", "base"}})
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200 on update, got %d: %s", resp.Code, resp.Body.String())
	}

	// List
	resp = doRequest(srv, "GET", "/api/v1/wallets", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}
	var listing struct {
		Total int `json:"total"`
	}
	json.Unmarshal(resp.Body.Bytes(), &listing)
	if listing.Total != 1 {
		t.Errorf("Expected 1 wallet listed, got %d", listing.Total)
	}

	// Delete
	resp = doRequest(srv, "DELETE", "/api/v1/wallets/0xab5801a7d398351b8be11c439e05c5b3259aec9b", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200 on delete, got %d", resp.Code)
	}
	resp = doRequest(srv, "GET", "/api/v1/wallets/0xab5801a7d398351b8be11c439e05c5b3259aec9b", nil)
	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.Code)
	}
	t.Logf("✓ Wallet lifecycle complete")
}

func seedTransactions(t *testing.T, store storage.Storage, wallet string, count int) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < count; i++ {
		tx := &models.Transaction{
			ID:                fmt.Sprintf("seed-%d", i),
			Wallet:            wallet,
			Chain:             "eth",
			Type:              "buy",
			TxHash:            fmt.Sprintf("0xhash%d", i),
			TxIndex:           i,
			BlockTimestamp:    time.Now().Add(-time.Duration(i) * time.Minute).UTC().Format(time.RFC3339),
			TokenInAddress:    "0x2",
			TokenInSymbol:     "PEPE",
			TokenInAmount:     "100",
			TokenInAmountUsd:  "50",
			TokenOutAddress:   "0x1",
			TokenOutSymbol:    "WETH",
			TokenOutAmount:    "0.01",
			TokenOutAmountUsd: "50",
		}
		if err := store.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("Failed to seed transaction: %v", err)
		}
	}
}

func TestListTransactionsCapsLimit(t *testing.T) {
	srv, store := newTestServer(t, "http://unused")
	wallet := "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
	seedTransactions(t, store, wallet, 60)

	// Request above the cap comes back capped
	resp := doRequest(srv, "GET", "/api/v1/wallets/"+wallet+"/transactions?limit=500", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}
	var body struct {
		Total int `json:"total"`
		Limit int `json:"limit"`
	}
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Limit != 50 || body.Total != 50 {
		t.Errorf("Expected capped limit 50, got limit=%d total=%d", body.Limit, body.Total)
	}

	// Small explicit limit honored
	resp = doRequest(srv, "GET", "/api/v1/wallets/"+wallet+"/transactions?limit=5", nil)
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Total != 5 {
		t.Errorf("Expected 5 transactions, got %d", body.Total)
	}
	t.Logf("✓ Transactions limit capped at %d", 50)
}

func TestPnlSummaryEndpoint(t *testing.T) {
	srv, store := newTestServer(t, "http://unused")
	wallet := "0xab5801a7d398351b8be11c439e05c5b3259aec9b"
	ctx := context.Background()

	buy := &models.Transaction{
		ID: "p-1", Wallet: wallet, Chain: "eth", Type: "buy",
		TxHash: "0xp1", TxIndex: 0,
		BlockTimestamp:   "2025-08-01T00:00:00Z",
		TokenInAddress:   "0x2", TokenInSymbol: "PEPE",
		TokenInAmount: "100", TokenInAmountUsd: "100",
	}
	sell := &models.Transaction{
		ID: "p-2", Wallet: wallet, Chain: "eth", Type: "sell",
		TxHash: "0xp2", TxIndex: 0,
		BlockTimestamp:    "2025-08-02T00:00:00Z",
		TokenOutAddress:   "0x2", TokenOutSymbol: "PEPE",
		TokenOutAmount: "100", TokenOutAmountUsd: "250",
	}
	for _, tx := range []*models.Transaction{buy, sell} {
		if err := store.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("Failed to seed: %v", err)
		}
	}

	resp := doRequest(srv, "GET", "/api/v1/wallets/"+wallet+"/pnl/summary", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Summary struct {
			Trades            int     `json:"trades"`
			RealizedProfitUsd float64 `json:"realizedProfitUsd"`
		} `json:"summary"`
	}
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Summary.Trades != 2 {
		t.Errorf("Expected 2 trades, got %d", body.Summary.Trades)
	}
	if body.Summary.RealizedProfitUsd != 150 {
		t.Errorf("Expected realized profit 150, got %v", body.Summary.RealizedProfitUsd)
	}
	t.Logf("✓ PNL summary computed from recorded swaps")
}

func TestPnlSummaryProviderPassthrough(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total_count_of_trades": 42, "total_realized_profit_usd": "1234.5", "total_buys": 30, "total_sells": 12}`))
	}))
	defer backend.Close()

	srv, _ := newTestServer(t, backend.URL)
	wallet := "0xab5801a7d398351b8be11c439e05c5b3259aec9b"

	// Provider lookups need an explicit chain
	resp := doRequest(srv, "GET", "/api/v1/wallets/"+wallet+"/pnl/summary?source=provider", nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without chain, got %d", resp.Code)
	}

	resp = doRequest(srv, "GET", "/api/v1/wallets/"+wallet+"/pnl/summary?source=provider&chain=eth", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var body struct {
		Source  string `json:"source"`
		Summary struct {
			TotalCountOfTrades     int    `json:"total_count_of_trades"`
			TotalRealizedProfitUsd string `json:"total_realized_profit_usd"`
		} `json:"summary"`
	}
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Source != "provider" {
		t.Errorf("Expected provider source marker, got %q", body.Source)
	}
	if body.Summary.TotalCountOfTrades != 42 || body.Summary.TotalRealizedProfitUsd != "1234.5" {
		t.Errorf("Summary not passed through: %+v", body.Summary)
	}
	t.Logf("✓ PNL summary proxied from the provider")
}

func TestHoldingsWalksCredentialPool(t *testing.T) {
	calls := 0
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("X-API-Key") == "key-a" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message": "SUPPORT BLOCKED: Please contact support@moralis.io"}`))
			return
		}
		w.Write([]byte(`{"result": [{"token_address": "0x2", "symbol": "PEPE", "usd_value": 4490}]}`))
	}))
	defer backend.Close()

	srv, _ := newTestServer(t, backend.URL)

	resp := doRequest(srv, "GET",
		"/api/v1/wallets/0xab5801a7d398351b8be11c439e05c5b3259aec9b/holdings?chain=eth", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if calls != 2 {
		t.Errorf("Expected blocked key then rotated key, got %d calls", calls)
	}

	var body struct {
		Total int `json:"total"`
	}
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body.Total != 1 {
		t.Errorf("Expected 1 holding, got %d", body.Total)
	}
	t.Logf("✓ Holdings lookup rotated past the spent key")
}

func TestHoldingsRequiresChain(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused")

	resp := doRequest(srv, "GET",
		"/api/v1/wallets/0xab5801a7d398351b8be11c439e05c5b3259aec9b/holdings", nil)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without chain, got %d", resp.Code)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv, store := newTestServer(t, "http://unused")
	ctx := context.Background()

	rich := &models.TrackedWallet{Name: "Rich", Wallet: "0x1111111111111111111111111111111111111111", Chains: []string{"eth"}}
	poor := &models.TrackedWallet{Name: "Poor", Wallet: "0x2222222222222222222222222222222222222222", Chains: []string{"eth"}}
	for _, w := range []*models.TrackedWallet{rich, poor} {
		if err := store.SaveWallet(ctx, w); err != nil {
			t.Fatalf("Failed to seed wallet: %v", err)
		}
	}

	sellFor := func(id, wallet, hash, usd string) *models.Transaction {
		return &models.Transaction{
			ID: id, Wallet: wallet, Chain: "eth", Type: "sell",
			TxHash: hash, TxIndex: 0,
			BlockTimestamp:    "2025-08-01T00:00:00Z",
			TokenOutAddress:   "0x2", TokenOutSymbol: "PEPE",
			TokenOutAmount: "10", TokenOutAmountUsd: usd,
		}
	}
	store.SaveTransaction(ctx, sellFor("l-1", rich.Wallet, "0xl1", "900"))
	store.SaveTransaction(ctx, sellFor("l-2", poor.Wallet, "0xl2", "5"))

	resp := doRequest(srv, "GET", "/api/v1/leaderboard", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var body struct {
		Leaderboard []struct {
			Wallet            string  `json:"wallet"`
			RealizedProfitUsd float64 `json:"realizedProfitUsd"`
		} `json:"leaderboard"`
	}
	json.Unmarshal(resp.Body.Bytes(), &body)
	if len(body.Leaderboard) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(body.Leaderboard))
	}
	if body.Leaderboard[0].Wallet != rich.Wallet {
		t.Errorf("Expected Rich first, got %s", body.Leaderboard[0].Wallet)
	}
	t.Logf("✓ Leaderboard ranked by realized profit")
}

func TestErrorResponsesCarryCodes(t *testing.T) {
	t.Run("validation failure", func(t *testing.T) {
		srv, _ := newTestServer(t, "http://unused")

		resp := doRequest(srv, "POST", "/api/v1/wallets", map[string]interface{}{
			"wallet": "not-an-address", "chains": []string{"eth"},
		})
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", resp.Code)
		}

		var body struct {
			Code string `json:"code"`
		}
		json.Unmarshal(resp.Body.Bytes(), &body)
		if body.Code != utils.ErrCodeValidation {
			t.Errorf("Expected %s code, got %q", utils.ErrCodeValidation, body.Code)
		}
	})

	t.Run("pool exhausted", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message": "SUPPORT BLOCKED: Please contact support@moralis.io"}`))
		}))
		defer backend.Close()

		srv, _ := newTestServer(t, backend.URL)

		resp := doRequest(srv, "GET",
			"/api/v1/wallets/0xab5801a7d398351b8be11c439e05c5b3259aec9b/holdings?chain=eth", nil)
		if resp.Code != http.StatusServiceUnavailable {
			t.Fatalf("Expected 503 with every key spent, got %d", resp.Code)
		}

		var body struct {
			Code string `json:"code"`
		}
		json.Unmarshal(resp.Body.Bytes(), &body)
		if body.Code != utils.ErrCodeExhausted {
			t.Errorf("Expected %s code, got %q", utils.ErrCodeExhausted, body.Code)
		}
		t.Logf("✓ Error responses carry application error codes")
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "http://unused")

	resp := doRequest(srv, "GET", "/health", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}

	var body map[string]interface{}
	json.Unmarshal(resp.Body.Bytes(), &body)
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
}
