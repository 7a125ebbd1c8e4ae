package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/chainpulse/wallet-tracker/internal/analytics"
	"github.com/chainpulse/wallet-tracker/internal/models"
	"github.com/chainpulse/wallet-tracker/internal/provider"
	"github.com/chainpulse/wallet-tracker/internal/rotation"
	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

const defaultHoldingsLimit = 15

// Wallet directory handlers

// addWalletHandler registers a wallet for tracking
func (s *HTTPServer) addWalletHandler(w http.ResponseWriter, r *http.Request) {
	var wallet models.TrackedWallet
	if err := json.NewDecoder(r.Body).Decode(&wallet); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if !utils.IsValidAddress(wallet.Wallet) {
		s.writeError(w, http.StatusBadRequest, "Invalid wallet address",
			utils.NewAppError(utils.ErrCodeValidation, "wallet is not a valid hex address", wallet.Wallet))
		return
	}
	if len(wallet.Chains) == 0 {
		s.writeError(w, http.StatusBadRequest, "At least one chain is required",
			utils.NewAppError(utils.ErrCodeValidation, "chains must not be empty"))
		return
	}
	wallet.Wallet = utils.NormalizeAddress(wallet.Wallet)

	if err := s.storage.SaveWallet(r.Context(), &wallet); err != nil {
		if appErr, ok := err.(*utils.AppError); ok && appErr.Code == utils.ErrCodeDuplicate {
			s.writeError(w, http.StatusConflict, "Wallet already registered", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to register wallet", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, &wallet)
}

// listWalletsHandler lists all tracked wallets
func (s *HTTPServer) listWalletsHandler(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.storage.GetWallets(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list wallets", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallets": wallets,
		"total":   len(wallets),
	})
}

// getWalletHandler returns one tracked wallet
func (s *HTTPServer) getWalletHandler(w http.ResponseWriter, r *http.Request) {
	address := utils.NormalizeAddress(mux.Vars(r)["address"])

	wallet, err := s.storage.GetWallet(r.Context(), address)
	if err != nil {
		if appErr, ok := err.(*utils.AppError); ok && appErr.Code == utils.ErrCodeNotFound {
			s.writeError(w, http.StatusNotFound, "Wallet not found", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to get wallet", err)
		return
	}

	s.writeJSON(w, http.StatusOK, wallet)
}

// updateWalletHandler updates a tracked wallet's profile and chains
func (s *HTTPServer) updateWalletHandler(w http.ResponseWriter, r *http.Request) {
	address := utils.NormalizeAddress(mux.Vars(r)["address"])

	var wallet models.TrackedWallet
	if err := json.NewDecoder(r.Body).Decode(&wallet); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	wallet.Wallet = address

	if len(wallet.Chains) == 0 {
		s.writeError(w, http.StatusBadRequest, "At least one chain is required",
			utils.NewAppError(utils.ErrCodeValidation, "chains must not be empty"))
		return
	}

	if err := s.storage.UpdateWallet(r.Context(), &wallet); err != nil {
		if appErr, ok := err.(*utils.AppError); ok && appErr.Code == utils.ErrCodeNotFound {
			s.writeError(w, http.StatusNotFound, "Wallet not found", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to update wallet", err)
		return
	}

	s.writeJSON(w, http.StatusOK, &wallet)
}

// removeWalletHandler deletes a tracked wallet and its recorded activity
func (s *HTTPServer) removeWalletHandler(w http.ResponseWriter, r *http.Request) {
	address := utils.NormalizeAddress(mux.Vars(r)["address"])

	if _, err := s.storage.DeleteTransactionsByWallets(r.Context(), []string{address}); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to delete wallet transactions", err)
		return
	}

	if err := s.storage.DeleteWallet(r.Context(), address); err != nil {
		if appErr, ok := err.(*utils.AppError); ok && appErr.Code == utils.ErrCodeNotFound {
			s.writeError(w, http.StatusNotFound, "Wallet not found", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to delete wallet", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": address})
}

// Activity handlers

// listTransactionsHandler returns a wallet's recorded swaps, newest first
func (s *HTTPServer) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	address := utils.NormalizeAddress(mux.Vars(r)["address"])
	chain := r.URL.Query().Get("chain")

	limit := s.config.TransactionsLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	if s.config.TransactionsLimit > 0 && limit > s.config.TransactionsLimit {
		limit = s.config.TransactionsLimit
	}

	transactions, err := s.storage.GetTransactionsByWallet(r.Context(), address, chain, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get transactions", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"total":        len(transactions),
		"limit":        limit,
	})
}

// Analytics handlers

// tokenPnlHandler returns per-token realized PNL computed from recorded swaps.
// With ?source=provider it proxies the provider's profitability endpoint
// instead, which covers activity from before the wallet was tracked.
func (s *HTTPServer) tokenPnlHandler(w http.ResponseWriter, r *http.Request) {
	address := utils.NormalizeAddress(mux.Vars(r)["address"])
	chain := r.URL.Query().Get("chain")

	if r.URL.Query().Get("source") == "provider" {
		s.providerTokenPnl(w, r, address, chain)
		return
	}

	transactions, err := s.storage.GetTransactionsByWallet(r.Context(), address, chain, 0)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get transactions", err)
		return
	}

	if since, ok := parseSince(r); ok {
		transactions = analytics.FilterSince(transactions, since)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet": address,
		"tokens": analytics.CalculateTokenPnl(transactions),
	})
}

// pnlSummaryHandler returns a wallet-level realized PNL summary. Supports the
// same ?source=provider passthrough as the per-token endpoint.
func (s *HTTPServer) pnlSummaryHandler(w http.ResponseWriter, r *http.Request) {
	address := utils.NormalizeAddress(mux.Vars(r)["address"])
	chain := r.URL.Query().Get("chain")

	if r.URL.Query().Get("source") == "provider" {
		s.providerPnlSummary(w, r, address, chain)
		return
	}

	transactions, err := s.storage.GetTransactionsByWallet(r.Context(), address, chain, 0)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to get transactions", err)
		return
	}

	if since, ok := parseSince(r); ok {
		transactions = analytics.FilterSince(transactions, since)
	}

	summary := analytics.Summarize(analytics.CalculateTokenPnl(transactions))

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":  address,
		"summary": summary,
	})
}

// providerTokenPnl proxies per-token profitability from the provider
func (s *HTTPServer) providerTokenPnl(w http.ResponseWriter, r *http.Request, address, chain string) {
	if chain == "" {
		s.writeError(w, http.StatusBadRequest, "chain query parameter is required for provider lookups",
			utils.NewAppError(utils.ErrCodeValidation, "chain must be given"))
		return
	}

	var tokens []provider.TokenPnl
	err := s.rotator.WithCredential(r.Context(), func(apiKey string) error {
		result, err := s.provider.FetchTokenPnl(r.Context(), apiKey, address, chain)
		if err != nil {
			return err
		}
		tokens = result
		return nil
	})
	if err != nil {
		s.writeProviderError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet": address,
		"chain":  chain,
		"source": "provider",
		"tokens": tokens,
	})
}

// providerPnlSummary proxies the wallet-level profitability summary from the provider
func (s *HTTPServer) providerPnlSummary(w http.ResponseWriter, r *http.Request, address, chain string) {
	if chain == "" {
		s.writeError(w, http.StatusBadRequest, "chain query parameter is required for provider lookups",
			utils.NewAppError(utils.ErrCodeValidation, "chain must be given"))
		return
	}

	var summary *provider.PnlSummary
	err := s.rotator.WithCredential(r.Context(), func(apiKey string) error {
		result, err := s.provider.FetchPnlSummary(r.Context(), apiKey, address, chain)
		if err != nil {
			return err
		}
		summary = result
		return nil
	})
	if err != nil {
		s.writeProviderError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":  address,
		"chain":   chain,
		"source":  "provider",
		"summary": summary,
	})
}

// holdingsHandler returns current token holdings straight from the provider,
// walking the credential pool if keys are found spent.
func (s *HTTPServer) holdingsHandler(w http.ResponseWriter, r *http.Request) {
	address := utils.NormalizeAddress(mux.Vars(r)["address"])
	chain := r.URL.Query().Get("chain")
	if chain == "" {
		s.writeError(w, http.StatusBadRequest, "chain query parameter is required",
			utils.NewAppError(utils.ErrCodeValidation, "chain must be given"))
		return
	}

	excludeSpam := r.URL.Query().Get("exclude_spam") != "false"

	limit := defaultHoldingsLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	var holdings []provider.TokenBalance
	err := s.rotator.WithCredential(r.Context(), func(apiKey string) error {
		result, err := s.provider.FetchWalletTokens(r.Context(), apiKey, address, chain, excludeSpam, limit)
		if err != nil {
			return err
		}
		holdings = result
		return nil
	})
	if err != nil {
		s.writeProviderError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":   address,
		"chain":    chain,
		"holdings": holdings,
		"total":    len(holdings),
	})
}

// writeProviderError maps credential pool failures to 503 and everything else
// from the provider path to 502.
func (s *HTTPServer) writeProviderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rotation.ErrNoCredential):
		s.writeError(w, http.StatusServiceUnavailable, "No usable API credential",
			utils.NewAppError(utils.ErrCodeNoCredential, "credential pool is empty"))
	case errors.Is(err, rotation.ErrPoolExhausted):
		s.writeError(w, http.StatusServiceUnavailable, "No usable API credential",
			utils.NewAppError(utils.ErrCodeExhausted, "every credential in the pool is exhausted"))
	default:
		s.writeError(w, http.StatusBadGateway, "Provider lookup failed", err)
	}
}

// tokenMetadataHandler returns price and metadata for a token straight from
// the provider, walking the credential pool if keys are found spent.
func (s *HTTPServer) tokenMetadataHandler(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !utils.IsValidAddress(address) {
		s.writeError(w, http.StatusBadRequest, "Invalid token address",
			utils.NewAppError(utils.ErrCodeValidation, "token is not a valid hex address", address))
		return
	}
	address = utils.NormalizeAddress(address)

	chain := r.URL.Query().Get("chain")
	if chain == "" {
		s.writeError(w, http.StatusBadRequest, "chain query parameter is required",
			utils.NewAppError(utils.ErrCodeValidation, "chain must be given"))
		return
	}

	var metadata *provider.TokenMetadata
	err := s.rotator.WithCredential(r.Context(), func(apiKey string) error {
		result, err := s.provider.FetchTokenMetadata(r.Context(), apiKey, address, chain)
		if err != nil {
			return err
		}
		metadata = result
		return nil
	})
	if err != nil {
		s.writeProviderError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": address,
		"chain": chain,
		"price": metadata,
	})
}

// leaderboardHandler ranks tracked wallets by realized profit
func (s *HTTPServer) leaderboardHandler(w http.ResponseWriter, r *http.Request) {
	chain := r.URL.Query().Get("chain")

	wallets, err := s.storage.GetWallets(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list wallets", err)
		return
	}

	transactionsByWallet := make(map[string][]*models.Transaction, len(wallets))
	for _, wallet := range wallets {
		transactions, err := s.storage.GetTransactionsByWallet(r.Context(), wallet.Wallet, chain, 0)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to get transactions", err)
			return
		}
		if since, ok := parseSince(r); ok {
			transactions = analytics.FilterSince(transactions, since)
		}
		transactionsByWallet[wallet.Wallet] = transactions
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"leaderboard": analytics.BuildLeaderboard(wallets, transactionsByWallet),
	})
}

// parseSince reads an optional ?since=RFC3339 or ?window=duration filter
func parseSince(r *http.Request) (time.Time, bool) {
	if raw := r.URL.Query().Get("since"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts, true
		}
	}
	if raw := r.URL.Query().Get("window"); raw != "" {
		if window, err := time.ParseDuration(raw); err == nil && window > 0 {
			return time.Now().Add(-window), true
		}
	}
	return time.Time{}, false
}
