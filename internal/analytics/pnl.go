package analytics

import (
	"sort"
	"strconv"
	"time"

	"github.com/chainpulse/wallet-tracker/internal/models"
)

// TokenPnl is the realized profit-and-loss of one token for one wallet,
// computed from the recorded swaps with an average cost basis: each sell
// realizes the prorated share of everything invested into the token so far.
type TokenPnl struct {
	TokenAddress      string  `json:"tokenAddress"`
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Logo              string  `json:"logo,omitempty"`
	Buys              int     `json:"buys"`
	Sells             int     `json:"sells"`
	TotalBoughtAmount float64 `json:"totalBoughtAmount"`
	TotalSoldAmount   float64 `json:"totalSoldAmount"`
	TotalInvestedUsd  float64 `json:"totalInvestedUsd"`
	TotalProceedsUsd  float64 `json:"totalProceedsUsd"`
	RealizedCostUsd   float64 `json:"realizedCostUsd"`
	RealizedProfitUsd float64 `json:"realizedProfitUsd"`
	RealizedProfitPct float64 `json:"realizedProfitPct"`
}

// Summary aggregates a wallet's realized PNL across tokens
type Summary struct {
	Trades            int     `json:"trades"`
	Buys              int     `json:"buys"`
	Sells             int     `json:"sells"`
	TotalVolumeUsd    float64 `json:"totalVolumeUsd"`
	RealizedProfitUsd float64 `json:"realizedProfitUsd"`
	RealizedProfitPct float64 `json:"realizedProfitPct"`
}

// LeaderboardEntry ranks one tracked wallet by realized profit
type LeaderboardEntry struct {
	Wallet            string  `json:"wallet"`
	Name              string  `json:"name,omitempty"`
	ImageURL          string  `json:"imageUrl,omitempty"`
	Trades            int     `json:"trades"`
	RealizedProfitUsd float64 `json:"realizedProfitUsd"`
}

// tokenState accumulates position bookkeeping while walking swaps in order
type tokenState struct {
	pnl      TokenPnl
	held     float64
	heldCost float64
}

// FilterSince keeps transactions whose block timestamp is at or after the
// cutoff. Rows with unparseable timestamps are dropped.
func FilterSince(transactions []*models.Transaction, since time.Time) []*models.Transaction {
	kept := make([]*models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		ts, err := tx.BlockTime()
		if err != nil {
			continue
		}
		if !ts.Before(since) {
			kept = append(kept, tx)
		}
	}
	return kept
}

// CalculateTokenPnl computes per-token realized PNL for one wallet's swaps.
// Transactions are processed oldest first regardless of input order. A sell
// realizes cost at the average price of all tokens bought up to that point;
// sells exceeding the tracked position realize only the tracked share.
func CalculateTokenPnl(transactions []*models.Transaction) []TokenPnl {
	ordered := make([]*models.Transaction, len(transactions))
	copy(ordered, transactions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].BlockTimestamp < ordered[j].BlockTimestamp
	})

	states := make(map[string]*tokenState)

	for _, tx := range ordered {
		switch tx.Type {
		case "buy":
			state := stateFor(states, tx.TokenInAddress, tx.TokenInSymbol, tx.TokenInName, tx.TokenInLogo)
			amount := parseAmount(tx.TokenInAmount)
			usd := parseAmount(tx.TokenInAmountUsd)

			state.pnl.Buys++
			state.pnl.TotalBoughtAmount += amount
			state.pnl.TotalInvestedUsd += usd
			state.held += amount
			state.heldCost += usd

		case "sell":
			state := stateFor(states, tx.TokenOutAddress, tx.TokenOutSymbol, tx.TokenOutName, tx.TokenOutLogo)
			amount := parseAmount(tx.TokenOutAmount)
			usd := parseAmount(tx.TokenOutAmountUsd)

			state.pnl.Sells++
			state.pnl.TotalSoldAmount += amount
			state.pnl.TotalProceedsUsd += usd

			if state.held > 0 && amount > 0 {
				realized := amount
				if realized > state.held {
					realized = state.held
				}
				cost := state.heldCost * (realized / state.held)
				state.pnl.RealizedCostUsd += cost
				state.held -= realized
				state.heldCost -= cost
			}
		}
	}

	result := make([]TokenPnl, 0, len(states))
	for _, state := range states {
		pnl := state.pnl
		pnl.RealizedProfitUsd = pnl.TotalProceedsUsd - pnl.RealizedCostUsd
		if pnl.RealizedCostUsd > 0 {
			pnl.RealizedProfitPct = (pnl.RealizedProfitUsd / pnl.RealizedCostUsd) * 100
		}
		result = append(result, pnl)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RealizedProfitUsd > result[j].RealizedProfitUsd
	})

	return result
}

// Summarize rolls per-token PNL rows up into a wallet-level summary
func Summarize(tokens []TokenPnl) Summary {
	var summary Summary
	var realizedCost float64

	for _, token := range tokens {
		summary.Buys += token.Buys
		summary.Sells += token.Sells
		summary.TotalVolumeUsd += token.TotalInvestedUsd + token.TotalProceedsUsd
		summary.RealizedProfitUsd += token.RealizedProfitUsd
		realizedCost += token.RealizedCostUsd
	}

	summary.Trades = summary.Buys + summary.Sells
	if realizedCost > 0 {
		summary.RealizedProfitPct = (summary.RealizedProfitUsd / realizedCost) * 100
	}

	return summary
}

// BuildLeaderboard ranks tracked wallets by realized profit, highest first.
// Wallets with no recorded trades are left off the board.
func BuildLeaderboard(wallets []*models.TrackedWallet, transactionsByWallet map[string][]*models.Transaction) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(wallets))

	for _, wallet := range wallets {
		summary := Summarize(CalculateTokenPnl(transactionsByWallet[wallet.Wallet]))
		if summary.Trades == 0 {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			Wallet:            wallet.Wallet,
			Name:              wallet.Name,
			ImageURL:          wallet.ImageURL,
			Trades:            summary.Trades,
			RealizedProfitUsd: summary.RealizedProfitUsd,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RealizedProfitUsd > entries[j].RealizedProfitUsd
	})

	return entries
}

func stateFor(states map[string]*tokenState, address, symbol, name, logo string) *tokenState {
	state, ok := states[address]
	if !ok {
		state = &tokenState{pnl: TokenPnl{
			TokenAddress: address,
			Symbol:       symbol,
			Name:         name,
			Logo:         logo,
		}}
		states[address] = state
	}
	return state
}

func parseAmount(raw string) float64 {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}
