package models

import (
	"fmt"
	"time"
)

// Transaction represents one observed swap for a tracked wallet on a chain.
// Rows are insert-only; the (tx_hash, tx_index) pair is the dedup key and is
// enforced by a unique index at the storage layer.
type Transaction struct {
	ID                string    `json:"id" db:"id"`
	Wallet            string    `json:"wallet" db:"wallet"`
	Chain             string    `json:"chain" db:"chain"`
	Type              string    `json:"type" db:"type"` // buy, sell
	TxHash            string    `json:"txHash" db:"tx_hash"`
	TxIndex           int       `json:"txIndex" db:"tx_index"`
	BlockTimestamp    string    `json:"blockTimestamp" db:"block_timestamp"` // ISO-8601, as reported by the provider
	TokenOutSymbol    string    `json:"tokenOutSymbol" db:"token_out_symbol"`
	TokenOutName      string    `json:"tokenOutName" db:"token_out_name"`
	TokenOutLogo      string    `json:"tokenOutLogo,omitempty" db:"token_out_logo"`
	TokenOutAddress   string    `json:"tokenOutAddress" db:"token_out_address"`
	TokenOutAmount    string    `json:"tokenOutAmount" db:"token_out_amount"`
	TokenOutAmountUsd string    `json:"tokenOutAmountUsd" db:"token_out_amount_usd"`
	TokenInSymbol     string    `json:"tokenInSymbol" db:"token_in_symbol"`
	TokenInName       string    `json:"tokenInName" db:"token_in_name"`
	TokenInLogo       string    `json:"tokenInLogo,omitempty" db:"token_in_logo"`
	TokenInAddress    string    `json:"tokenInAddress" db:"token_in_address"`
	TokenInAmount     string    `json:"tokenInAmount" db:"token_in_amount"`
	TokenInAmountUsd  string    `json:"tokenInAmountUsd" db:"token_in_amount_usd"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
}

// DedupKey returns the identity key used to decide whether a swap has already
// been recorded.
func (t *Transaction) DedupKey() string {
	return TransactionKey(t.TxHash, t.TxIndex)
}

// TransactionKey builds the dedup key for a (txHash, txIndex) pair.
func TransactionKey(txHash string, txIndex int) string {
	return fmt.Sprintf("%s-%d", txHash, txIndex)
}

// BlockTime parses the provider-reported block timestamp.
func (t *Transaction) BlockTime() (time.Time, error) {
	return time.Parse(time.RFC3339, t.BlockTimestamp)
}
