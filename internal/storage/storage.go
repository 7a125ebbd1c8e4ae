package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chainpulse/wallet-tracker/internal/models"
)

// ErrDuplicateKey is returned by SaveTransaction when the (tx_hash, tx_index)
// unique index rejects an insert. Callers treat it as a benign race outcome.
var ErrDuplicateKey = errors.New("duplicate transaction key")

// Storage defines the interface for tracker persistence
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Wallet directory operations
	SaveWallet(ctx context.Context, wallet *models.TrackedWallet) error
	GetWallet(ctx context.Context, address string) (*models.TrackedWallet, error)
	GetWallets(ctx context.Context) ([]*models.TrackedWallet, error)
	UpdateWallet(ctx context.Context, wallet *models.TrackedWallet) error
	DeleteWallet(ctx context.Context, address string) error
	DeleteTemporalWallets(ctx context.Context) (int64, error)

	// Transaction operations
	SaveTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransactionsByWallet(ctx context.Context, address, chain string, limit int) ([]*models.Transaction, error)
	DeleteTransactionsByWallets(ctx context.Context, addresses []string) (int64, error)

	// Credential cursor operations
	GetCredentialCursor(ctx context.Context) (index int, found bool, err error)
	SetCredentialCursor(ctx context.Context, index int) error

	// Statistics
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalWallets      int64      `json:"total_wallets"`
	TotalTransactions int64      `json:"total_transactions"`
	LatestTransaction *time.Time `json:"latest_transaction,omitempty"`
	CredentialCursor  int        `json:"credential_cursor"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
