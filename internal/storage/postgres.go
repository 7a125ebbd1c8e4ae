package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/chainpulse/wallet-tracker/internal/models"
	"github.com/chainpulse/wallet-tracker/pkg/utils"
)

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
	}
}

// Connect establishes database connection
func (s *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgreSQLStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgreSQLStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	s.logger.Info("Starting database migrations")

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	s.logger.Info("Database migrations completed")
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// SaveWallet saves a tracked wallet
func (s *PostgreSQLStorage) SaveWallet(ctx context.Context, wallet *models.TrackedWallet) error {
	chainsJSON, err := json.Marshal(wallet.Chains)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal wallet chains", err.Error())
	}

	query := `
		INSERT INTO wallets
		(wallet, name, twitter, telegram, website, image_url, chains, temporal, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		wallet.Wallet, wallet.Name, wallet.Twitter, wallet.Telegram,
		wallet.Website, wallet.ImageURL, string(chainsJSON), wallet.Temporal, now, now)

	if err != nil {
		if isUniqueViolation(err) {
			return utils.NewAppError(utils.ErrCodeDuplicate, "Wallet already registered", wallet.Wallet)
		}
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save wallet", err.Error())
	}

	wallet.CreatedAt = now
	wallet.UpdatedAt = now
	return nil
}

// GetWallet retrieves a tracked wallet by address
func (s *PostgreSQLStorage) GetWallet(ctx context.Context, address string) (*models.TrackedWallet, error) {
	query := `
		SELECT wallet, name, twitter, telegram, website, image_url, chains, temporal, created_at, updated_at
		FROM wallets WHERE wallet = $1
	`

	row := s.db.QueryRowContext(ctx, query, address)
	wallet, err := scanWalletRow(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Wallet not found", address)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get wallet", err.Error())
	}
	return wallet, nil
}

// GetWallets retrieves all tracked wallets
func (s *PostgreSQLStorage) GetWallets(ctx context.Context) ([]*models.TrackedWallet, error) {
	query := `
		SELECT wallet, name, twitter, telegram, website, image_url, chains, temporal, created_at, updated_at
		FROM wallets ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get wallets", err.Error())
	}
	defer rows.Close()

	var wallets []*models.TrackedWallet
	for rows.Next() {
		wallet, err := scanWalletRow(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan wallet", err.Error())
		}
		wallets = append(wallets, wallet)
	}

	return wallets, rows.Err()
}

// UpdateWallet updates a tracked wallet
func (s *PostgreSQLStorage) UpdateWallet(ctx context.Context, wallet *models.TrackedWallet) error {
	chainsJSON, err := json.Marshal(wallet.Chains)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal wallet chains", err.Error())
	}

	query := `
		UPDATE wallets
		SET name = $1, twitter = $2, telegram = $3, website = $4, image_url = $5, chains = $6, temporal = $7, updated_at = $8
		WHERE wallet = $9
	`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		wallet.Name, wallet.Twitter, wallet.Telegram, wallet.Website,
		wallet.ImageURL, string(chainsJSON), wallet.Temporal, now, wallet.Wallet)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update wallet", err.Error())
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to check update result", err.Error())
	}
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Wallet not found", wallet.Wallet)
	}

	wallet.UpdatedAt = now
	return nil
}

// DeleteWallet deletes a tracked wallet
func (s *PostgreSQLStorage) DeleteWallet(ctx context.Context, address string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM wallets WHERE wallet = $1", address)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete wallet", err.Error())
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to check delete result", err.Error())
	}
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Wallet not found", address)
	}

	return nil
}

// DeleteTemporalWallets removes all wallets registered as temporal, together
// with their recorded transactions.
func (s *PostgreSQLStorage) DeleteTemporalWallets(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to begin transaction", err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM transactions WHERE wallet IN (SELECT wallet FROM wallets WHERE temporal = TRUE)"); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete temporal transactions", err.Error())
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM wallets WHERE temporal = TRUE")
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete temporal wallets", err.Error())
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to check delete result", err.Error())
	}

	if err := tx.Commit(); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to commit temporal cleanup", err.Error())
	}

	return affected, nil
}

// SaveTransaction inserts a single swap. ErrDuplicateKey is returned when the
// (tx_hash, tx_index) unique index rejects the row.
func (s *PostgreSQLStorage) SaveTransaction(ctx context.Context, transaction *models.Transaction) error {
	query := `
		INSERT INTO transactions
		(id, wallet, chain, type, tx_hash, tx_index, block_timestamp,
		 token_out_symbol, token_out_name, token_out_logo, token_out_address, token_out_amount, token_out_amount_usd,
		 token_in_symbol, token_in_name, token_in_logo, token_in_address, token_in_amount, token_in_amount_usd,
		 created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	if transaction.CreatedAt.IsZero() {
		transaction.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		transaction.ID, transaction.Wallet, transaction.Chain, transaction.Type,
		transaction.TxHash, transaction.TxIndex, transaction.BlockTimestamp,
		transaction.TokenOutSymbol, transaction.TokenOutName, transaction.TokenOutLogo,
		transaction.TokenOutAddress, transaction.TokenOutAmount, transaction.TokenOutAmountUsd,
		transaction.TokenInSymbol, transaction.TokenInName, transaction.TokenInLogo,
		transaction.TokenInAddress, transaction.TokenInAmount, transaction.TokenInAmountUsd,
		transaction.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save transaction", err.Error())
	}

	return nil
}

// GetTransactionsByWallet retrieves recorded swaps for a wallet, newest first.
// An empty chain matches every chain.
func (s *PostgreSQLStorage) GetTransactionsByWallet(ctx context.Context, address, chain string, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, wallet, chain, type, tx_hash, tx_index, block_timestamp,
		       token_out_symbol, token_out_name, token_out_logo, token_out_address, token_out_amount, token_out_amount_usd,
		       token_in_symbol, token_in_name, token_in_logo, token_in_address, token_in_amount, token_in_amount_usd,
		       created_at
		FROM transactions WHERE wallet = $1
	`
	args := []interface{}{address}
	argIndex := 2

	if chain != "" {
		query += fmt.Sprintf(" AND chain = $%d", argIndex)
		args = append(args, chain)
		argIndex++
	}
	query += " ORDER BY block_timestamp DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get transactions", err.Error())
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan transaction", err.Error())
		}
		transactions = append(transactions, transaction)
	}

	return transactions, rows.Err()
}

// DeleteTransactionsByWallets removes the recorded swaps of the given wallets
func (s *PostgreSQLStorage) DeleteTransactionsByWallets(ctx context.Context, addresses []string) (int64, error) {
	if len(addresses) == 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM transactions WHERE wallet = ANY($1)", pq.Array(addresses))
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete transactions", err.Error())
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to check delete result", err.Error())
	}
	return affected, nil
}

// GetCredentialCursor reads the persisted credential pool position. found is
// false when no cursor row has been written yet.
func (s *PostgreSQLStorage) GetCredentialCursor(ctx context.Context) (int, bool, error) {
	var index int
	err := s.db.QueryRowContext(ctx, "SELECT idx FROM credential_cursor WHERE id = 1").Scan(&index)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get credential cursor", err.Error())
	}
	return index, true, nil
}

// SetCredentialCursor persists the credential pool position
func (s *PostgreSQLStorage) SetCredentialCursor(ctx context.Context, index int) error {
	query := `
		INSERT INTO credential_cursor (id, idx, updated_at) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET idx = EXCLUDED.idx, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, index, time.Now().UTC()); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set credential cursor", err.Error())
	}
	return nil
}

// GetStorageStats returns storage statistics
func (s *PostgreSQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM wallets").Scan(&stats.TotalWallets); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count wallets", err.Error())
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&stats.TotalTransactions); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count transactions", err.Error())
	}

	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(block_timestamp) FROM transactions").Scan(&latest); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get latest transaction", err.Error())
	}
	if latest.Valid {
		if ts, err := time.Parse(time.RFC3339, latest.String); err == nil {
			stats.LatestTransaction = &ts
		}
	}

	if cursor, found, err := s.GetCredentialCursor(ctx); err == nil && found {
		stats.CredentialCursor = cursor
	}

	return stats, nil
}

func scanWalletRow(row rowScanner) (*models.TrackedWallet, error) {
	var wallet models.TrackedWallet
	var chainsJSON string

	err := row.Scan(&wallet.Wallet, &wallet.Name, &wallet.Twitter, &wallet.Telegram,
		&wallet.Website, &wallet.ImageURL, &chainsJSON, &wallet.Temporal,
		&wallet.CreatedAt, &wallet.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(chainsJSON), &wallet.Chains); err != nil {
		return nil, fmt.Errorf("invalid chains column for wallet %s: %w", wallet.Wallet, err)
	}

	return &wallet, nil
}
