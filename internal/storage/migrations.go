package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create wallets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS wallets (
					wallet TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					twitter TEXT NOT NULL DEFAULT '',
					telegram TEXT NOT NULL DEFAULT '',
					website TEXT NOT NULL DEFAULT '',
					image_url TEXT NOT NULL DEFAULT '',
					chains TEXT NOT NULL DEFAULT '[]', -- JSON array of chain ids
					temporal BOOLEAN NOT NULL DEFAULT FALSE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_wallets_temporal ON wallets(temporal);
			`,
		},
		{
			Version:     "002",
			Description: "Create transactions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					wallet TEXT NOT NULL,
					chain TEXT NOT NULL,
					type TEXT NOT NULL,
					tx_hash TEXT NOT NULL,
					tx_index INTEGER NOT NULL,
					block_timestamp TEXT NOT NULL,
					token_out_symbol TEXT NOT NULL DEFAULT '',
					token_out_name TEXT NOT NULL DEFAULT '',
					token_out_logo TEXT NOT NULL DEFAULT '',
					token_out_address TEXT NOT NULL DEFAULT '',
					token_out_amount TEXT NOT NULL DEFAULT '',
					token_out_amount_usd TEXT NOT NULL DEFAULT '',
					token_in_symbol TEXT NOT NULL DEFAULT '',
					token_in_name TEXT NOT NULL DEFAULT '',
					token_in_logo TEXT NOT NULL DEFAULT '',
					token_in_address TEXT NOT NULL DEFAULT '',
					token_in_amount TEXT NOT NULL DEFAULT '',
					token_in_amount_usd TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions(wallet);
				CREATE INDEX IF NOT EXISTS idx_transactions_wallet_chain ON transactions(wallet, chain);
				CREATE INDEX IF NOT EXISTS idx_transactions_block_timestamp ON transactions(block_timestamp);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_unique ON transactions(tx_hash, tx_index);
			`,
		},
		{
			Version:     "003",
			Description: "Create credential cursor table",
			SQL: `
				CREATE TABLE IF NOT EXISTS credential_cursor (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					idx INTEGER NOT NULL DEFAULT 0,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create wallets table",
			SQL: `
				CREATE TABLE IF NOT EXISTS wallets (
					wallet TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					twitter TEXT NOT NULL DEFAULT '',
					telegram TEXT NOT NULL DEFAULT '',
					website TEXT NOT NULL DEFAULT '',
					image_url TEXT NOT NULL DEFAULT '',
					chains TEXT NOT NULL DEFAULT '[]',
					temporal BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ DEFAULT NOW(),
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_wallets_temporal ON wallets(temporal);
			`,
		},
		{
			Version:     "002",
			Description: "Create transactions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					wallet TEXT NOT NULL,
					chain TEXT NOT NULL,
					type TEXT NOT NULL,
					tx_hash TEXT NOT NULL,
					tx_index BIGINT NOT NULL,
					block_timestamp TEXT NOT NULL,
					token_out_symbol TEXT NOT NULL DEFAULT '',
					token_out_name TEXT NOT NULL DEFAULT '',
					token_out_logo TEXT NOT NULL DEFAULT '',
					token_out_address TEXT NOT NULL DEFAULT '',
					token_out_amount TEXT NOT NULL DEFAULT '',
					token_out_amount_usd TEXT NOT NULL DEFAULT '',
					token_in_symbol TEXT NOT NULL DEFAULT '',
					token_in_name TEXT NOT NULL DEFAULT '',
					token_in_logo TEXT NOT NULL DEFAULT '',
					token_in_address TEXT NOT NULL DEFAULT '',
					token_in_amount TEXT NOT NULL DEFAULT '',
					token_in_amount_usd TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_transactions_wallet ON transactions(wallet);
				CREATE INDEX IF NOT EXISTS idx_transactions_wallet_chain ON transactions(wallet, chain);
				CREATE INDEX IF NOT EXISTS idx_transactions_block_timestamp ON transactions(block_timestamp);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_unique ON transactions(tx_hash, tx_index);
			`,
		},
		{
			Version:     "003",
			Description: "Create credential cursor table",
			SQL: `
				CREATE TABLE IF NOT EXISTS credential_cursor (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					idx INTEGER NOT NULL DEFAULT 0,
					updated_at TIMESTAMPTZ DEFAULT NOW()
				);
			`,
		},
	}
}
