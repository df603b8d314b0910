package sqlite

import (
	migrate "github.com/rubenv/sql-migrate"
)

// Times are stored as unix nanoseconds and amounts as base-unit decimal
// strings.

// migrations is the ordered schema history for the factor store.
var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "20250101000001_create_factor_state",
			Up: []string{`
CREATE TABLE IF NOT EXISTS factor_state (
    singleton      INTEGER PRIMARY KEY CHECK (singleton = 1),
    admin          TEXT NOT NULL,
    counter        INTEGER NOT NULL DEFAULT 0,
    initialized_at INTEGER NOT NULL
)`},
			Down: []string{`DROP TABLE IF EXISTS factor_state`},
		},
		{
			Id: "20250101000002_create_factor_invoices",
			Up: []string{`
CREATE TABLE IF NOT EXISTS factor_invoices (
    id             INTEGER PRIMARY KEY,
    seller         TEXT NOT NULL,
    buyer          TEXT NOT NULL,
    amount         TEXT NOT NULL,
    due_date       INTEGER NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending',
    verified_at    INTEGER,
    listing_price  TEXT NOT NULL DEFAULT '0',
    current_holder TEXT NOT NULL,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_factor_invoices_seller ON factor_invoices (seller)`,
				`CREATE INDEX IF NOT EXISTS idx_factor_invoices_holder ON factor_invoices (current_holder)`,
				`CREATE INDEX IF NOT EXISTS idx_factor_invoices_status_due ON factor_invoices (status, due_date)`,
			},
			Down: []string{`DROP TABLE IF EXISTS factor_invoices`},
		},
		{
			Id: "20250101000003_create_factor_listings",
			Up: []string{`
CREATE TABLE IF NOT EXISTS factor_listings (
    invoice_id INTEGER PRIMARY KEY REFERENCES factor_invoices (id),
    seller     TEXT NOT NULL,
    price      TEXT NOT NULL,
    listed_at  INTEGER NOT NULL
)`},
			Down: []string{`DROP TABLE IF EXISTS factor_listings`},
		},
		{
			Id: "20250101000004_create_factor_payments",
			Up: []string{`
CREATE TABLE IF NOT EXISTS factor_balances (
    token  TEXT NOT NULL,
    owner  TEXT NOT NULL,
    amount TEXT NOT NULL DEFAULT '0',
    PRIMARY KEY (token, owner)
)`, `
CREATE TABLE IF NOT EXISTS factor_transfers (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    token      TEXT NOT NULL,
    from_addr  TEXT NOT NULL DEFAULT '',
    to_addr    TEXT NOT NULL,
    amount     TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_factor_transfers_from ON factor_transfers (from_addr)`,
				`CREATE INDEX IF NOT EXISTS idx_factor_transfers_to ON factor_transfers (to_addr)`,
			},
			Down: []string{
				`DROP TABLE IF EXISTS factor_transfers`,
				`DROP TABLE IF EXISTS factor_balances`,
			},
		},
		{
			Id: "20250101000005_create_factor_nonces",
			Up: []string{`
CREATE TABLE IF NOT EXISTS factor_nonces (
    signer     TEXT NOT NULL,
    nonce      TEXT NOT NULL,
    used_at    INTEGER NOT NULL,
    expires_at INTEGER NOT NULL,
    PRIMARY KEY (signer, nonce)
)`,
				`CREATE INDEX IF NOT EXISTS idx_factor_nonces_expires ON factor_nonces (expires_at)`,
			},
			Down: []string{`DROP TABLE IF EXISTS factor_nonces`},
		},
	},
}
