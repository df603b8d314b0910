package postgres

import (
	migrate "github.com/rubenv/sql-migrate"
)

// migrationTable records applied migration ids.
const migrationTable = "factor_migrations"

// Migrations is the ordered schema history for the factor store.
var Migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "20250101000001_create_factor_state",
			Up: []string{`
CREATE TABLE IF NOT EXISTS factor_state (
    singleton      BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
    admin          TEXT NOT NULL,
    counter        BIGINT NOT NULL DEFAULT 0,
    initialized_at TIMESTAMPTZ NOT NULL
)`},
			Down: []string{`DROP TABLE IF EXISTS factor_state`},
		},
		{
			Id: "20250101000002_create_factor_invoices",
			Up: []string{`
CREATE TABLE IF NOT EXISTS factor_invoices (
    id             BIGINT PRIMARY KEY,
    seller         TEXT NOT NULL,
    buyer          TEXT NOT NULL,
    amount         NUMERIC(39,0) NOT NULL,
    due_date       TIMESTAMPTZ NOT NULL,
    status         TEXT NOT NULL DEFAULT 'pending',
    verified_at    TIMESTAMPTZ,
    listing_price  NUMERIC(39,0) NOT NULL DEFAULT 0,
    current_holder TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    invoice_id BIGINT PRIMARY KEY REFERENCES factor_invoices (id),
    seller     TEXT NOT NULL,
    price      NUMERIC(39,0) NOT NULL,
    listed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`},
			Down: []string{`DROP TABLE IF EXISTS factor_listings`},
		},
		{
			Id: "20250101000004_create_factor_payments",
			Up: []string{`
CREATE TABLE IF NOT EXISTS factor_balances (
    token  TEXT NOT NULL,
    owner  TEXT NOT NULL,
    amount NUMERIC(39,0) NOT NULL DEFAULT 0,
    PRIMARY KEY (token, owner)
)`, `
CREATE TABLE IF NOT EXISTS factor_transfers (
    seq        BIGSERIAL PRIMARY KEY,
    id         TEXT NOT NULL UNIQUE,
    token      TEXT NOT NULL,
    from_addr  TEXT NOT NULL DEFAULT '',
    to_addr    TEXT NOT NULL,
    amount     NUMERIC(39,0) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    used_at    TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (signer, nonce)
)`,
				`CREATE INDEX IF NOT EXISTS idx_factor_nonces_expires ON factor_nonces (expires_at)`,
			},
			Down: []string{`DROP TABLE IF EXISTS factor_nonces`},
		},
	},
}
