// Package sqlite implements store.Store on SQLite through sqlx and the
// pure-Go modernc.org/sqlite driver.
//
// The pool is limited to one connection, so transactions are applied one
// at a time and an in-memory database lives as long as the Store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/xraph/factor"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Store implements store.Store using SQLite.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New wraps an open database. The caller's pool settings are replaced
// with a single connection.
func New(db *sqlx.DB, opts ...Option) *Store {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the database at dsn, e.g. "factor.db" or ":memory:".
func Open(dsn string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("factor/sqlite: open: %w", err)
	}
	return New(db, opts...), nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sqlx.DB { return s.db }

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

type txKey struct{}

func (s *Store) q(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

// WithTx runs fn in a transaction. A ctx that already carries a
// transaction joins it.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "factor/sqlite: begin"), factor.ErrTransactionFailed)
	}

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback() //nolint:errcheck // already unwinding a panic
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		done = true
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("factor/sqlite: rollback failed", "error", rbErr)
		}
		return err
	}

	done = true
	if err := tx.Commit(); err != nil {
		return errors.Mark(errors.Wrap(err, "factor/sqlite: commit"), factor.ErrTransactionFailed)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqliteErr.Error(), "UNIQUE")
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ==================== State Store ====================

func (s *Store) GetState(ctx context.Context) (*store.State, error) {
	var m stateModel
	err := sqlx.GetContext(ctx, s.q(ctx), &m,
		`SELECT admin, counter, initialized_at FROM factor_state WHERE singleton = 1`)
	if err != nil {
		if isNoRows(err) {
			return nil, factor.ErrNotInitialized
		}
		return nil, err
	}
	return &store.State{
		Admin:         types.Address(m.Admin),
		Counter:       uint64(m.Counter),
		InitializedAt: fromNanos(m.InitializedAt),
	}, nil
}

func (s *Store) CreateState(ctx context.Context, st *store.State) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`INSERT INTO factor_state (singleton, admin, counter, initialized_at) VALUES (1, ?, ?, ?)
ON CONFLICT (singleton) DO NOTHING`,
		string(st.Admin), int64(st.Counter), toNanos(st.InitializedAt),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return factor.ErrAlreadyInitialized
	}
	return nil
}

func (s *Store) NextInvoiceID(ctx context.Context) (uint64, error) {
	var next int64
	err := s.q(ctx).QueryRowxContext(ctx,
		`UPDATE factor_state SET counter = counter + 1 WHERE singleton = 1 RETURNING counter`,
	).Scan(&next)
	if err != nil {
		if isNoRows(err) {
			return 0, factor.ErrNotInitialized
		}
		return 0, err
	}
	return uint64(next), nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	_, err := sqlx.NamedExecContext(ctx, s.q(ctx), `
INSERT INTO factor_invoices (
    id, seller, buyer, amount, due_date, status, verified_at,
    listing_price, current_holder, created_at, updated_at
) VALUES (
    :id, :seller, :buyer, :amount, :due_date, :status, :verified_at,
    :listing_price, :current_holder, :created_at, :updated_at
)`, toInvoiceModel(inv))
	if isUniqueViolation(err) {
		return factor.ErrAlreadyExists
	}
	return err
}

const selectInvoices = `SELECT id, seller, buyer, amount, due_date, status, verified_at,
    listing_price, current_holder, created_at, updated_at FROM factor_invoices`

func (s *Store) GetInvoice(ctx context.Context, invoiceID uint64) (*invoice.Invoice, error) {
	var m invoiceModel
	err := sqlx.GetContext(ctx, s.q(ctx), &m, selectInvoices+` WHERE id = ?`, int64(invoiceID))
	if err != nil {
		if isNoRows(err) {
			return nil, factor.ErrInvoiceNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(&m)
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	res, err := sqlx.NamedExecContext(ctx, s.q(ctx), `
UPDATE factor_invoices SET
    status = :status, verified_at = :verified_at, listing_price = :listing_price,
    current_holder = :current_holder, updated_at = :updated_at
WHERE id = :id`, toInvoiceModel(inv))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return factor.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	query := selectInvoices
	var args []any

	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY id ASC`
	switch {
	case opts.Limit > 0:
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	case opts.Offset > 0:
		query += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	var models []invoiceModel
	if err := sqlx.SelectContext(ctx, s.q(ctx), &models, query, args...); err != nil {
		return nil, err
	}
	return fromInvoiceModels(models)
}

func (s *Store) ListInvoicesByParty(ctx context.Context, party types.Address) ([]*invoice.Invoice, error) {
	var models []invoiceModel
	err := sqlx.SelectContext(ctx, s.q(ctx), &models,
		selectInvoices+` WHERE seller = ? OR current_holder = ? ORDER BY id ASC`,
		string(party), string(party),
	)
	if err != nil {
		return nil, err
	}
	return fromInvoiceModels(models)
}

// ==================== Listing Store ====================

func (s *Store) PutListing(ctx context.Context, l *listing.Listing) error {
	_, err := sqlx.NamedExecContext(ctx, s.q(ctx), `
INSERT INTO factor_listings (invoice_id, seller, price, listed_at)
VALUES (:invoice_id, :seller, :price, :listed_at)
ON CONFLICT (invoice_id) DO UPDATE SET
    seller = excluded.seller, price = excluded.price, listed_at = excluded.listed_at`,
		toListingModel(l))
	return err
}

func (s *Store) GetListing(ctx context.Context, invoiceID uint64) (*listing.Listing, error) {
	var m listingModel
	err := sqlx.GetContext(ctx, s.q(ctx), &m,
		`SELECT invoice_id, seller, price, listed_at FROM factor_listings WHERE invoice_id = ?`,
		int64(invoiceID))
	if err != nil {
		if isNoRows(err) {
			return nil, factor.ErrListingNotFound
		}
		return nil, err
	}
	return fromListingModel(&m)
}

func (s *Store) DeleteListing(ctx context.Context, invoiceID uint64) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM factor_listings WHERE invoice_id = ?`, int64(invoiceID))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return factor.ErrListingNotFound
	}
	return nil
}

func (s *Store) ListListings(ctx context.Context) ([]*listing.Listing, error) {
	var models []listingModel
	err := sqlx.SelectContext(ctx, s.q(ctx), &models,
		`SELECT invoice_id, seller, price, listed_at FROM factor_listings ORDER BY invoice_id ASC`)
	if err != nil {
		return nil, err
	}

	result := make([]*listing.Listing, len(models))
	for i := range models {
		l, err := fromListingModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = l
	}
	return result, nil
}

// ==================== Payment Store ====================

func (s *Store) GetBalance(ctx context.Context, token payment.Token, owner types.Address) (types.Amount, error) {
	var raw string
	err := sqlx.GetContext(ctx, s.q(ctx), &raw,
		`SELECT amount FROM factor_balances WHERE token = ? AND owner = ?`,
		string(token), string(owner))
	if err != nil {
		if isNoRows(err) {
			return types.ZeroAmount(), nil
		}
		return types.Amount{}, err
	}
	return types.ParseAmount(raw)
}

func (s *Store) SetBalance(ctx context.Context, token payment.Token, owner types.Address, amount types.Amount) error {
	_, err := s.q(ctx).ExecContext(ctx, `
INSERT INTO factor_balances (token, owner, amount) VALUES (?, ?, ?)
ON CONFLICT (token, owner) DO UPDATE SET amount = excluded.amount`,
		string(token), string(owner), amount.String())
	return err
}

func (s *Store) RecordTransfer(ctx context.Context, t *payment.Transfer) error {
	_, err := sqlx.NamedExecContext(ctx, s.q(ctx), `
INSERT INTO factor_transfers (id, token, from_addr, to_addr, amount, created_at)
VALUES (:id, :token, :from_addr, :to_addr, :amount, :created_at)`,
		toTransferModel(t))
	return err
}

func (s *Store) ListTransfers(ctx context.Context, owner types.Address) ([]*payment.Transfer, error) {
	var models []transferModel
	err := sqlx.SelectContext(ctx, s.q(ctx), &models,
		`SELECT id, token, from_addr, to_addr, amount, created_at FROM factor_transfers
WHERE from_addr = ? OR to_addr = ? ORDER BY seq ASC`,
		string(owner), string(owner))
	if err != nil {
		return nil, err
	}

	result := make([]*payment.Transfer, len(models))
	for i := range models {
		t, err := fromTransferModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}

// ==================== Nonce Store ====================

func (s *Store) UseNonce(ctx context.Context, n *store.Nonce) error {
	if _, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM factor_nonces WHERE expires_at < ?`, toNanos(n.UsedAt),
	); err != nil {
		return err
	}

	_, err := sqlx.NamedExecContext(ctx, s.q(ctx), `
INSERT INTO factor_nonces (signer, nonce, used_at, expires_at)
VALUES (:signer, :nonce, :used_at, :expires_at)`,
		toNonceModel(n))
	if isUniqueViolation(err) {
		return factor.ErrNonceReused
	}
	return err
}

// ==================== Store management ====================

// Migrate applies pending migrations with sql-migrate.
func (s *Store) Migrate(_ context.Context) error {
	set := migrate.MigrationSet{TableName: "factor_migrations"}
	n, err := set.Exec(s.db.DB, "sqlite3", migrations, migrate.Up)
	if err != nil {
		return fmt.Errorf("factor/sqlite: migration failed: %w", err)
	}
	if n > 0 {
		s.logger.Info("factor/sqlite: migrations applied", "count", n)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
