// Package postgres implements store.Store on PostgreSQL through pgx.
//
// Every WithTx runs at SERIALIZABLE isolation and invoice reads inside a
// transaction take row locks, so two purchases of the same listing cannot
// both commit. Serialization failures surface as factor.ErrTransactionFailed.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xraph/factor"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// querier is implemented by both DB and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store using PostgreSQL.
type Store struct {
	db     DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a PostgreSQL store over db.
func New(db DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects a pool to dsn and wraps it in a Store.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("factor/postgres: connect: %w", err)
	}
	return New(pool, opts...), nil
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

type txKey struct{}

func txFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// q returns the transaction carried by ctx, or the pool.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return s.db
}

// lockClause turns reads inside a transaction into locking reads.
func lockClause(ctx context.Context) string {
	if _, ok := txFrom(ctx); ok {
		return " FOR UPDATE"
	}
	return ""
}

// WithTx runs fn in a serializable transaction. A ctx that already carries
// a transaction joins it.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return errors.Mark(errors.Wrap(err, "factor/postgres: begin"), factor.ErrTransactionFailed)
	}

	done := false
	defer func() {
		if !done {
			s.rollback(ctx, tx)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		done = true
		s.rollback(ctx, tx)
		return classify(err)
	}

	done = true
	if err := tx.Commit(ctx); err != nil {
		return classify(errors.Wrap(err, "factor/postgres: commit"))
	}
	return nil
}

func (s *Store) rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.logger.Warn("factor/postgres: rollback failed", "error", err)
	}
}

// classify marks serialization failures and deadlocks as retryable.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return errors.Mark(err, factor.ErrTransactionFailed)
	}
	return err
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ==================== State Store ====================

func (s *Store) GetState(ctx context.Context) (*store.State, error) {
	var (
		admin         string
		counter       int64
		initializedAt time.Time
	)
	err := s.q(ctx).QueryRow(ctx,
		`SELECT admin, counter, initialized_at FROM factor_state`+lockClause(ctx),
	).Scan(&admin, &counter, &initializedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, factor.ErrNotInitialized
		}
		return nil, err
	}
	return &store.State{
		Admin:         types.Address(admin),
		Counter:       uint64(counter),
		InitializedAt: initializedAt.UTC(),
	}, nil
}

func (s *Store) CreateState(ctx context.Context, st *store.State) error {
	tag, err := s.q(ctx).Exec(ctx,
		`INSERT INTO factor_state (admin, counter, initialized_at) VALUES ($1, $2, $3)
ON CONFLICT (singleton) DO NOTHING`,
		string(st.Admin), int64(st.Counter), st.InitializedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return factor.ErrAlreadyInitialized
	}
	return nil
}

func (s *Store) NextInvoiceID(ctx context.Context) (uint64, error) {
	var next int64
	err := s.q(ctx).QueryRow(ctx,
		`UPDATE factor_state SET counter = counter + 1 RETURNING counter`,
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
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO factor_invoices (
    id, seller, buyer, amount, due_date, status, verified_at,
    listing_price, current_holder, created_at, updated_at
) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8::numeric, $9, $10, $11)`,
		int64(inv.ID), string(inv.Seller), string(inv.Buyer), inv.Amount.String(),
		inv.DueDate, string(inv.Status), inv.VerifiedAt, inv.ListingPrice.String(),
		string(inv.CurrentHolder), inv.CreatedAt, inv.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return factor.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID uint64) (*invoice.Invoice, error) {
	inv, err := scanInvoice(s.q(ctx).QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM factor_invoices WHERE id = $1`+lockClause(ctx),
		int64(invoiceID),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, factor.ErrInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	tag, err := s.q(ctx).Exec(ctx, `
UPDATE factor_invoices SET
    status = $1, verified_at = $2, listing_price = $3::numeric,
    current_holder = $4, updated_at = $5
WHERE id = $6`,
		string(inv.Status), inv.VerifiedAt, inv.ListingPrice.String(),
		string(inv.CurrentHolder), inv.UpdatedAt, int64(inv.ID),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return factor.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM factor_invoices`
	var args []any

	if opts.Status != "" {
		args = append(args, string(opts.Status))
		query += fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	query += " ORDER BY id ASC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectInvoices(rows)
}

func (s *Store) ListInvoicesByParty(ctx context.Context, party types.Address) ([]*invoice.Invoice, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+invoiceColumns+` FROM factor_invoices
WHERE seller = $1 OR current_holder = $1 ORDER BY id ASC`,
		string(party),
	)
	if err != nil {
		return nil, err
	}
	return collectInvoices(rows)
}

// ==================== Listing Store ====================

func (s *Store) PutListing(ctx context.Context, l *listing.Listing) error {
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO factor_listings (invoice_id, seller, price, listed_at)
VALUES ($1, $2, $3::numeric, $4)
ON CONFLICT (invoice_id) DO UPDATE SET
    seller = EXCLUDED.seller, price = EXCLUDED.price, listed_at = EXCLUDED.listed_at`,
		int64(l.InvoiceID), string(l.Seller), l.Price.String(), l.ListedAt,
	)
	return err
}

func (s *Store) GetListing(ctx context.Context, invoiceID uint64) (*listing.Listing, error) {
	l, err := scanListing(s.q(ctx).QueryRow(ctx,
		`SELECT `+listingColumns+` FROM factor_listings WHERE invoice_id = $1`+lockClause(ctx),
		int64(invoiceID),
	))
	if err != nil {
		if isNoRows(err) {
			return nil, factor.ErrListingNotFound
		}
		return nil, err
	}
	return l, nil
}

func (s *Store) DeleteListing(ctx context.Context, invoiceID uint64) error {
	tag, err := s.q(ctx).Exec(ctx,
		`DELETE FROM factor_listings WHERE invoice_id = $1`, int64(invoiceID))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return factor.ErrListingNotFound
	}
	return nil
}

func (s *Store) ListListings(ctx context.Context) ([]*listing.Listing, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+listingColumns+` FROM factor_listings ORDER BY invoice_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*listing.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// ==================== Payment Store ====================

func (s *Store) GetBalance(ctx context.Context, token payment.Token, owner types.Address) (types.Amount, error) {
	var raw string
	err := s.q(ctx).QueryRow(ctx,
		`SELECT amount::text FROM factor_balances WHERE token = $1 AND owner = $2`+lockClause(ctx),
		string(token), string(owner),
	).Scan(&raw)
	if err != nil {
		if isNoRows(err) {
			return types.ZeroAmount(), nil
		}
		return types.Amount{}, err
	}
	return types.ParseAmount(raw)
}

func (s *Store) SetBalance(ctx context.Context, token payment.Token, owner types.Address, amount types.Amount) error {
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO factor_balances (token, owner, amount) VALUES ($1, $2, $3::numeric)
ON CONFLICT (token, owner) DO UPDATE SET amount = EXCLUDED.amount`,
		string(token), string(owner), amount.String(),
	)
	return err
}

func (s *Store) RecordTransfer(ctx context.Context, t *payment.Transfer) error {
	_, err := s.q(ctx).Exec(ctx, `
INSERT INTO factor_transfers (id, token, from_addr, to_addr, amount, created_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6)`,
		t.ID.String(), string(t.Token), string(t.From), string(t.To), t.Amount.String(), t.CreatedAt,
	)
	return err
}

func (s *Store) ListTransfers(ctx context.Context, owner types.Address) ([]*payment.Transfer, error) {
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+transferColumns+` FROM factor_transfers
WHERE from_addr = $1 OR to_addr = $1 ORDER BY seq ASC`,
		string(owner),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*payment.Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// ==================== Nonce Store ====================

func (s *Store) UseNonce(ctx context.Context, n *store.Nonce) error {
	if _, err := s.q(ctx).Exec(ctx,
		`DELETE FROM factor_nonces WHERE expires_at < $1`, n.UsedAt,
	); err != nil {
		return err
	}

	tag, err := s.q(ctx).Exec(ctx, `
INSERT INTO factor_nonces (signer, nonce, used_at, expires_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (signer, nonce) DO NOTHING`,
		string(n.Signer), n.Value, n.UsedAt, n.ExpiresAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return factor.ErrNonceReused
	}
	return nil
}

// ==================== Store management ====================

// Migrate applies every migration in Migrations that has not run yet.
// Applied ids are recorded in the factor_migrations table.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `
CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    id         TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return fmt.Errorf("factor/postgres: create migration table: %w", err)
	}

	migrations, err := Migrations.FindMigrations()
	if err != nil {
		return fmt.Errorf("factor/postgres: load migrations: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		err := s.WithTx(ctx, func(ctx context.Context) error {
			tag, err := s.q(ctx).Exec(ctx,
				`INSERT INTO `+migrationTable+` (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, m.Id)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
			for _, stmt := range m.Up {
				if _, err := s.q(ctx).Exec(ctx, stmt); err != nil {
					return err
				}
			}
			applied++
			return nil
		})
		if err != nil {
			return fmt.Errorf("factor/postgres: migration %s failed: %w", m.Id, err)
		}
	}

	if applied > 0 {
		s.logger.Info("factor/postgres: migrations applied", "count", applied)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}
