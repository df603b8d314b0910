package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/xraph/factor"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/types"
)

type StoreTestSuite struct {
	suite.Suite
	mock  pgxmock.PgxPoolIface
	store *Store
	ctx   context.Context
	now   time.Time
}

func (s *StoreTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	require.NoError(s.T(), err)
	s.mock = mock
	s.store = New(mock)
	s.ctx = context.Background()
	s.now = time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)
}

func (s *StoreTestSuite) TearDownTest() {
	assert.NoError(s.T(), s.mock.ExpectationsWereMet())
	s.mock.Close()
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func invoiceRow(id int64, status string, holder string, verifiedAt *time.Time, at time.Time) []any {
	return []any{
		id, "GSELLER", "GDEBTOR", "1000000000000", at.Add(30 * 24 * time.Hour), status, verifiedAt,
		"0", holder, at, at,
	}
}

var invoiceCols = []string{
	"id", "seller", "buyer", "amount", "due_date", "status", "verified_at",
	"listing_price", "current_holder", "created_at", "updated_at",
}

func (s *StoreTestSuite) TestGetState_NotInitialized() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT admin, counter, initialized_at FROM factor_state`)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.store.GetState(s.ctx)
	assert.True(s.T(), errors.Is(err, factor.ErrNotInitialized))
}

func (s *StoreTestSuite) TestCreateState_Twice() {
	insert := regexp.QuoteMeta(`INSERT INTO factor_state (admin, counter, initialized_at)`)
	s.mock.ExpectExec(insert).
		WithArgs("GADMIN", int64(0), s.now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	s.mock.ExpectExec(insert).
		WithArgs("GADMIN", int64(0), s.now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	st := &store.State{Admin: "GADMIN", InitializedAt: s.now}
	require.NoError(s.T(), s.store.CreateState(s.ctx, st))
	err := s.store.CreateState(s.ctx, st)
	assert.True(s.T(), errors.Is(err, factor.ErrAlreadyInitialized))
}

func (s *StoreTestSuite) TestNextInvoiceID() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`UPDATE factor_state SET counter = counter + 1 RETURNING counter`)).
		WillReturnRows(pgxmock.NewRows([]string{"counter"}).AddRow(int64(7)))

	next, err := s.store.NextInvoiceID(s.ctx)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint64(7), next)
}

func (s *StoreTestSuite) TestCreateInvoice_Duplicate() {
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO factor_invoices`)).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	err := s.store.CreateInvoice(s.ctx, &invoice.Invoice{
		ID:           1,
		Amount:       types.NewAmount(1),
		ListingPrice: types.ZeroAmount(),
		Status:       invoice.StatusPending,
	})
	assert.True(s.T(), errors.Is(err, factor.ErrAlreadyExists))
}

func (s *StoreTestSuite) TestGetInvoice() {
	verifiedAt := s.now.Add(time.Hour)
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM factor_invoices WHERE id = $1`)).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(invoiceCols).
			AddRow(invoiceRow(1, "verified", "GSELLER", &verifiedAt, s.now)...))

	inv, err := s.store.GetInvoice(s.ctx, 1)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint64(1), inv.ID)
	assert.Equal(s.T(), invoice.StatusVerified, inv.Status)
	assert.True(s.T(), inv.Amount.Equal(types.NewAmount(1000000000000)))
	require.NotNil(s.T(), inv.VerifiedAt)
	assert.True(s.T(), inv.VerifiedAt.Equal(verifiedAt))
	assert.True(s.T(), inv.ListingPrice.IsZero())
}

func (s *StoreTestSuite) TestGetInvoice_NotFound() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM factor_invoices WHERE id = $1`)).
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.store.GetInvoice(s.ctx, 9)
	assert.True(s.T(), errors.Is(err, factor.ErrInvoiceNotFound))
}

func (s *StoreTestSuite) TestListInvoices_FilterAndPage() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`WHERE status = $1 ORDER BY id ASC LIMIT $2 OFFSET $3`)).
		WithArgs("pending", 2, 1).
		WillReturnRows(pgxmock.NewRows(invoiceCols).
			AddRow(invoiceRow(2, "pending", "GSELLER", nil, s.now)...).
			AddRow(invoiceRow(3, "pending", "GSELLER", nil, s.now)...))

	invs, err := s.store.ListInvoices(s.ctx, invoice.ListOpts{Status: invoice.StatusPending, Limit: 2, Offset: 1})
	require.NoError(s.T(), err)
	require.Len(s.T(), invs, 2)
	assert.Equal(s.T(), uint64(2), invs[0].ID)
	assert.Nil(s.T(), invs[0].VerifiedAt)
}

func (s *StoreTestSuite) TestDeleteListing_Missing() {
	s.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM factor_listings WHERE invoice_id = $1`)).
		WithArgs(int64(4)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.store.DeleteListing(s.ctx, 4)
	assert.True(s.T(), errors.Is(err, factor.ErrListingNotFound))
}

func (s *StoreTestSuite) TestGetBalance_Missing() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT amount::text FROM factor_balances`)).
		WithArgs("USDC", "GNOBODY").
		WillReturnError(pgx.ErrNoRows)

	bal, err := s.store.GetBalance(s.ctx, "USDC", "GNOBODY")
	require.NoError(s.T(), err)
	assert.True(s.T(), bal.IsZero())
}

func (s *StoreTestSuite) TestWithTx_CommitsAndLocks() {
	s.mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	s.mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(invoiceCols).
			AddRow(invoiceRow(1, "pending", "GSELLER", nil, s.now)...))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE factor_invoices SET`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	s.mock.ExpectCommit()

	err := s.store.WithTx(s.ctx, func(ctx context.Context) error {
		inv, err := s.store.GetInvoice(ctx, 1)
		if err != nil {
			return err
		}
		inv.Status = invoice.StatusVerified
		return s.store.UpdateInvoice(ctx, inv)
	})
	require.NoError(s.T(), err)
}

func (s *StoreTestSuite) TestWithTx_RollsBackOnError() {
	s.mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	s.mock.ExpectQuery(regexp.QuoteMeta(`UPDATE factor_state SET counter`)).
		WillReturnRows(pgxmock.NewRows([]string{"counter"}).AddRow(int64(1)))
	s.mock.ExpectRollback()

	abort := errors.New("abort")
	err := s.store.WithTx(s.ctx, func(ctx context.Context) error {
		if _, err := s.store.NextInvoiceID(ctx); err != nil {
			return err
		}
		return abort
	})
	assert.True(s.T(), errors.Is(err, abort))
}

func (s *StoreTestSuite) TestWithTx_SerializationFailureIsRetryable() {
	s.mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO factor_balances`)).
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	s.mock.ExpectRollback()

	err := s.store.WithTx(s.ctx, func(ctx context.Context) error {
		return s.store.SetBalance(ctx, "USDC", "GALICE", types.NewAmount(5))
	})
	assert.True(s.T(), factor.IsRetryable(err))
}

func (s *StoreTestSuite) TestWithTx_JoinsOuterTransaction() {
	s.mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO factor_balances`)).
		WithArgs("USDC", "GALICE", "5").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	s.mock.ExpectCommit()

	err := s.store.WithTx(s.ctx, func(ctx context.Context) error {
		return s.store.WithTx(ctx, func(ctx context.Context) error {
			return s.store.SetBalance(ctx, "USDC", "GALICE", types.NewAmount(5))
		})
	})
	require.NoError(s.T(), err)
}

func (s *StoreTestSuite) TestUseNonce() {
	n := &store.Nonce{Signer: "GINVESTOR", Value: "n-1", UsedAt: s.now, ExpiresAt: s.now.Add(5 * time.Minute)}
	prune := regexp.QuoteMeta(`DELETE FROM factor_nonces WHERE expires_at < $1`)
	insert := regexp.QuoteMeta(`INSERT INTO factor_nonces (signer, nonce, used_at, expires_at)`)

	s.mock.ExpectExec(prune).WithArgs(s.now).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	s.mock.ExpectExec(insert).
		WithArgs("GINVESTOR", "n-1", s.now, s.now.Add(5*time.Minute)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	s.mock.ExpectExec(prune).WithArgs(s.now).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	s.mock.ExpectExec(insert).
		WithArgs("GINVESTOR", "n-1", s.now, s.now.Add(5*time.Minute)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(s.T(), s.store.UseNonce(s.ctx, n))
	err := s.store.UseNonce(s.ctx, n)
	assert.True(s.T(), errors.Is(err, factor.ErrNonceReused))
}

func (s *StoreTestSuite) TestMigrate_AppliesPending() {
	migrations, err := Migrations.FindMigrations()
	require.NoError(s.T(), err)

	s.mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS factor_migrations`)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	for i, m := range migrations {
		s.mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.Serializable})
		insert := s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO factor_migrations (id)`)).WithArgs(m.Id)
		if i == 0 {
			// Already applied.
			insert.WillReturnResult(pgxmock.NewResult("INSERT", 0))
			s.mock.ExpectCommit()
			continue
		}
		insert.WillReturnResult(pgxmock.NewResult("INSERT", 1))
		for range m.Up {
			s.mock.ExpectExec(".+").WillReturnResult(pgxmock.NewResult("CREATE", 0))
		}
		s.mock.ExpectCommit()
	}

	require.NoError(s.T(), s.store.Migrate(s.ctx))
}
