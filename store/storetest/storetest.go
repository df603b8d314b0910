// Package storetest is a conformance suite every store.Store backend runs
// from its own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/factor"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/types"
)

// Factory returns an empty, migrated store and registers its cleanup on t.
type Factory func(t *testing.T) store.Store

var (
	t0      = time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)
	dueDate = time.Unix(1735689600, 0).UTC()
)

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"State", testState},
		{"InvoiceCRUD", testInvoiceCRUD},
		{"InvoiceQueries", testInvoiceQueries},
		{"Listings", testListings},
		{"Balances", testBalances},
		{"Nonces", testNonces},
		{"TxRollback", testTxRollback},
		{"TxNested", testTxNested},
		{"TxSerializes", testTxSerializes},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func newInvoice(invoiceID uint64, seller, buyer types.Address) *invoice.Invoice {
	return &invoice.Invoice{
		Entity:        types.NewEntity(t0),
		ID:            invoiceID,
		Seller:        seller,
		Buyer:         buyer,
		Amount:        types.NewAmount(100_000_0000000),
		DueDate:       dueDate,
		Status:        invoice.StatusPending,
		ListingPrice:  types.ZeroAmount(),
		CurrentHolder: seller,
	}
}

func initialize(t *testing.T, s store.Store) {
	t.Helper()
	require.NoError(t, s.CreateState(context.Background(), &store.State{Admin: "GADMIN", InitializedAt: t0}))
}

func testState(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetState(ctx)
	assert.True(t, errors.Is(err, factor.ErrNotInitialized), "got %v", err)
	_, err = s.NextInvoiceID(ctx)
	assert.True(t, errors.Is(err, factor.ErrNotInitialized), "got %v", err)

	initialize(t, s)
	err = s.CreateState(ctx, &store.State{Admin: "GOTHER", InitializedAt: t0})
	assert.True(t, errors.Is(err, factor.ErrAlreadyInitialized), "got %v", err)

	for want := uint64(1); want <= 3; want++ {
		got, err := s.NextInvoiceID(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	st, err := s.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.Address("GADMIN"), st.Admin)
	assert.Equal(t, uint64(3), st.Counter)
	assert.True(t, st.InitializedAt.Equal(t0))
}

func testInvoiceCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetInvoice(ctx, 1)
	assert.True(t, factor.IsNotFound(err), "got %v", err)

	inv := newInvoice(1, "GSELLER", "GDEBTOR")
	require.NoError(t, s.CreateInvoice(ctx, inv))
	err = s.CreateInvoice(ctx, inv)
	assert.True(t, errors.Is(err, factor.ErrAlreadyExists), "got %v", err)

	got, err := s.GetInvoice(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, inv.Seller, got.Seller)
	assert.Equal(t, inv.Buyer, got.Buyer)
	assert.True(t, inv.Amount.Equal(got.Amount))
	assert.True(t, got.DueDate.Equal(dueDate))
	assert.Equal(t, invoice.StatusPending, got.Status)
	assert.Nil(t, got.VerifiedAt)
	assert.True(t, got.ListingPrice.IsZero())

	verifiedAt := t0.Add(time.Hour)
	got.Status = invoice.StatusListed
	got.VerifiedAt = &verifiedAt
	got.ListingPrice = types.NewAmount(97_000_0000000)
	got.CurrentHolder = "GINVESTOR"
	got.Touch(verifiedAt)
	require.NoError(t, s.UpdateInvoice(ctx, got))

	again, err := s.GetInvoice(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusListed, again.Status)
	require.NotNil(t, again.VerifiedAt)
	assert.True(t, again.VerifiedAt.Equal(verifiedAt))
	assert.True(t, again.ListingPrice.Equal(types.NewAmount(97_000_0000000)))
	assert.Equal(t, types.Address("GINVESTOR"), again.CurrentHolder)
	assert.True(t, again.UpdatedAt.Equal(verifiedAt))

	err = s.UpdateInvoice(ctx, newInvoice(42, "GSELLER", "GDEBTOR"))
	assert.True(t, factor.IsNotFound(err), "got %v", err)
}

func testInvoiceQueries(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i := uint64(1); i <= 4; i++ {
		inv := newInvoice(i, "GSELLER", "GDEBTOR")
		if i%2 == 0 {
			inv.Status = invoice.StatusSold
			inv.CurrentHolder = "GINVESTOR"
		}
		if i == 4 {
			inv.Seller = "GOTHER"
		}
		require.NoError(t, s.CreateInvoice(ctx, inv))
	}

	ids := func(invs []*invoice.Invoice) []uint64 {
		out := make([]uint64, 0, len(invs))
		for _, inv := range invs {
			out = append(out, inv.ID)
		}
		return out
	}

	all, err := s.ListInvoices(ctx, invoice.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3, 4}, ids(all))

	sold, err := s.ListInvoices(ctx, invoice.ListOpts{Status: invoice.StatusSold})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 4}, ids(sold))

	page, err := s.ListInvoices(ctx, invoice.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, ids(page))

	past, err := s.ListInvoices(ctx, invoice.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)

	bySeller, err := s.ListInvoicesByParty(ctx, "GSELLER")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids(bySeller))

	byHolder, err := s.ListInvoicesByParty(ctx, "GINVESTOR")
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 4}, ids(byHolder))

	none, err := s.ListInvoicesByParty(ctx, "GDEBTOR")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testListings(t *testing.T, s store.Store) {
	ctx := context.Background()

	listings, err := s.ListListings(ctx)
	require.NoError(t, err)
	assert.Empty(t, listings)

	for _, invoiceID := range []uint64{3, 1, 2} {
		require.NoError(t, s.CreateInvoice(ctx, newInvoice(invoiceID, "GSELLER", "GDEBTOR")))
		require.NoError(t, s.PutListing(ctx, &listing.Listing{
			InvoiceID: invoiceID,
			Seller:    "GSELLER",
			Price:     types.NewAmount(int64(invoiceID) * 1000),
			ListedAt:  t0,
		}))
	}

	l, err := s.GetListing(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, types.Address("GSELLER"), l.Seller)
	assert.True(t, l.Price.Equal(types.NewAmount(2000)))
	assert.True(t, l.ListedAt.Equal(t0))

	listings, err = s.ListListings(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 3)
	for i, l := range listings {
		assert.Equal(t, uint64(i+1), l.InvoiceID)
	}

	require.NoError(t, s.DeleteListing(ctx, 2))
	_, err = s.GetListing(ctx, 2)
	assert.True(t, errors.Is(err, factor.ErrListingNotFound), "got %v", err)
	err = s.DeleteListing(ctx, 2)
	assert.True(t, factor.IsNotFound(err), "got %v", err)
}

func testBalances(t *testing.T, s store.Store) {
	ctx := context.Background()
	const usdc = payment.Token("USDC")

	bal, err := s.GetBalance(ctx, usdc, "alice")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	require.NoError(t, s.SetBalance(ctx, usdc, "alice", types.NewAmount(500)))
	require.NoError(t, s.SetBalance(ctx, usdc, "alice", types.NewAmount(700)))
	require.NoError(t, s.SetBalance(ctx, "EURC", "alice", types.NewAmount(1)))

	bal, err = s.GetBalance(ctx, usdc, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(types.NewAmount(700)))

	book := payment.NewBook(s)
	require.NoError(t, book.Transfer(ctx, usdc, "alice", "bob", types.NewAmount(200)))

	history, err := s.ListTransfers(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.Address("alice"), history[0].From)
	assert.True(t, history[0].Amount.Equal(types.NewAmount(200)))
	assert.Equal(t, usdc, history[0].Token)
}

func testNonces(t *testing.T, s store.Store) {
	ctx := context.Background()
	// Wall-clock based so TTL-expiring backends keep the rows for the test.
	base := time.Now().UTC().Truncate(time.Millisecond)
	nonce := func(signer types.Address, value string, usedAt time.Time) *store.Nonce {
		return &store.Nonce{Signer: signer, Value: value, UsedAt: usedAt, ExpiresAt: usedAt.Add(5 * time.Minute)}
	}

	require.NoError(t, s.UseNonce(ctx, nonce("alice", "n1", base)))
	err := s.UseNonce(ctx, nonce("alice", "n1", base))
	assert.True(t, errors.Is(err, factor.ErrNonceReused), "got %v", err)
	assert.True(t, factor.IsUnauthorized(err))
	require.NoError(t, s.UseNonce(ctx, nonce("bob", "n1", base)))

	abort := errors.New("abort")
	err = s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.UseNonce(ctx, nonce("alice", "n2", base)); err != nil {
			return err
		}
		return abort
	})
	assert.True(t, errors.Is(err, abort), "got %v", err)
	require.NoError(t, s.UseNonce(ctx, nonce("alice", "n2", base)), "rolled back nonce must stay unused")

	later := base.Add(10 * time.Minute)
	require.NoError(t, s.UseNonce(ctx, nonce("alice", "n3", later)))
	require.NoError(t, s.UseNonce(ctx, nonce("alice", "n1", later)), "expired nonces are dropped")
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	initialize(t, s)

	abort := errors.New("abort")
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.NextInvoiceID(ctx); err != nil {
			return err
		}
		if err := s.CreateInvoice(ctx, newInvoice(1, "GSELLER", "GDEBTOR")); err != nil {
			return err
		}
		if err := s.SetBalance(ctx, "USDC", "alice", types.NewAmount(5)); err != nil {
			return err
		}
		return abort
	})
	assert.True(t, errors.Is(err, abort), "got %v", err)

	st, err := s.GetState(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Counter)
	_, err = s.GetInvoice(ctx, 1)
	assert.True(t, factor.IsNotFound(err))
	bal, err := s.GetBalance(ctx, "USDC", "alice")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func testTxNested(t *testing.T, s store.Store) {
	ctx := context.Background()
	initialize(t, s)

	abort := errors.New("abort")
	err := s.WithTx(ctx, func(ctx context.Context) error {
		inner := s.WithTx(ctx, func(ctx context.Context) error {
			_, err := s.NextInvoiceID(ctx)
			return err
		})
		if inner != nil {
			return inner
		}
		return abort
	})
	assert.True(t, errors.Is(err, abort), "got %v", err)

	st, err := s.GetState(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Counter, "inner work must roll back with the outer transaction")
}

func testTxSerializes(t *testing.T, s store.Store) {
	ctx := context.Background()
	initialize(t, s)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.WithTx(ctx, func(ctx context.Context) error {
				invoiceID, err := s.NextInvoiceID(ctx)
				if err != nil {
					return err
				}
				return s.CreateInvoice(ctx, newInvoice(invoiceID, "GSELLER", "GDEBTOR"))
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	st, err := s.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(workers), st.Counter)

	all, err := s.ListInvoices(ctx, invoice.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, all, workers)
}
