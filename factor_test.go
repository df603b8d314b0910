package factor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/factor"
	"github.com/xraph/factor/auth"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/store/memory"
	"github.com/xraph/factor/types"
)

const (
	admin    = types.Address("GADMIN")
	seller   = types.Address("GSELLER")
	debtor   = types.Address("GDEBTOR")
	investor = types.Address("GINVESTOR")
	usdc     = payment.Token("USDC")
)

var (
	faceValue = types.NewAmount(100_000_0000000)
	listPrice = types.NewAmount(97_000_0000000)
	dueDate   = time.Unix(1735689600, 0).UTC()
)

// testClock is a settable ledger clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	engine *factor.Engine
	store  *memory.Store
	book   *payment.Book
	clock  *testClock
}

func newHarness(t *testing.T, opts ...factor.Option) *harness {
	t.Helper()

	st := memory.New()
	clk := &testClock{now: dueDate.Add(-30 * 24 * time.Hour)}
	book := payment.NewBook(st, payment.WithBookClock(clk.Now))

	base := []factor.Option{
		factor.WithAuthorizer(auth.AllowAll),
		factor.WithTransferer(book),
		factor.WithClock(clk.Now),
	}
	eng := factor.New(st, append(base, opts...)...)
	require.NoError(t, eng.Start(context.Background()))

	return &harness{engine: eng, store: st, book: book, clock: clk}
}

func (h *harness) initialize(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Initialize(context.Background(), admin))
}

func (h *harness) fund(t *testing.T, owner types.Address, amount types.Amount) {
	t.Helper()
	require.NoError(t, h.book.Deposit(context.Background(), usdc, owner, amount))
}

func (h *harness) balance(t *testing.T, owner types.Address) types.Amount {
	t.Helper()
	bal, err := h.book.Balance(context.Background(), usdc, owner)
	require.NoError(t, err)
	return bal
}

// mintVerified mints an invoice and has the debtor verify it.
func (h *harness) mintVerified(t *testing.T) uint64 {
	t.Helper()
	ctx := context.Background()

	invoiceID, err := h.engine.Mint(ctx, seller, debtor, faceValue, dueDate)
	require.NoError(t, err)
	ok, err := h.engine.Verify(ctx, invoiceID, debtor)
	require.NoError(t, err)
	require.True(t, ok)
	return invoiceID
}

// mintListed mints, verifies and lists an invoice at listPrice.
func (h *harness) mintListed(t *testing.T) uint64 {
	t.Helper()
	invoiceID := h.mintVerified(t)
	ok, err := h.engine.List(context.Background(), invoiceID, seller, listPrice)
	require.NoError(t, err)
	require.True(t, ok)
	return invoiceID
}

// assertListingInvariant checks that a listing exists iff the invoice is listed.
func (h *harness) assertListingInvariant(t *testing.T, invoiceID uint64) {
	t.Helper()
	ctx := context.Background()

	inv, err := h.engine.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	_, err = h.engine.GetListing(ctx, invoiceID)

	if inv.Status == invoice.StatusListed {
		assert.NoError(t, err, "listed invoice %d has no listing", invoiceID)
		assert.True(t, inv.ListingPrice.IsPositive())
	} else {
		assert.True(t, factor.IsNotFound(err), "invoice %d in %s still has a listing", invoiceID, inv.Status)
		assert.True(t, inv.ListingPrice.IsZero())
	}
}

func TestFullLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t)
	h.fund(t, investor, listPrice)
	h.fund(t, debtor, faceValue)

	invoiceID, err := h.engine.Mint(ctx, seller, debtor, faceValue, dueDate)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), invoiceID)

	inv, err := h.engine.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.True(t, inv.Amount.Equal(faceValue))
	assert.Equal(t, seller, inv.Seller)
	assert.Equal(t, debtor, inv.Buyer)
	assert.Equal(t, seller, inv.CurrentHolder)
	assert.Equal(t, invoice.StatusPending, inv.Status)
	assert.Nil(t, inv.VerifiedAt)
	assert.Equal(t, h.clock.Now(), inv.CreatedAt)
	h.assertListingInvariant(t, invoiceID)

	ok, err := h.engine.Verify(ctx, invoiceID, debtor)
	require.NoError(t, err)
	assert.True(t, ok)
	inv, err = h.engine.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusVerified, inv.Status)
	require.NotNil(t, inv.VerifiedAt)
	assert.False(t, inv.VerifiedAt.IsZero())
	h.assertListingInvariant(t, invoiceID)

	ok, err = h.engine.List(ctx, invoiceID, seller, listPrice)
	require.NoError(t, err)
	assert.True(t, ok)
	inv, err = h.engine.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusListed, inv.Status)
	assert.True(t, inv.ListingPrice.Equal(listPrice))
	l, err := h.engine.GetListing(ctx, invoiceID)
	require.NoError(t, err)
	assert.True(t, l.Price.Equal(listPrice))
	assert.Equal(t, seller, l.Seller)
	h.assertListingInvariant(t, invoiceID)

	ok, err = h.engine.Buy(ctx, invoiceID, investor, usdc)
	require.NoError(t, err)
	assert.True(t, ok)
	inv, err = h.engine.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSold, inv.Status)
	assert.Equal(t, investor, inv.CurrentHolder)
	_, err = h.engine.GetListing(ctx, invoiceID)
	assert.True(t, factor.IsNotFound(err))
	assert.True(t, h.balance(t, investor).IsZero())
	assert.True(t, h.balance(t, seller).Equal(listPrice))
	h.assertListingInvariant(t, invoiceID)

	_, err = h.engine.Settle(ctx, invoiceID, debtor, usdc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, factor.ErrNotYetDue))

	h.clock.Set(dueDate)
	ok, err = h.engine.Settle(ctx, invoiceID, debtor, usdc)
	require.NoError(t, err)
	assert.True(t, ok)
	inv, err = h.engine.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSettled, inv.Status)
	assert.True(t, h.balance(t, investor).Equal(faceValue))
	assert.True(t, h.balance(t, debtor).IsZero())
	h.assertListingInvariant(t, invoiceID)

	_, err = h.engine.Settle(ctx, invoiceID, debtor, usdc)
	assert.True(t, factor.IsInvalidTransition(err))
}

func TestInitialize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	count, err := h.engine.GetInvoiceCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = h.engine.Mint(ctx, seller, debtor, faceValue, dueDate)
	assert.True(t, errors.Is(err, factor.ErrNotInitialized))

	h.initialize(t)
	st, err := h.engine.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, st.Admin)
	assert.Zero(t, st.Counter)

	err = h.engine.Initialize(ctx, "GOTHER")
	assert.True(t, errors.Is(err, factor.ErrAlreadyInitialized))
	assert.Equal(t, factor.CodeAlreadyInitialized, factor.Code(err))

	st, err = h.engine.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, admin, st.Admin, "second initialize must not replace the admin")
}

func TestInitializeRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	err := h.engine.Initialize(context.Background(), "")
	assert.Equal(t, factor.CodeInvalidInput, factor.Code(err))
}

func TestMintAssignsIncreasingIDs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t)

	for want := uint64(1); want <= 5; want++ {
		got, err := h.engine.Mint(ctx, seller, debtor, faceValue, dueDate)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		count, err := h.engine.GetInvoiceCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, count)
	}
}

func TestMintValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t)

	tests := []struct {
		name   string
		buyer  types.Address
		amount types.Amount
		due    time.Time
	}{
		{"zero amount", debtor, types.ZeroAmount(), dueDate},
		{"negative amount", debtor, types.NewAmount(-1), dueDate},
		{"missing buyer", "", faceValue, dueDate},
		{"missing due date", debtor, faceValue, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Mint(ctx, seller, tt.buyer, tt.amount, tt.due)
			require.Error(t, err)
			assert.True(t, errors.Is(err, factor.ErrInvalidInput))
			var verr factor.ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}

	count, err := h.engine.GetInvoiceCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "rejected mints must not consume ids")
}

func TestVerifyRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t)

	invoiceID, err := h.engine.Mint(ctx, seller, debtor, faceValue, dueDate)
	require.NoError(t, err)

	_, err = h.engine.Verify(ctx, 99, debtor)
	assert.True(t, errors.Is(err, factor.ErrInvoiceNotFound))
	assert.True(t, factor.IsNotFound(err))

	_, err = h.engine.Verify(ctx, invoiceID, seller)
	assert.True(t, errors.Is(err, factor.ErrNotDesignatedBuyer))
	assert.True(t, factor.IsUnauthorized(err))

	ok, err := h.engine.Verify(ctx, invoiceID, debtor)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.engine.Verify(ctx, invoiceID, debtor)
	assert.False(t, ok)
	assert.True(t, factor.IsInvalidTransition(err))
}

func TestListRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t)

	pending, err := h.engine.Mint(ctx, seller, debtor, faceValue, dueDate)
	require.NoError(t, err)
	_, err = h.engine.List(ctx, pending, seller, listPrice)
	assert.True(t, factor.IsInvalidTransition(err), "listing a pending invoice")
	h.assertListingInvariant(t, pending)

	verified := h.mintVerified(t)
	_, err = h.engine.List(ctx, verified, investor, listPrice)
	assert.True(t, errors.Is(err, factor.ErrNotOwner))

	_, err = h.engine.List(ctx, verified, seller, types.ZeroAmount())
	assert.True(t, errors.Is(err, factor.ErrInvalidInput))

	_, err = h.engine.List(ctx, 99, seller, listPrice)
	assert.True(t, factor.IsNotFound(err))

	ok, err := h.engine.List(ctx, verified, seller, listPrice)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = h.engine.List(ctx, verified, seller, listPrice)
	assert.True(t, factor.IsInvalidTransition(err), "listing twice")
	h.assertListingInvariant(t, verified)
}

func TestBuyRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t)

	_, err := h.engine.Buy(ctx, 99, investor, usdc)
	assert.True(t, errors.Is(err, factor.ErrInvoiceNotFound))

	verified := h.mintVerified(t)
	_, err = h.engine.Buy(ctx, verified, investor, usdc)
	assert.True(t, errors.Is(err, factor.ErrListingNotFound))
	assert.True(t, factor.IsNotFound(err))
}

func TestBuyWithoutFundsLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t)
	invoiceID := h.mintListed(t)
	h.fund(t, investor, types.NewAmount(1))

	ok, err := h.engine.Buy(ctx, invoiceID, investor, usdc)
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, factor.IsTransferFailure(err))
	assert.True(t, errors.Is(err, payment.ErrInsufficientBalance))
	assert.Equal(t, factor.CodeTransferFailed, factor.Code(err))

	inv, err := h.engine.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusListed, inv.Status)
	assert.Equal(t, seller, inv.CurrentHolder)
	h.assertListingInvariant(t, invoiceID)
	assert.True(t, h.balance(t, investor).Equal(types.NewAmount(1)))
	assert.True(t, h.balance(t, seller).IsZero())
}

func TestConcurrentBuyHasOneWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t)
	invoiceID := h.mintListed(t)

	buyers := []types.Address{"GBUYER1", "GBUYER2", "GBUYER3", "GBUYER4"}
	for _, b := range buyers {
		h.fund(t, b, listPrice)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []types.Address
		failures []error
	)
	for _, b := range buyers {
		wg.Add(1)
		go func(b types.Address) {
			defer wg.Done()
			ok, err := h.engine.Buy(ctx, invoiceID, b, usdc)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				winners = append(winners, b)
				return
			}
			failures = append(failures, err)
		}(b)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	require.Len(t, failures, len(buyers)-1)
	for _, err := range failures {
		assert.True(t, factor.IsNotFound(err) || factor.IsInvalidTransition(err), "unexpected error: %v", err)
	}

	inv, err := h.engine.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], inv.CurrentHolder)
	assert.True(t, h.balance(t, seller).Equal(listPrice), "seller paid exactly once")
	for _, b := range buyers {
		if b == winners[0] {
			assert.True(t, h.balance(t, b).IsZero())
			continue
		}
		assert.True(t, h.balance(t, b).Equal(listPrice), "losing buyer %s was charged", b)
	}
}

func TestSettleRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t)
	h.fund(t, investor, listPrice)
	h.fund(t, debtor, faceValue)

	pending, err := h.engine.Mint(ctx, seller, debtor, faceValue, dueDate)
	require.NoError(t, err)
	_, err = h.engine.Settle(ctx, pending, debtor, usdc)
	assert.True(t, errors.Is(err, factor.ErrNotYetDue), "early settle reports not yet due regardless of status")

	sold := h.mintListed(t)
	_, err = h.engine.Buy(ctx, sold, investor, usdc)
	require.NoError(t, err)

	h.clock.Set(dueDate.Add(time.Hour))

	_, err = h.engine.Settle(ctx, sold, investor, usdc)
	assert.True(t, errors.Is(err, factor.ErrNotOriginalBuyer), "holder is not the debtor")

	_, err = h.engine.Settle(ctx, pending, debtor, usdc)
	assert.True(t, factor.IsInvalidTransition(err), "never-sold invoices cannot settle")

	_, err = h.engine.Settle(ctx, 99, debtor, usdc)
	assert.True(t, factor.IsNotFound(err))

	ok, err := h.engine.Settle(ctx, sold, debtor, usdc)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSettleWithoutFundsLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t)
	h.fund(t, investor, listPrice)

	invoiceID := h.mintListed(t)
	_, err := h.engine.Buy(ctx, invoiceID, investor, usdc)
	require.NoError(t, err)

	h.clock.Set(dueDate)
	_, err = h.engine.Settle(ctx, invoiceID, debtor, usdc)
	assert.True(t, errors.Is(err, payment.ErrInsufficientBalance))

	inv, err := h.engine.GetInvoice(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusSold, inv.Status)
}

func TestIdentityGate(t *testing.T) {
	h := newHarness(t, factor.WithAuthorizer(auth.ContextAuthorizer{}))
	ctx := context.Background()
	h.initialize(t)

	_, err := h.engine.Mint(ctx, seller, debtor, faceValue, dueDate)
	require.Error(t, err)
	assert.True(t, factor.IsUnauthorized(err))
	assert.True(t, errors.Is(err, auth.ErrNotSigned))

	signed := auth.WithSigners(ctx, seller)
	invoiceID, err := h.engine.Mint(signed, seller, debtor, faceValue, dueDate)
	require.NoError(t, err)

	_, err = h.engine.Verify(signed, invoiceID, debtor)
	assert.True(t, factor.IsUnauthorized(err), "seller cannot sign for the debtor")

	_, err = h.engine.Verify(auth.WithSigners(ctx, debtor), invoiceID, debtor)
	assert.NoError(t, err)
}

func TestGetInvoicesBySeller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t)
	h.fund(t, investor, listPrice)

	first := h.mintListed(t)
	second, err := h.engine.Mint(ctx, seller, debtor, faceValue, dueDate)
	require.NoError(t, err)
	other, err := h.engine.Mint(ctx, "GOTHERSELLER", debtor, faceValue, dueDate)
	require.NoError(t, err)

	ids := func(invs []*invoice.Invoice) []uint64 {
		out := make([]uint64, 0, len(invs))
		for _, inv := range invs {
			out = append(out, inv.ID)
		}
		return out
	}

	bySeller, err := h.engine.GetInvoicesBySeller(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, []uint64{first, second}, ids(bySeller))

	byInvestor, err := h.engine.GetInvoicesBySeller(ctx, investor)
	require.NoError(t, err)
	assert.Empty(t, byInvestor)

	_, err = h.engine.Buy(ctx, first, investor, usdc)
	require.NoError(t, err)

	byInvestor, err = h.engine.GetInvoicesBySeller(ctx, investor)
	require.NoError(t, err)
	assert.Equal(t, []uint64{first}, ids(byInvestor))

	bySeller, err = h.engine.GetInvoicesBySeller(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, []uint64{first, second}, ids(bySeller), "original seller still matches after resale")

	byDebtor, err := h.engine.GetInvoicesBySeller(ctx, debtor)
	require.NoError(t, err)
	assert.Empty(t, byDebtor)

	all, err := h.engine.ListInvoices(ctx, invoice.ListOpts{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{first, second, other}, ids(all))

	pending, err := h.engine.ListInvoices(ctx, invoice.ListOpts{Status: invoice.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, []uint64{second, other}, ids(pending))

	_, err = h.engine.ListInvoices(ctx, invoice.ListOpts{Status: "draft"})
	assert.True(t, errors.Is(err, factor.ErrInvalidInput))
}

func TestGetAllListings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.initialize(t)

	listings, err := h.engine.GetAllListings(ctx)
	require.NoError(t, err)
	assert.Empty(t, listings)

	a := h.mintListed(t)
	h.mintVerified(t)
	b := h.mintListed(t)

	listings, err = h.engine.GetAllListings(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, a, listings[0].InvoiceID)
	assert.Equal(t, b, listings[1].InvoiceID)
}
