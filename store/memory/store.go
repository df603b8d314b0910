// Package memory provides an in-process store.Store. Transactions hold an
// exclusive lock for their whole duration and roll back by restoring a
// snapshot, so concurrent operations are applied in a strict serial order.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/xraph/factor"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type nonceKey struct {
	signer types.Address
	value  string
}

type balanceKey struct {
	token payment.Token
	owner types.Address
}

// Store is an in-memory store.Store. Stored records are never mutated in
// place; every write replaces the pointer with a fresh copy.
type Store struct {
	mu sync.RWMutex

	state     *store.State
	invoices  map[uint64]*invoice.Invoice
	listings  map[uint64]*listing.Listing
	balances  map[balanceKey]types.Amount
	transfers []*payment.Transfer
	nonces    map[nonceKey]time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		invoices: make(map[uint64]*invoice.Invoice),
		listings: make(map[uint64]*listing.Listing),
		balances: make(map[balanceKey]types.Amount),
		nonces:   make(map[nonceKey]time.Time),
	}
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

type txKey struct{}

func (s *Store) inTx(ctx context.Context) bool {
	owner, ok := ctx.Value(txKey{}).(*Store)
	return ok && owner == s
}

type snapshot struct {
	state     *store.State
	invoices  map[uint64]*invoice.Invoice
	listings  map[uint64]*listing.Listing
	balances  map[balanceKey]types.Amount
	transfers []*payment.Transfer
	nonces    map[nonceKey]time.Time
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		state:     s.state,
		invoices:  maps.Clone(s.invoices),
		listings:  maps.Clone(s.listings),
		balances:  maps.Clone(s.balances),
		transfers: slices.Clone(s.transfers),
		nonces:    maps.Clone(s.nonces),
	}
}

func (s *Store) restore(snap snapshot) {
	s.state = snap.state
	s.invoices = snap.invoices
	s.listings = snap.listings
	s.balances = snap.balances
	s.transfers = snap.transfers
	s.nonces = snap.nonces
}

// WithTx runs fn while holding the store exclusively. Any error or panic
// restores the state as it was before fn started.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

// read locks for reading unless ctx already holds the store.
func (s *Store) read(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// write locks for writing unless ctx already holds the store.
func (s *Store) write(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// ──────────────────────────────────────────────────
// State
// ──────────────────────────────────────────────────

func (s *Store) GetState(ctx context.Context) (*store.State, error) {
	defer s.read(ctx)()

	if s.state == nil {
		return nil, factor.ErrNotInitialized
	}
	st := *s.state
	return &st, nil
}

func (s *Store) CreateState(ctx context.Context, st *store.State) error {
	defer s.write(ctx)()

	if s.state != nil {
		return factor.ErrAlreadyInitialized
	}
	c := *st
	s.state = &c
	return nil
}

func (s *Store) NextInvoiceID(ctx context.Context) (uint64, error) {
	defer s.write(ctx)()

	if s.state == nil {
		return 0, factor.ErrNotInitialized
	}
	next := *s.state
	next.Counter++
	s.state = &next
	return next.Counter, nil
}

// ──────────────────────────────────────────────────
// Invoices
// ──────────────────────────────────────────────────

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	defer s.write(ctx)()

	if _, exists := s.invoices[inv.ID]; exists {
		return factor.ErrAlreadyExists
	}
	s.invoices[inv.ID] = inv.Clone()
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invoiceID uint64) (*invoice.Invoice, error) {
	defer s.read(ctx)()

	if inv, ok := s.invoices[invoiceID]; ok {
		return inv.Clone(), nil
	}
	return nil, factor.ErrInvoiceNotFound
}

func (s *Store) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	defer s.write(ctx)()

	if _, ok := s.invoices[inv.ID]; !ok {
		return factor.ErrInvoiceNotFound
	}
	s.invoices[inv.ID] = inv.Clone()
	return nil
}

func (s *Store) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	defer s.read(ctx)()

	result := s.sortedInvoices(func(inv *invoice.Invoice) bool {
		return opts.Status == "" || inv.Status == opts.Status
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return []*invoice.Invoice{}, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (s *Store) ListInvoicesByParty(ctx context.Context, party types.Address) ([]*invoice.Invoice, error) {
	defer s.read(ctx)()

	return s.sortedInvoices(func(inv *invoice.Invoice) bool {
		return inv.Involves(party)
	}), nil
}

// sortedInvoices returns copies of the matching invoices in id order.
// Callers hold the lock.
func (s *Store) sortedInvoices(match func(*invoice.Invoice) bool) []*invoice.Invoice {
	ids := slices.Sorted(maps.Keys(s.invoices))
	matched := lo.Filter(ids, func(invoiceID uint64, _ int) bool {
		return match(s.invoices[invoiceID])
	})
	return lo.Map(matched, func(invoiceID uint64, _ int) *invoice.Invoice {
		return s.invoices[invoiceID].Clone()
	})
}

// ──────────────────────────────────────────────────
// Listings
// ──────────────────────────────────────────────────

func (s *Store) PutListing(ctx context.Context, l *listing.Listing) error {
	defer s.write(ctx)()

	s.listings[l.InvoiceID] = l.Clone()
	return nil
}

func (s *Store) GetListing(ctx context.Context, invoiceID uint64) (*listing.Listing, error) {
	defer s.read(ctx)()

	if l, ok := s.listings[invoiceID]; ok {
		return l.Clone(), nil
	}
	return nil, factor.ErrListingNotFound
}

func (s *Store) DeleteListing(ctx context.Context, invoiceID uint64) error {
	defer s.write(ctx)()

	if _, ok := s.listings[invoiceID]; !ok {
		return factor.ErrListingNotFound
	}
	delete(s.listings, invoiceID)
	return nil
}

func (s *Store) ListListings(ctx context.Context) ([]*listing.Listing, error) {
	defer s.read(ctx)()

	ids := slices.Sorted(maps.Keys(s.listings))
	return lo.Map(ids, func(invoiceID uint64, _ int) *listing.Listing {
		return s.listings[invoiceID].Clone()
	}), nil
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

func (s *Store) GetBalance(ctx context.Context, token payment.Token, owner types.Address) (types.Amount, error) {
	defer s.read(ctx)()

	if bal, ok := s.balances[balanceKey{token: token, owner: owner}]; ok {
		return bal, nil
	}
	return types.ZeroAmount(), nil
}

func (s *Store) SetBalance(ctx context.Context, token payment.Token, owner types.Address, amount types.Amount) error {
	defer s.write(ctx)()

	s.balances[balanceKey{token: token, owner: owner}] = amount
	return nil
}

func (s *Store) RecordTransfer(ctx context.Context, t *payment.Transfer) error {
	defer s.write(ctx)()

	c := *t
	s.transfers = append(s.transfers, &c)
	return nil
}

func (s *Store) ListTransfers(ctx context.Context, owner types.Address) ([]*payment.Transfer, error) {
	defer s.read(ctx)()

	matched := lo.Filter(s.transfers, func(t *payment.Transfer, _ int) bool {
		return t.From == owner || t.To == owner
	})
	return lo.Map(matched, func(t *payment.Transfer, _ int) *payment.Transfer {
		c := *t
		return &c
	}), nil
}

// ──────────────────────────────────────────────────
// Nonces
// ──────────────────────────────────────────────────

func (s *Store) UseNonce(ctx context.Context, n *store.Nonce) error {
	defer s.write(ctx)()

	maps.DeleteFunc(s.nonces, func(_ nonceKey, expiresAt time.Time) bool {
		return expiresAt.Before(n.UsedAt)
	})

	key := nonceKey{signer: n.Signer, value: n.Value}
	if _, used := s.nonces[key]; used {
		return factor.ErrNonceReused
	}
	s.nonces[key] = n.ExpiresAt
	return nil
}

// ──────────────────────────────────────────────────
// Store management
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}
