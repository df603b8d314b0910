// Package store defines the unified persistence contract for factor.
// Backends live in the subpackages (memory, postgres, sqlite, mongo).
package store

import (
	"context"
	"time"

	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/types"
)

// State is the process-wide record created once by Initialize.
type State struct {
	Admin         types.Address `json:"admin"`
	Counter       uint64        `json:"counter"`
	InitializedAt time.Time     `json:"initialized_at"`
}

// Nonce records one use of a signed-request nonce. Backends keep it until
// ExpiresAt, after which the signature it came with is stale anyway.
type Nonce struct {
	Signer    types.Address `json:"signer"`
	Value     string        `json:"value"`
	UsedAt    time.Time     `json:"used_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Store is the unified storage interface for all factor records.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// Every engine operation runs inside WithTx. Backends must make the whole
// callback atomic and serialize it against conflicting transactions; reads
// issued inside the callback observe the state as of application time.
// WithTx called with a ctx that already carries a transaction joins it.
type Store interface {
	// State methods
	GetState(ctx context.Context) (*State, error)
	CreateState(ctx context.Context, st *State) error
	// NextInvoiceID increments the counter and returns the new value.
	NextInvoiceID(ctx context.Context) (uint64, error)

	// Invoice methods
	CreateInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invoiceID uint64) (*invoice.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error
	ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error)
	ListInvoicesByParty(ctx context.Context, party types.Address) ([]*invoice.Invoice, error)

	// Listing methods
	PutListing(ctx context.Context, l *listing.Listing) error
	GetListing(ctx context.Context, invoiceID uint64) (*listing.Listing, error)
	DeleteListing(ctx context.Context, invoiceID uint64) error
	ListListings(ctx context.Context) ([]*listing.Listing, error)

	// Payment methods
	GetBalance(ctx context.Context, token payment.Token, owner types.Address) (types.Amount, error)
	SetBalance(ctx context.Context, token payment.Token, owner types.Address, amount types.Amount) error
	RecordTransfer(ctx context.Context, t *payment.Transfer) error
	ListTransfers(ctx context.Context, owner types.Address) ([]*payment.Transfer, error)

	// Nonce methods
	// UseNonce records n. It fails with factor.ErrNonceReused if n.Signer
	// already used n.Value, and drops nonces that expired before n.UsedAt.
	UseNonce(ctx context.Context, n *Nonce) error

	// Transaction
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Compile-time check that the unified store can back a payment.Book.
var _ payment.Store = (Store)(nil)
