package factor

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/types"
)

// Queries are read-only and need no identity.

// GetInvoice returns the invoice with the given id.
func (e *Engine) GetInvoice(ctx context.Context, invoiceID uint64) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, invoiceID)
}

// GetListing returns the active listing for an invoice.
func (e *Engine) GetListing(ctx context.Context, invoiceID uint64) (*listing.Listing, error) {
	return e.store.GetListing(ctx, invoiceID)
}

// GetInvoicesBySeller returns, in id order, every invoice that party minted
// or currently holds.
func (e *Engine) GetInvoicesBySeller(ctx context.Context, party types.Address) ([]*invoice.Invoice, error) {
	return e.store.ListInvoicesByParty(ctx, party)
}

// GetAllListings returns every active listing in invoice id order.
func (e *Engine) GetAllListings(ctx context.Context) ([]*listing.Listing, error) {
	return e.store.ListListings(ctx)
}

// GetInvoiceCount returns the number of invoices minted so far. It is zero
// before initialization.
func (e *Engine) GetInvoiceCount(ctx context.Context) (uint64, error) {
	st, err := e.store.GetState(ctx)
	if errors.Is(err, ErrNotInitialized) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return st.Counter, nil
}

// GetState returns the marketplace state record.
func (e *Engine) GetState(ctx context.Context) (*store.State, error) {
	return e.store.GetState(ctx)
}

// ListInvoices returns invoices filtered by status, in id order.
func (e *Engine) ListInvoices(ctx context.Context, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, invalid("status", "unknown status "+opts.Status.String())
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, invalid("limit", "limit and offset must not be negative")
	}
	return e.store.ListInvoices(ctx, opts)
}
