package invoice

import (
	"context"

	"github.com/xraph/factor/types"
)

// Store persists invoices. Invoices are never deleted.
type Store interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, invoiceID uint64) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	List(ctx context.Context, opts ListOpts) ([]*Invoice, error)
	ListByParty(ctx context.Context, party types.Address) ([]*Invoice, error)
}
