package listing

import "context"

// Store persists active listings keyed by invoice id.
type Store interface {
	// Put stores l, replacing any listing for the same invoice.
	Put(ctx context.Context, l *Listing) error
	Get(ctx context.Context, invoiceID uint64) (*Listing, error)
	Delete(ctx context.Context, invoiceID uint64) error
	// List returns all listings ordered by invoice id.
	List(ctx context.Context) ([]*Listing, error)
}
