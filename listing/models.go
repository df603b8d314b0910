// Package listing holds the marketplace offers for verified invoices.
package listing

import (
	"time"

	"github.com/xraph/factor/types"
)

// Listing is the single active sale offer for an invoice. It exists exactly
// while the invoice is listed and is removed by a purchase.
type Listing struct {
	InvoiceID uint64        `json:"invoice_id"`
	Seller    types.Address `json:"seller"`
	Price     types.Amount  `json:"price"`
	ListedAt  time.Time     `json:"listed_at"`
}

// Clone returns a copy of l.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
