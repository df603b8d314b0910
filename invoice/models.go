package invoice

import (
	"time"

	"github.com/xraph/factor/types"
)

// Invoice is one tokenized receivable and its current disposition.
type Invoice struct {
	types.Entity
	ID            uint64        `json:"id"`
	Seller        types.Address `json:"seller"`
	Buyer         types.Address `json:"buyer"`
	Amount        types.Amount  `json:"amount"`
	DueDate       time.Time     `json:"due_date"`
	Status        Status        `json:"status"`
	VerifiedAt    *time.Time    `json:"verified_at,omitempty"`
	ListingPrice  types.Amount  `json:"listing_price"`
	CurrentHolder types.Address `json:"current_holder"`
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	c := *inv
	if inv.VerifiedAt != nil {
		t := *inv.VerifiedAt
		c.VerifiedAt = &t
	}
	return &c
}

// IsDue reports whether settlement is allowed at now.
func (inv *Invoice) IsDue(now time.Time) bool {
	return !now.Before(inv.DueDate)
}

// Involves reports whether addr is the seller or the current holder.
func (inv *Invoice) Involves(addr types.Address) bool {
	return inv.Seller == addr || inv.CurrentHolder == addr
}

// ListOpts filters invoice listings. A zero Status matches every status.
type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
