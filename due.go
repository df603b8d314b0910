package factor

import (
	"context"

	"github.com/samber/lo"

	"github.com/xraph/factor/event"
	"github.com/xraph/factor/invoice"
)

// DueInvoices returns, in id order, the Sold invoices whose due date has
// passed at the current ledger time.
func (e *Engine) DueInvoices(ctx context.Context) ([]*invoice.Invoice, error) {
	sold, err := e.store.ListInvoices(ctx, invoice.ListOpts{Status: invoice.StatusSold})
	if err != nil {
		return nil, err
	}
	now := e.clock()
	return lo.Filter(sold, func(inv *invoice.Invoice, _ int) bool {
		return inv.IsDue(now)
	}), nil
}

// AnnounceDue tells plugins that inv has reached its due date and awaits
// settlement. The event's caller is the debtor expected to settle. It
// changes no state; callers decide how often an invoice is announced.
func (e *Engine) AnnounceDue(ctx context.Context, inv *invoice.Invoice) {
	e.logger.Info("invoice due",
		"invoice_id", inv.ID,
		"buyer", inv.Buyer,
		"holder", inv.CurrentHolder,
		"due_date", inv.DueDate,
	)

	e.plugins.EmitInvoiceDue(ctx, inv)
	e.plugins.EmitEvent(ctx, event.New(event.NameDue, inv.Buyer, inv.ID, e.clock()).
		WithAmount(inv.Amount).
		WithDueDate(inv.DueDate))
}
