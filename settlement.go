package factor

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/xraph/factor/event"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/types"
)

// Settle pays a Sold invoice. payer must be the invoice's original buyer
// (the debtor) and the due date must have passed; the full amount moves
// from payer to the current holder.
//
// The due-date check runs before the status check, so settling early
// always reports ErrNotYetDue.
func (e *Engine) Settle(ctx context.Context, invoiceID uint64, payer types.Address, token payment.Token) (bool, error) {
	if err := e.requireAuth(ctx, payer); err != nil {
		return false, e.failed(ctx, event.NameSettle, invoiceID, payer, err)
	}

	now := e.clock()
	var settled *invoice.Invoice
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		if err := e.redeem(ctx, payer, now); err != nil {
			return err
		}
		inv, err := e.store.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Buyer != payer {
			return ErrNotOriginalBuyer
		}
		if !inv.IsDue(now) {
			return errors.WithDetailf(ErrNotYetDue,
				"invoice %d is due at %s", inv.ID, inv.DueDate.Format(time.RFC3339))
		}
		next, err := advance(inv, invoice.ActionSettle)
		if err != nil {
			return err
		}

		if err := e.pay(ctx, token, payer, inv.CurrentHolder, inv.Amount); err != nil {
			return err
		}

		inv.Status = next
		inv.Touch(now)
		if err := e.store.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		settled = inv
		return nil
	})
	if err != nil {
		return false, e.failed(ctx, event.NameSettle, invoiceID, payer, err)
	}

	e.logger.Info("invoice settled",
		"invoice_id", invoiceID,
		"payer", payer,
		"holder", settled.CurrentHolder,
		"amount", settled.Amount.String(),
	)

	e.plugins.EmitInvoiceSettled(ctx, settled)
	e.plugins.EmitEvent(ctx, event.New(event.NameSettle, payer, invoiceID, now).WithAmount(settled.Amount))

	return true, nil
}
