package factor

import (
	"context"
	"time"

	"github.com/xraph/factor/event"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/types"
)

// Mint creates a Pending invoice owed by buyer to seller and returns its id.
// seller must be a verified signer.
func (e *Engine) Mint(ctx context.Context, seller, buyer types.Address, amount types.Amount, dueDate time.Time) (uint64, error) {
	if err := e.requireAuth(ctx, seller); err != nil {
		return 0, e.failed(ctx, event.NameMint, 0, seller, err)
	}
	if err := validateMint(buyer, amount, dueDate); err != nil {
		return 0, e.failed(ctx, event.NameMint, 0, seller, err)
	}

	now := e.clock()
	var minted *invoice.Invoice
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := e.store.GetState(ctx); err != nil {
			return err
		}
		if err := e.redeem(ctx, seller, now); err != nil {
			return err
		}

		invoiceID, err := e.store.NextInvoiceID(ctx)
		if err != nil {
			return err
		}

		inv := &invoice.Invoice{
			Entity:        types.NewEntity(now),
			ID:            invoiceID,
			Seller:        seller,
			Buyer:         buyer,
			Amount:        amount,
			DueDate:       dueDate.UTC(),
			Status:        invoice.StatusPending,
			ListingPrice:  types.ZeroAmount(),
			CurrentHolder: seller,
		}
		if err := e.store.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		minted = inv
		return nil
	})
	if err != nil {
		return 0, e.failed(ctx, event.NameMint, 0, seller, err)
	}

	e.logger.Info("invoice minted",
		"invoice_id", minted.ID,
		"seller", seller,
		"buyer", buyer,
		"amount", amount.String(),
		"due_date", minted.DueDate,
	)

	e.plugins.EmitInvoiceMinted(ctx, minted)
	e.plugins.EmitEvent(ctx, event.New(event.NameMint, seller, minted.ID, now).
		WithAmount(amount).
		WithDueDate(minted.DueDate))

	return minted.ID, nil
}

// Verify records the designated buyer's confirmation of a Pending invoice.
func (e *Engine) Verify(ctx context.Context, invoiceID uint64, buyer types.Address) (bool, error) {
	if err := e.requireAuth(ctx, buyer); err != nil {
		return false, e.failed(ctx, event.NameVerify, invoiceID, buyer, err)
	}

	now := e.clock()
	var verified *invoice.Invoice
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		if err := e.redeem(ctx, buyer, now); err != nil {
			return err
		}
		inv, err := e.store.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Buyer != buyer {
			return ErrNotDesignatedBuyer
		}
		next, err := advance(inv, invoice.ActionVerify)
		if err != nil {
			return err
		}

		inv.Status = next
		inv.VerifiedAt = &now
		inv.Touch(now)
		if err := e.store.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		verified = inv
		return nil
	})
	if err != nil {
		return false, e.failed(ctx, event.NameVerify, invoiceID, buyer, err)
	}

	e.logger.Info("invoice verified", "invoice_id", invoiceID, "buyer", buyer)

	e.plugins.EmitInvoiceVerified(ctx, verified)
	e.plugins.EmitEvent(ctx, event.New(event.NameVerify, buyer, invoiceID, now))

	return true, nil
}

func validateMint(buyer types.Address, amount types.Amount, dueDate time.Time) error {
	if buyer.IsZero() {
		return invalid("buyer", "must not be empty")
	}
	if !amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	if dueDate.IsZero() {
		return invalid("due_date", "must be set")
	}
	return nil
}
