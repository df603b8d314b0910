package factor

import (
	"context"

	"github.com/xraph/factor/event"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/types"
)

// List offers a Verified invoice for sale at price. Only the current
// holder may list it.
func (e *Engine) List(ctx context.Context, invoiceID uint64, seller types.Address, price types.Amount) (bool, error) {
	if err := e.requireAuth(ctx, seller); err != nil {
		return false, e.failed(ctx, event.NameList, invoiceID, seller, err)
	}
	if !price.IsPositive() {
		return false, e.failed(ctx, event.NameList, invoiceID, seller, invalid("price", "must be positive"))
	}

	now := e.clock()
	var (
		listed *invoice.Invoice
		offer  *listing.Listing
	)
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		if err := e.redeem(ctx, seller, now); err != nil {
			return err
		}
		inv, err := e.store.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.CurrentHolder != seller {
			return ErrNotOwner
		}
		next, err := advance(inv, invoice.ActionList)
		if err != nil {
			return err
		}

		inv.Status = next
		inv.ListingPrice = price
		inv.Touch(now)
		if err := e.store.UpdateInvoice(ctx, inv); err != nil {
			return err
		}

		l := &listing.Listing{
			InvoiceID: invoiceID,
			Seller:    seller,
			Price:     price,
			ListedAt:  now,
		}
		if err := e.store.PutListing(ctx, l); err != nil {
			return err
		}
		listed, offer = inv, l
		return nil
	})
	if err != nil {
		return false, e.failed(ctx, event.NameList, invoiceID, seller, err)
	}

	e.logger.Info("invoice listed",
		"invoice_id", invoiceID,
		"seller", seller,
		"price", price.String(),
	)

	e.plugins.EmitInvoiceListed(ctx, listed, offer)
	e.plugins.EmitEvent(ctx, event.New(event.NameList, seller, invoiceID, now).WithPrice(price))

	return true, nil
}

// Buy purchases a listed invoice. The listing price moves from buyer to the
// listing's seller through the payment collaborator, the invoice becomes
// Sold with buyer as holder, and the listing is removed. A failed transfer
// leaves everything as it was.
func (e *Engine) Buy(ctx context.Context, invoiceID uint64, buyer types.Address, token payment.Token) (bool, error) {
	if err := e.requireAuth(ctx, buyer); err != nil {
		return false, e.failed(ctx, event.NameBuy, invoiceID, buyer, err)
	}

	now := e.clock()
	var (
		sold     *invoice.Invoice
		consumed *listing.Listing
	)
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		if err := e.redeem(ctx, buyer, now); err != nil {
			return err
		}
		inv, err := e.store.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		l, err := e.store.GetListing(ctx, invoiceID)
		if err != nil {
			return err
		}
		next, err := advance(inv, invoice.ActionBuy)
		if err != nil {
			return err
		}

		if err := e.pay(ctx, token, buyer, l.Seller, l.Price); err != nil {
			return err
		}

		inv.Status = next
		inv.CurrentHolder = buyer
		inv.ListingPrice = types.ZeroAmount()
		inv.Touch(now)
		if err := e.store.UpdateInvoice(ctx, inv); err != nil {
			return err
		}
		if err := e.store.DeleteListing(ctx, invoiceID); err != nil {
			return err
		}
		sold, consumed = inv, l
		return nil
	})
	if err != nil {
		return false, e.failed(ctx, event.NameBuy, invoiceID, buyer, err)
	}

	e.logger.Info("invoice sold",
		"invoice_id", invoiceID,
		"buyer", buyer,
		"seller", consumed.Seller,
		"price", consumed.Price.String(),
	)

	e.plugins.EmitInvoiceSold(ctx, sold, consumed)
	e.plugins.EmitEvent(ctx, event.New(event.NameBuy, buyer, invoiceID, now).WithPrice(consumed.Price))

	return true, nil
}
