// Package plugin provides an extensible plugin system for factor.
// Plugins hook into marketplace events after each operation commits; a
// plugin failure is logged and never changes the operation's outcome.
package plugin

import (
	"context"

	"github.com/xraph/factor/event"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// OnInitialized is called once the marketplace state has been created.
type OnInitialized interface {
	Plugin
	OnInitialized(ctx context.Context, admin types.Address) error
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceMinted is called after a new invoice is minted.
type OnInvoiceMinted interface {
	Plugin
	OnInvoiceMinted(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceVerified is called after the debtor confirms an invoice.
type OnInvoiceVerified interface {
	Plugin
	OnInvoiceVerified(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceListed is called after an invoice is offered for sale.
type OnInvoiceListed interface {
	Plugin
	OnInvoiceListed(ctx context.Context, inv *invoice.Invoice, l *listing.Listing) error
}

// OnInvoiceSold is called after a purchase. sold is the listing that the
// purchase consumed.
type OnInvoiceSold interface {
	Plugin
	OnInvoiceSold(ctx context.Context, inv *invoice.Invoice, sold *listing.Listing) error
}

// OnInvoiceSettled is called after the debtor pays the current holder.
type OnInvoiceSettled interface {
	Plugin
	OnInvoiceSettled(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceDue is called by the due-date watcher for sold invoices whose
// due date has passed.
type OnInvoiceDue interface {
	Plugin
	OnInvoiceDue(ctx context.Context, inv *invoice.Invoice) error
}

// OnDeposited is called after the admin credits owner's balance.
type OnDeposited interface {
	Plugin
	OnDeposited(ctx context.Context, admin, owner types.Address, token payment.Token, amount types.Amount) error
}

// OnOperationFailed is called when a mutating operation is rejected or
// aborted. invoiceID is zero for operations without one.
type OnOperationFailed interface {
	Plugin
	OnOperationFailed(ctx context.Context, op event.Name, invoiceID uint64, caller types.Address, err error) error
}

// ──────────────────────────────────────────────────
// Event stream
// ──────────────────────────────────────────────────

// OnEvent receives every published event regardless of kind. Message-bus
// publishers implement this instead of the typed hooks.
type OnEvent interface {
	Plugin
	OnEvent(ctx context.Context, evt *event.Event) error
}
