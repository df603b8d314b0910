// Package observability provides a metrics extension for factor that
// records marketplace activity through a pluggable MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/factor"
	"github.com/xraph/factor/event"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/plugin"
	"github.com/xraph/factor/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnInit            = (*MetricsExtension)(nil)
	_ plugin.OnInitialized     = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceMinted   = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceVerified = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceListed   = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceSold     = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceSettled  = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceDue      = (*MetricsExtension)(nil)
	_ plugin.OnDeposited       = (*MetricsExtension)(nil)
	_ plugin.OnOperationFailed = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide marketplace metrics.
// Amount histograms observe display units (base units shifted by
// types.Decimals).
type MetricsExtension struct {
	factory MetricFactory

	// Marketplace metrics
	Initialized Counter

	// Invoice metrics
	InvoiceMinted   Counter
	InvoiceVerified Counter
	InvoiceListed   Counter
	InvoiceSold     Counter
	InvoiceSettled  Counter
	InvoiceDue      Counter
	InvoiceAmount   Histogram

	// Trading metrics
	ListingPrice  Histogram
	SaleVolume    Histogram
	SaleDiscount  Histogram
	SettledVolume Histogram

	// Funding metrics
	Deposits      Counter
	DepositVolume Histogram

	// Error metrics
	OperationRejected Counter
	AccessDenied      Counter
	TransferFailures  Counter
	StoreErrors       Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		Initialized: factory.Counter("factor.marketplace.initialized"),

		InvoiceMinted:   factory.Counter("factor.invoice.minted"),
		InvoiceVerified: factory.Counter("factor.invoice.verified"),
		InvoiceListed:   factory.Counter("factor.invoice.listed"),
		InvoiceSold:     factory.Counter("factor.invoice.sold"),
		InvoiceSettled:  factory.Counter("factor.invoice.settled"),
		InvoiceDue:      factory.Counter("factor.invoice.due"),
		InvoiceAmount:   factory.Histogram("factor.invoice.amount"),

		ListingPrice:  factory.Histogram("factor.listing.price"),
		SaleVolume:    factory.Histogram("factor.sale.volume"),
		SaleDiscount:  factory.Histogram("factor.sale.discount_ratio"),
		SettledVolume: factory.Histogram("factor.settlement.volume"),

		Deposits:      factory.Counter("factor.balance.deposits"),
		DepositVolume: factory.Histogram("factor.balance.deposit_volume"),

		OperationRejected: factory.Counter("factor.operation.rejected"),
		AccessDenied:      factory.Counter("factor.access.denied"),
		TransferFailures:  factory.Counter("factor.payment.failures"),
		StoreErrors:       factory.Counter("factor.store.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// OnInitialized implements plugin.OnInitialized.
func (m *MetricsExtension) OnInitialized(_ context.Context, _ types.Address) error {
	m.Initialized.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceMinted implements plugin.OnInvoiceMinted.
func (m *MetricsExtension) OnInvoiceMinted(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceMinted.Inc()
	m.InvoiceAmount.Observe(display(inv.Amount))
	return nil
}

// OnInvoiceVerified implements plugin.OnInvoiceVerified.
func (m *MetricsExtension) OnInvoiceVerified(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceVerified.Inc()
	return nil
}

// OnInvoiceListed implements plugin.OnInvoiceListed.
func (m *MetricsExtension) OnInvoiceListed(_ context.Context, _ *invoice.Invoice, l *listing.Listing) error {
	m.InvoiceListed.Inc()
	m.ListingPrice.Observe(display(l.Price))
	return nil
}

// OnInvoiceSold implements plugin.OnInvoiceSold.
func (m *MetricsExtension) OnInvoiceSold(_ context.Context, inv *invoice.Invoice, sold *listing.Listing) error {
	m.InvoiceSold.Inc()
	m.SaleVolume.Observe(display(sold.Price))
	if inv.Amount.IsPositive() {
		ratio := sold.Price.Decimal().Div(inv.Amount.Decimal())
		m.SaleDiscount.Observe(ratio.InexactFloat64())
	}
	return nil
}

// OnInvoiceSettled implements plugin.OnInvoiceSettled.
func (m *MetricsExtension) OnInvoiceSettled(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceSettled.Inc()
	m.SettledVolume.Observe(display(inv.Amount))
	return nil
}

// OnInvoiceDue implements plugin.OnInvoiceDue.
func (m *MetricsExtension) OnInvoiceDue(_ context.Context, _ *invoice.Invoice) error {
	m.InvoiceDue.Inc()
	return nil
}

// OnDeposited implements plugin.OnDeposited.
func (m *MetricsExtension) OnDeposited(_ context.Context, _, _ types.Address, _ payment.Token, amount types.Amount) error {
	m.Deposits.Inc()
	m.DepositVolume.Observe(display(amount))
	return nil
}

// ──────────────────────────────────────────────────
// Rejections
// ──────────────────────────────────────────────────

// OnOperationFailed implements plugin.OnOperationFailed.
func (m *MetricsExtension) OnOperationFailed(_ context.Context, _ event.Name, _ uint64, _ types.Address, err error) error {
	m.OperationRejected.Inc()
	switch factor.Code(err) {
	case factor.CodeUnauthorized:
		m.AccessDenied.Inc()
	case factor.CodeTransferFailed:
		m.TransferFailures.Inc()
	case factor.CodeInternal:
		m.StoreErrors.Inc()
	}
	return nil
}

func display(a types.Amount) float64 {
	return a.Decimal().Shift(-types.Decimals).InexactFloat64()
}
