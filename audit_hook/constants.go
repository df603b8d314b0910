package audithook

// Action constants for audit events.
const (
	// Marketplace actions
	ActionMarketplaceInitialized = "marketplace.initialized"

	// Invoice actions
	ActionInvoiceMinted   = "invoice.minted"
	ActionInvoiceVerified = "invoice.verified"
	ActionInvoiceListed   = "invoice.listed"
	ActionInvoiceSold     = "invoice.sold"
	ActionInvoiceSettled  = "invoice.settled"
	ActionInvoiceDue      = "invoice.due"

	// Balance actions
	ActionBalanceDeposited = "balance.deposited"

	// Rejections
	ActionOperationRejected = "operation.rejected"
	ActionAccessDenied      = "access.denied"
	ActionPaymentFailed     = "payment.failed"
)

// Resource constants for audit events.
const (
	ResourceMarketplace = "marketplace"
	ResourceInvoice     = "invoice"
	ResourceListing     = "listing"
	ResourceBalance     = "balance"
)

// Category constants for audit events.
const (
	CategoryLifecycle = "lifecycle"
	CategoryTrading   = "trading"
	CategoryPayment   = "payment"
	CategoryAccess    = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
