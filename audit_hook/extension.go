// Package audithook bridges marketplace events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xraph/factor"
	"github.com/xraph/factor/event"
	"github.com/xraph/factor/id"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/plugin"
	"github.com/xraph/factor/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnInitialized     = (*Extension)(nil)
	_ plugin.OnInvoiceMinted   = (*Extension)(nil)
	_ plugin.OnInvoiceVerified = (*Extension)(nil)
	_ plugin.OnInvoiceListed   = (*Extension)(nil)
	_ plugin.OnInvoiceSold     = (*Extension)(nil)
	_ plugin.OnInvoiceSettled  = (*Extension)(nil)
	_ plugin.OnInvoiceDue      = (*Extension)(nil)
	_ plugin.OnDeposited       = (*Extension)(nil)
	_ plugin.OnOperationFailed = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	ID         id.AuditID     `json:"id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges marketplace events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
	clock    func() time.Time
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
		clock:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Marketplace hooks
// ──────────────────────────────────────────────────

// OnInitialized implements plugin.OnInitialized.
func (e *Extension) OnInitialized(ctx context.Context, admin types.Address) error {
	return e.record(ctx, ActionMarketplaceInitialized, SeverityInfo, OutcomeSuccess,
		ResourceMarketplace, "", CategoryLifecycle, admin, nil,
		"admin", string(admin),
	)
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceMinted implements plugin.OnInvoiceMinted.
func (e *Extension) OnInvoiceMinted(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceMinted, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, invoiceRef(inv.ID), CategoryLifecycle, inv.Seller, nil,
		"buyer", string(inv.Buyer),
		"amount", inv.Amount.String(),
		"due_date", inv.DueDate.Format(time.RFC3339),
	)
}

// OnInvoiceVerified implements plugin.OnInvoiceVerified.
func (e *Extension) OnInvoiceVerified(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceVerified, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, invoiceRef(inv.ID), CategoryLifecycle, inv.Buyer, nil,
		"seller", string(inv.Seller),
	)
}

// OnInvoiceListed implements plugin.OnInvoiceListed.
func (e *Extension) OnInvoiceListed(ctx context.Context, inv *invoice.Invoice, l *listing.Listing) error {
	return e.record(ctx, ActionInvoiceListed, SeverityInfo, OutcomeSuccess,
		ResourceListing, invoiceRef(inv.ID), CategoryTrading, l.Seller, nil,
		"price", l.Price.String(),
		"amount", inv.Amount.String(),
	)
}

// OnInvoiceSold implements plugin.OnInvoiceSold.
func (e *Extension) OnInvoiceSold(ctx context.Context, inv *invoice.Invoice, sold *listing.Listing) error {
	return e.record(ctx, ActionInvoiceSold, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, invoiceRef(inv.ID), CategoryTrading, inv.CurrentHolder, nil,
		"seller", string(sold.Seller),
		"price", sold.Price.String(),
	)
}

// OnInvoiceSettled implements plugin.OnInvoiceSettled.
func (e *Extension) OnInvoiceSettled(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceSettled, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, invoiceRef(inv.ID), CategoryPayment, inv.Buyer, nil,
		"holder", string(inv.CurrentHolder),
		"amount", inv.Amount.String(),
	)
}

// OnInvoiceDue implements plugin.OnInvoiceDue.
func (e *Extension) OnInvoiceDue(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceDue, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, invoiceRef(inv.ID), CategoryPayment, "", nil,
		"buyer", string(inv.Buyer),
		"holder", string(inv.CurrentHolder),
		"status", inv.Status.String(),
	)
}

// OnDeposited implements plugin.OnDeposited.
func (e *Extension) OnDeposited(ctx context.Context, admin, owner types.Address, token payment.Token, amount types.Amount) error {
	return e.record(ctx, ActionBalanceDeposited, SeverityInfo, OutcomeSuccess,
		ResourceBalance, string(owner), CategoryPayment, admin, nil,
		"token", token.String(),
		"amount", amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Rejections
// ──────────────────────────────────────────────────

// OnOperationFailed implements plugin.OnOperationFailed. Identity failures
// are recorded as access denials and payment failures as errors.
func (e *Extension) OnOperationFailed(ctx context.Context, op event.Name, invoiceID uint64, caller types.Address, opErr error) error {
	action, severity, category := ActionOperationRejected, SeverityInfo, CategoryLifecycle
	switch {
	case factor.IsUnauthorized(opErr):
		action, severity, category = ActionAccessDenied, SeverityWarning, CategoryAccess
	case factor.IsTransferFailure(opErr):
		action, severity, category = ActionPaymentFailed, SeverityError, CategoryPayment
	case factor.Code(opErr) == factor.CodeInternal:
		severity = SeverityError
	}

	resourceID := ""
	if invoiceID != 0 {
		resourceID = invoiceRef(invoiceID)
	}

	return e.record(ctx, action, severity, OutcomeFailure,
		ResourceInvoice, resourceID, category, caller, opErr,
		"operation", string(op),
		"code", factor.Code(opErr),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func invoiceRef(invoiceID uint64) string {
	return strconv.FormatUint(invoiceID, 10)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	actor types.Address,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		ID:         id.NewAuditID(),
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Actor:      string(actor),
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
		Timestamp:  e.clock(),
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
