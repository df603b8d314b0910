package factor

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/xraph/factor/auth"
	"github.com/xraph/factor/event"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/plugin"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/types"
)

// Engine is the invoice-factoring marketplace. Every mutating method runs
// as one store transaction: it commits in full or leaves no trace.
type Engine struct {
	store    store.Store
	auth     auth.Authorizer
	transfer payment.Transferer
	plugins  *plugin.Registry
	logger   *slog.Logger
	clock    func() time.Time
}

// New creates a new Engine backed by s.
//
// Defaults: identities are checked against the signer set carried by the
// context (auth.ContextAuthorizer), payments move through a payment.Book
// kept in s, and the clock is wall time truncated to seconds.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		auth:    auth.ContextAuthorizer{},
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
		clock:   defaultClock,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.transfer == nil {
		e.transfer = payment.NewBook(s,
			payment.WithBookLogger(e.logger),
			payment.WithBookClock(e.clock),
		)
	}

	return e
}

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithAuthorizer sets the identity gate.
func WithAuthorizer(a auth.Authorizer) Option {
	return func(e *Engine) {
		e.auth = a
	}
}

// WithTransferer sets the payment collaborator used by Buy and Settle.
func WithTransferer(t payment.Transferer) Option {
	return func(e *Engine) {
		e.transfer = t
	}
}

// WithClock sets the ledger clock used for timestamps and due-date checks.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return errors.Mark(errors.Wrap(err, "factor: migrate"), ErrMigrationFailed)
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("factor engine started",
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Now returns the current ledger time.
func (e *Engine) Now() time.Time { return e.clock() }

// ──────────────────────────────────────────────────
// Initialization
// ──────────────────────────────────────────────────

// Initialize records admin and sets the invoice counter to zero. It fails
// with ErrAlreadyInitialized on every call after the first.
func (e *Engine) Initialize(ctx context.Context, admin types.Address) error {
	if admin.IsZero() {
		return e.failed(ctx, event.NameInit, 0, admin, invalid("admin", "must not be empty"))
	}

	now := e.clock()
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		_, err := e.store.GetState(ctx)
		if err == nil {
			return ErrAlreadyInitialized
		}
		if !errors.Is(err, ErrNotInitialized) {
			return err
		}
		return e.store.CreateState(ctx, &store.State{
			Admin:         admin,
			Counter:       0,
			InitializedAt: now,
		})
	})
	if err != nil {
		return e.failed(ctx, event.NameInit, 0, admin, err)
	}

	e.logger.Info("marketplace initialized", "admin", admin)

	e.plugins.EmitInitialized(ctx, admin)
	e.plugins.EmitEvent(ctx, event.New(event.NameInit, admin, 0, now))
	return nil
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// requireAuth runs the identity gate and marks its rejection as
// ErrUnauthorized.
func (e *Engine) requireAuth(ctx context.Context, identity types.Address) error {
	if err := e.auth.RequireAuth(ctx, identity); err != nil {
		return errors.Mark(err, ErrUnauthorized)
	}
	return nil
}

// redeem records the nonce identity signed the request with, so the same
// signed request cannot authorize a second operation. It runs inside the
// operation's transaction: a rejected operation leaves the nonce unused.
// Callers authorized without a credential have nothing to redeem.
func (e *Engine) redeem(ctx context.Context, identity types.Address, now time.Time) error {
	cred, ok := auth.CredentialFor(ctx, identity)
	if !ok {
		return nil
	}
	return e.store.UseNonce(ctx, &store.Nonce{
		Signer:    identity,
		Value:     cred.Nonce,
		UsedAt:    now,
		ExpiresAt: cred.ExpiresAt,
	})
}

// advance applies a lifecycle action to inv's status or rejects it.
func advance(inv *invoice.Invoice, a invoice.Action) (invoice.Status, error) {
	next, ok := invoice.Next(a, inv.Status)
	if !ok {
		return "", errors.WithDetailf(ErrInvalidStateTransition,
			"cannot %s invoice %d: status is %s, want %s", a, inv.ID, inv.Status, invoice.Requires(a))
	}
	return next, nil
}

// pay invokes the payment collaborator. The collaborator's error is
// returned unchanged apart from the ErrTransferFailed mark.
func (e *Engine) pay(ctx context.Context, token payment.Token, from, to types.Address, amount types.Amount) error {
	if err := e.transfer.Transfer(ctx, token, from, to, amount); err != nil {
		return errors.Mark(err, ErrTransferFailed)
	}
	return nil
}

// failed reports a rejected operation to plugins and returns err.
func (e *Engine) failed(ctx context.Context, op event.Name, invoiceID uint64, caller types.Address, err error) error {
	e.logger.Debug("operation rejected",
		"op", op,
		"invoice_id", invoiceID,
		"caller", caller,
		"code", Code(err),
		"error", err,
	)
	e.plugins.EmitOperationFailed(ctx, op, invoiceID, caller, err)
	return err
}
