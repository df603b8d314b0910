package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/xraph/factor/event"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/types"
)

// DefaultTimeout bounds a single plugin hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit            []OnInit
	onShutdown        []OnShutdown
	onInitialized     []OnInitialized
	onInvoiceMinted   []OnInvoiceMinted
	onInvoiceVerified []OnInvoiceVerified
	onInvoiceListed   []OnInvoiceListed
	onInvoiceSold     []OnInvoiceSold
	onInvoiceSettled  []OnInvoiceSettled
	onInvoiceDue      []OnInvoiceDue
	onDeposited       []OnDeposited
	onFailed          []OnOperationFailed
	onEvent           []OnEvent
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook deadline.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnInitialized); ok {
		r.onInitialized = append(r.onInitialized, v)
	}
	if v, ok := p.(OnInvoiceMinted); ok {
		r.onInvoiceMinted = append(r.onInvoiceMinted, v)
	}
	if v, ok := p.(OnInvoiceVerified); ok {
		r.onInvoiceVerified = append(r.onInvoiceVerified, v)
	}
	if v, ok := p.(OnInvoiceListed); ok {
		r.onInvoiceListed = append(r.onInvoiceListed, v)
	}
	if v, ok := p.(OnInvoiceSold); ok {
		r.onInvoiceSold = append(r.onInvoiceSold, v)
	}
	if v, ok := p.(OnInvoiceSettled); ok {
		r.onInvoiceSettled = append(r.onInvoiceSettled, v)
	}
	if v, ok := p.(OnInvoiceDue); ok {
		r.onInvoiceDue = append(r.onInvoiceDue, v)
	}
	if v, ok := p.(OnDeposited); ok {
		r.onDeposited = append(r.onDeposited, v)
	}
	if v, ok := p.(OnOperationFailed); ok {
		r.onFailed = append(r.onFailed, v)
	}
	if v, ok := p.(OnEvent); ok {
		r.onEvent = append(r.onEvent, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// implementedInterfaces returns the hook names p implements.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	check := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	check(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	check(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	check(reflect.TypeOf((*OnInitialized)(nil)).Elem(), "OnInitialized")
	check(reflect.TypeOf((*OnInvoiceMinted)(nil)).Elem(), "OnInvoiceMinted")
	check(reflect.TypeOf((*OnInvoiceVerified)(nil)).Elem(), "OnInvoiceVerified")
	check(reflect.TypeOf((*OnInvoiceListed)(nil)).Elem(), "OnInvoiceListed")
	check(reflect.TypeOf((*OnInvoiceSold)(nil)).Elem(), "OnInvoiceSold")
	check(reflect.TypeOf((*OnInvoiceSettled)(nil)).Elem(), "OnInvoiceSettled")
	check(reflect.TypeOf((*OnInvoiceDue)(nil)).Elem(), "OnInvoiceDue")
	check(reflect.TypeOf((*OnDeposited)(nil)).Elem(), "OnDeposited")
	check(reflect.TypeOf((*OnOperationFailed)(nil)).Elem(), "OnOperationFailed")
	check(reflect.TypeOf((*OnEvent)(nil)).Elem(), "OnEvent")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitInitialized emits the marketplace initialized hook.
func (r *Registry) EmitInitialized(ctx context.Context, admin types.Address) {
	r.mu.RLock()
	plugins := r.onInitialized
	r.mu.RUnlock()

	emit(ctx, r, "OnInitialized", plugins, func(p OnInitialized) error {
		return p.OnInitialized(ctx, admin)
	})
}

// EmitInvoiceMinted emits an invoice minted hook.
func (r *Registry) EmitInvoiceMinted(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceMinted
	r.mu.RUnlock()

	emit(ctx, r, "OnInvoiceMinted", plugins, func(p OnInvoiceMinted) error {
		return p.OnInvoiceMinted(ctx, inv.Clone())
	})
}

// EmitInvoiceVerified emits an invoice verified hook.
func (r *Registry) EmitInvoiceVerified(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceVerified
	r.mu.RUnlock()

	emit(ctx, r, "OnInvoiceVerified", plugins, func(p OnInvoiceVerified) error {
		return p.OnInvoiceVerified(ctx, inv.Clone())
	})
}

// EmitInvoiceListed emits an invoice listed hook.
func (r *Registry) EmitInvoiceListed(ctx context.Context, inv *invoice.Invoice, l *listing.Listing) {
	r.mu.RLock()
	plugins := r.onInvoiceListed
	r.mu.RUnlock()

	emit(ctx, r, "OnInvoiceListed", plugins, func(p OnInvoiceListed) error {
		return p.OnInvoiceListed(ctx, inv.Clone(), l.Clone())
	})
}

// EmitInvoiceSold emits an invoice sold hook.
func (r *Registry) EmitInvoiceSold(ctx context.Context, inv *invoice.Invoice, sold *listing.Listing) {
	r.mu.RLock()
	plugins := r.onInvoiceSold
	r.mu.RUnlock()

	emit(ctx, r, "OnInvoiceSold", plugins, func(p OnInvoiceSold) error {
		return p.OnInvoiceSold(ctx, inv.Clone(), sold.Clone())
	})
}

// EmitInvoiceSettled emits an invoice settled hook.
func (r *Registry) EmitInvoiceSettled(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceSettled
	r.mu.RUnlock()

	emit(ctx, r, "OnInvoiceSettled", plugins, func(p OnInvoiceSettled) error {
		return p.OnInvoiceSettled(ctx, inv.Clone())
	})
}

// EmitInvoiceDue emits an invoice due hook.
func (r *Registry) EmitInvoiceDue(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceDue
	r.mu.RUnlock()

	emit(ctx, r, "OnInvoiceDue", plugins, func(p OnInvoiceDue) error {
		return p.OnInvoiceDue(ctx, inv.Clone())
	})
}

// EmitDeposited emits a deposit hook.
func (r *Registry) EmitDeposited(ctx context.Context, admin, owner types.Address, token payment.Token, amount types.Amount) {
	r.mu.RLock()
	plugins := r.onDeposited
	r.mu.RUnlock()

	emit(ctx, r, "OnDeposited", plugins, func(p OnDeposited) error {
		return p.OnDeposited(ctx, admin, owner, token, amount)
	})
}

// EmitOperationFailed emits a failed operation hook.
func (r *Registry) EmitOperationFailed(ctx context.Context, op event.Name, invoiceID uint64, caller types.Address, opErr error) {
	r.mu.RLock()
	plugins := r.onFailed
	r.mu.RUnlock()

	emit(ctx, r, "OnOperationFailed", plugins, func(p OnOperationFailed) error {
		return p.OnOperationFailed(ctx, op, invoiceID, caller, opErr)
	})
}

// EmitEvent delivers evt to every OnEvent plugin. Each plugin receives its
// own copy.
func (r *Registry) EmitEvent(ctx context.Context, evt *event.Event) {
	r.mu.RLock()
	plugins := r.onEvent
	r.mu.RUnlock()

	emit(ctx, r, "OnEvent", plugins, func(p OnEvent) error {
		return p.OnEvent(ctx, evt.Clone())
	})
}

// emit fans call out to plugins concurrently and waits for all of them.
// Failures are logged; nothing is returned to the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, call func(T) error) {
	if len(plugins) == 0 {
		return
	}

	var wg conc.WaitGroup
	for _, p := range plugins {
		wg.Go(func() {
			if err := r.callWithTimeout(ctx, p.Name(), func() error {
				return call(p)
			}); err != nil {
				r.logger.Warn("plugin "+hook+" failed",
					"plugin", p.Name(),
					"error", err,
				)
			}
		})
	}
	wg.Wait()
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the marketplace pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("plugin panic: %s: %v", pluginName, rec)
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
