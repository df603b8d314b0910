// Package scheduler runs the due-date watcher: a periodic job that
// announces each Sold invoice once its due date has passed.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-co-op/gocron/v2"

	"github.com/xraph/factor/invoice"
)

// DefaultInterval is how often the watcher scans when no interval is set.
const DefaultInterval = time.Minute

// Engine is the part of factor.Engine the watcher drives.
type Engine interface {
	DueInvoices(ctx context.Context) ([]*invoice.Invoice, error)
	AnnounceDue(ctx context.Context, inv *invoice.Invoice)
}

// Watcher announces every due invoice exactly once per process. An
// invoice that leaves the due set (settled) is forgotten.
type Watcher struct {
	engine   Engine
	interval time.Duration
	logger   *slog.Logger

	scheduler gocron.Scheduler

	mu        sync.Mutex
	announced map[uint64]struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithInterval sets the scan interval.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// New creates a Watcher for engine. It does not start scanning until Start.
func New(engine Engine, opts ...Option) *Watcher {
	w := &Watcher{
		engine:    engine,
		interval:  DefaultInterval,
		logger:    slog.Default(),
		announced: make(map[uint64]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Scan announces every due invoice not announced before and returns how
// many it announced.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	due, err := w.engine.DueInvoices(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "scheduler: list due invoices")
	}

	w.mu.Lock()
	current := make(map[uint64]struct{}, len(due))
	fresh := make([]*invoice.Invoice, 0, len(due))
	for _, inv := range due {
		current[inv.ID] = struct{}{}
		if _, seen := w.announced[inv.ID]; !seen {
			fresh = append(fresh, inv)
		}
	}
	w.announced = current
	w.mu.Unlock()

	for _, inv := range fresh {
		w.engine.AnnounceDue(ctx, inv)
	}
	return len(fresh), nil
}

// Start schedules Scan every interval, beginning immediately.
func (w *Watcher) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, "scheduler: create")
	}

	_, err = s.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(w.run, ctx),
		gocron.WithName("factor-due-watcher"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return errors.Wrap(err, "scheduler: register due watcher")
	}

	w.scheduler = s
	s.Start()

	w.logger.Info("due watcher started", "interval", w.interval)
	return nil
}

// Stop shuts the scheduler down, waiting for a running scan to finish.
func (w *Watcher) Stop() error {
	if w.scheduler == nil {
		return nil
	}
	err := w.scheduler.Shutdown()
	w.scheduler = nil
	w.logger.Info("due watcher stopped")
	return err
}

func (w *Watcher) run(ctx context.Context) {
	n, err := w.Scan(ctx)
	if err != nil {
		w.logger.Error("due scan failed", "error", err)
		return
	}
	if n > 0 {
		w.logger.Debug("due scan finished", "announced", n)
	}
}
