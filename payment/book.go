package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/xraph/factor/id"
	"github.com/xraph/factor/types"
)

// Compile-time interface check.
var _ Depositor = (*Book)(nil)

// Book is a token ledger kept in the marketplace store. Because it writes
// through Store.WithTx, a transfer made inside an engine operation commits
// or rolls back together with the invoice changes.
type Book struct {
	store  Store
	clock  func() time.Time
	logger *slog.Logger
}

// BookOption configures a Book.
type BookOption func(*Book)

// WithBookLogger sets the logger.
func WithBookLogger(logger *slog.Logger) BookOption {
	return func(b *Book) { b.logger = logger }
}

// WithBookClock sets the clock used to stamp journal entries.
func WithBookClock(clock func() time.Time) BookOption {
	return func(b *Book) { b.clock = clock }
}

// NewBook creates a Book backed by s.
func NewBook(s Store, opts ...BookOption) *Book {
	b := &Book{
		store:  s,
		clock:  func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Transfer implements Transferer.
func (b *Book) Transfer(ctx context.Context, token Token, from, to types.Address, amount types.Amount) error {
	if err := validate(token, amount); err != nil {
		return err
	}
	if from == to {
		return ErrSelfTransfer
	}

	return b.store.WithTx(ctx, func(ctx context.Context) error {
		fromBal, err := b.store.GetBalance(ctx, token, from)
		if err != nil {
			return err
		}
		if fromBal.LessThan(amount) {
			return errors.WithDetailf(ErrInsufficientBalance,
				"%s holds %s %s, needs %s", from, fromBal, token, amount)
		}
		toBal, err := b.store.GetBalance(ctx, token, to)
		if err != nil {
			return err
		}

		if err := b.store.SetBalance(ctx, token, from, fromBal.Sub(amount)); err != nil {
			return err
		}
		if err := b.store.SetBalance(ctx, token, to, toBal.Add(amount)); err != nil {
			return err
		}
		return b.record(ctx, token, from, to, amount)
	})
}

// Deposit credits amount of token to owner out of thin air. It is meant for
// funding accounts from an external bridge or in tests.
func (b *Book) Deposit(ctx context.Context, token Token, owner types.Address, amount types.Amount) error {
	if err := validate(token, amount); err != nil {
		return err
	}

	return b.store.WithTx(ctx, func(ctx context.Context) error {
		bal, err := b.store.GetBalance(ctx, token, owner)
		if err != nil {
			return err
		}
		if err := b.store.SetBalance(ctx, token, owner, bal.Add(amount)); err != nil {
			return err
		}
		return b.record(ctx, token, "", owner, amount)
	})
}

// Balance returns owner's holding of token. Unknown owners hold zero.
func (b *Book) Balance(ctx context.Context, token Token, owner types.Address) (types.Amount, error) {
	return b.store.GetBalance(ctx, token, owner)
}

// History returns the journal entries that owner sent or received.
func (b *Book) History(ctx context.Context, owner types.Address) ([]*Transfer, error) {
	return b.store.ListTransfers(ctx, owner)
}

func (b *Book) record(ctx context.Context, token Token, from, to types.Address, amount types.Amount) error {
	t := &Transfer{
		ID:        id.NewTransferID(),
		Token:     token,
		From:      from,
		To:        to,
		Amount:    amount,
		CreatedAt: b.clock(),
	}
	if err := b.store.RecordTransfer(ctx, t); err != nil {
		return err
	}
	b.logger.Debug("payment recorded",
		"transfer_id", t.ID.String(),
		"token", token,
		"from", from,
		"to", to,
		"amount", amount.String(),
	)
	return nil
}

func validate(token Token, amount types.Amount) error {
	if token == "" {
		return ErrInvalidToken
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
