// Package payment defines the value-transfer capability the marketplace
// depends on, plus Book, a token ledger that implements it on top of the
// same transactional store as invoices.
package payment

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/xraph/factor/id"
	"github.com/xraph/factor/types"
)

var (
	ErrInsufficientBalance = errors.New("payment: insufficient balance")
	ErrInvalidAmount       = errors.New("payment: amount must be positive")
	ErrInvalidToken        = errors.New("payment: token is required")
	ErrSelfTransfer        = errors.New("payment: sender and recipient are the same")
)

// Token names the settlement asset a transfer moves.
type Token string

// String implements fmt.Stringer.
func (t Token) String() string { return string(t) }

// Transferer atomically moves amount of token from one address to another.
// It must fail, and leave no trace, when the sender cannot cover amount.
type Transferer interface {
	Transfer(ctx context.Context, token Token, from, to types.Address, amount types.Amount) error
}

// Depositor is a Transferer that can also credit balances from outside the
// marketplace and report them. Book implements it; collaborators backed by
// an external token contract usually do not.
type Depositor interface {
	Transferer
	Deposit(ctx context.Context, token Token, owner types.Address, amount types.Amount) error
	Balance(ctx context.Context, token Token, owner types.Address) (types.Amount, error)
}

// TransfererFunc adapts a plain function to a Transferer.
type TransfererFunc func(ctx context.Context, token Token, from, to types.Address, amount types.Amount) error

// Transfer implements Transferer.
func (f TransfererFunc) Transfer(ctx context.Context, token Token, from, to types.Address, amount types.Amount) error {
	return f(ctx, token, from, to, amount)
}

// Transfer is the journal record of one completed movement of value.
// Deposits have an empty From.
type Transfer struct {
	ID        id.TransferID `json:"id"`
	Token     Token         `json:"token"`
	From      types.Address `json:"from,omitempty"`
	To        types.Address `json:"to"`
	Amount    types.Amount  `json:"amount"`
	CreatedAt time.Time     `json:"created_at"`
}
