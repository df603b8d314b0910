package payment

import (
	"context"

	"github.com/xraph/factor/types"
)

// Store persists balances and the transfer journal. WithTx must join an
// enclosing transaction already carried by ctx.
type Store interface {
	GetBalance(ctx context.Context, token Token, owner types.Address) (types.Amount, error)
	SetBalance(ctx context.Context, token Token, owner types.Address, amount types.Amount) error
	RecordTransfer(ctx context.Context, t *Transfer) error
	ListTransfers(ctx context.Context, owner types.Address) ([]*Transfer, error)
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
