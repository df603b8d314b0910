package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/store/memory"
	"github.com/xraph/factor/types"
)

const usdc = payment.Token("USDC")

func newBook(t *testing.T) (*payment.Book, *memory.Store) {
	t.Helper()
	st := memory.New()
	now := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	return payment.NewBook(st, payment.WithBookClock(func() time.Time { return now })), st
}

func TestBookTransfer(t *testing.T) {
	book, _ := newBook(t)
	ctx := context.Background()

	require.NoError(t, book.Deposit(ctx, usdc, "alice", types.NewAmount(500)))
	require.NoError(t, book.Transfer(ctx, usdc, "alice", "bob", types.NewAmount(200)))

	alice, err := book.Balance(ctx, usdc, "alice")
	require.NoError(t, err)
	bob, err := book.Balance(ctx, usdc, "bob")
	require.NoError(t, err)
	assert.True(t, alice.Equal(types.NewAmount(300)))
	assert.True(t, bob.Equal(types.NewAmount(200)))

	history, err := book.History(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.Address(""), history[0].From, "deposit has no sender")
	assert.Equal(t, types.Address("bob"), history[1].To)
	assert.False(t, history[1].ID.IsNil())
}

func TestBookTransferRejections(t *testing.T) {
	book, _ := newBook(t)
	ctx := context.Background()
	require.NoError(t, book.Deposit(ctx, usdc, "alice", types.NewAmount(100)))

	tests := []struct {
		name   string
		token  payment.Token
		from   types.Address
		to     types.Address
		amount types.Amount
		want   error
	}{
		{"insufficient", usdc, "alice", "bob", types.NewAmount(101), payment.ErrInsufficientBalance},
		{"unknown sender", usdc, "carol", "bob", types.NewAmount(1), payment.ErrInsufficientBalance},
		{"other token", "EURC", "alice", "bob", types.NewAmount(1), payment.ErrInsufficientBalance},
		{"zero amount", usdc, "alice", "bob", types.ZeroAmount(), payment.ErrInvalidAmount},
		{"no token", "", "alice", "bob", types.NewAmount(1), payment.ErrInvalidToken},
		{"self", usdc, "alice", "alice", types.NewAmount(1), payment.ErrSelfTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := book.Transfer(ctx, tt.token, tt.from, tt.to, tt.amount)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	alice, err := book.Balance(ctx, usdc, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Equal(types.NewAmount(100)), "failed transfers must not move funds")

	history, err := book.History(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestBookTransferJoinsOuterTransaction(t *testing.T) {
	book, st := newBook(t)
	ctx := context.Background()
	require.NoError(t, book.Deposit(ctx, usdc, "alice", types.NewAmount(100)))

	abort := errors.New("abort")
	err := st.WithTx(ctx, func(ctx context.Context) error {
		if err := book.Transfer(ctx, usdc, "alice", "bob", types.NewAmount(60)); err != nil {
			return err
		}
		return abort
	})
	assert.Equal(t, abort, err)

	alice, err := book.Balance(ctx, usdc, "alice")
	require.NoError(t, err)
	assert.True(t, alice.Equal(types.NewAmount(100)))
	bob, err := book.Balance(ctx, usdc, "bob")
	require.NoError(t, err)
	assert.True(t, bob.IsZero())
}

func TestTransfererFunc(t *testing.T) {
	var got types.Amount
	tr := payment.TransfererFunc(func(_ context.Context, _ payment.Token, _, _ types.Address, amount types.Amount) error {
		got = amount
		return nil
	})

	require.NoError(t, tr.Transfer(context.Background(), usdc, "a", "b", types.NewAmount(7)))
	assert.True(t, got.Equal(types.NewAmount(7)))
}
