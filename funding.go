package factor

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/xraph/factor/event"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/types"
)

// Deposit credits amount of token to owner. Only the marketplace admin may
// deposit, and only when the payment collaborator keeps balances itself
// (payment.Depositor); otherwise it fails with ErrNotSupported.
func (e *Engine) Deposit(ctx context.Context, admin types.Address, token payment.Token, owner types.Address, amount types.Amount) error {
	if err := e.requireAuth(ctx, admin); err != nil {
		return e.failed(ctx, event.NameDeposit, 0, admin, err)
	}
	dep, ok := e.transfer.(payment.Depositor)
	if !ok {
		return e.failed(ctx, event.NameDeposit, 0, admin, ErrNotSupported)
	}
	if err := validateDeposit(token, owner, amount); err != nil {
		return e.failed(ctx, event.NameDeposit, 0, admin, err)
	}

	now := e.clock()
	err := e.store.WithTx(ctx, func(ctx context.Context) error {
		st, err := e.store.GetState(ctx)
		if err != nil {
			return err
		}
		if st.Admin != admin {
			return ErrNotAdmin
		}
		if err := e.redeem(ctx, admin, now); err != nil {
			return err
		}
		return dep.Deposit(ctx, token, owner, amount)
	})
	if err != nil {
		return e.failed(ctx, event.NameDeposit, 0, admin, err)
	}

	e.logger.Info("balance deposited",
		"admin", admin,
		"owner", owner,
		"token", token,
		"amount", amount.String(),
	)

	e.plugins.EmitDeposited(ctx, admin, owner, token, amount)
	e.plugins.EmitEvent(ctx, event.New(event.NameDeposit, admin, 0, now).
		WithAmount(amount).
		WithAccount(owner, token.String()))
	return nil
}

// Balance returns owner's holding of token as kept by the payment
// collaborator.
func (e *Engine) Balance(ctx context.Context, token payment.Token, owner types.Address) (types.Amount, error) {
	dep, ok := e.transfer.(payment.Depositor)
	if !ok {
		return types.Amount{}, ErrNotSupported
	}
	if token == "" {
		return types.Amount{}, invalid("token", "must not be empty")
	}
	if owner.IsZero() {
		return types.Amount{}, invalid("owner", "must not be empty")
	}
	bal, err := dep.Balance(ctx, token, owner)
	if err != nil {
		return types.Amount{}, errors.Wrap(err, "factor: balance")
	}
	return bal, nil
}

func validateDeposit(token payment.Token, owner types.Address, amount types.Amount) error {
	if token == "" {
		return invalid("token", "must not be empty")
	}
	if owner.IsZero() {
		return invalid("owner", "must not be empty")
	}
	if !amount.IsPositive() {
		return invalid("amount", "must be positive")
	}
	return nil
}
