package factor

import (
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/types"
)

// Re-export common types for convenience so users don't have to import
// the leaf packages.

type (
	Address = types.Address
	Amount  = types.Amount
	Invoice = invoice.Invoice
	Status  = invoice.Status
	Listing = listing.Listing
	Token   = payment.Token
)

// Re-export Amount constructors.
var (
	NewAmount        = types.NewAmount
	ZeroAmount       = types.ZeroAmount
	ParseAmount      = types.ParseAmount
	ParseDisplay     = types.ParseDisplay
	MustParseDisplay = types.MustParseDisplay
)

// Re-export lifecycle statuses.
const (
	StatusPending  = invoice.StatusPending
	StatusVerified = invoice.StatusVerified
	StatusListed   = invoice.StatusListed
	StatusSold     = invoice.StatusSold
	StatusSettled  = invoice.StatusSettled
)
