package mongo

import (
	"time"

	"github.com/xraph/factor/id"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/types"
)

// Amounts are stored as base-unit decimal strings.

// ==================== State models ====================

const stateID = "state"

type stateModel struct {
	ID            string    `bson:"_id"`
	Admin         string    `bson:"admin"`
	Counter       int64     `bson:"counter"`
	InitializedAt time.Time `bson:"initialized_at"`
}

func fromStateModel(m *stateModel) *store.State {
	return &store.State{
		Admin:         types.Address(m.Admin),
		Counter:       uint64(m.Counter),
		InitializedAt: m.InitializedAt.UTC(),
	}
}

// ==================== Invoice models ====================

type invoiceModel struct {
	ID            int64      `bson:"_id"`
	Seller        string     `bson:"seller"`
	Buyer         string     `bson:"buyer"`
	Amount        string     `bson:"amount"`
	DueDate       time.Time  `bson:"due_date"`
	Status        string     `bson:"status"`
	VerifiedAt    *time.Time `bson:"verified_at,omitempty"`
	ListingPrice  string     `bson:"listing_price"`
	CurrentHolder string     `bson:"current_holder"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	return &invoiceModel{
		ID:            int64(inv.ID),
		Seller:        string(inv.Seller),
		Buyer:         string(inv.Buyer),
		Amount:        inv.Amount.String(),
		DueDate:       inv.DueDate,
		Status:        string(inv.Status),
		VerifiedAt:    inv.VerifiedAt,
		ListingPrice:  inv.ListingPrice.String(),
		CurrentHolder: string(inv.CurrentHolder),
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	price, err := types.ParseAmount(m.ListingPrice)
	if err != nil {
		return nil, err
	}
	inv := &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:            uint64(m.ID),
		Seller:        types.Address(m.Seller),
		Buyer:         types.Address(m.Buyer),
		Amount:        amount,
		DueDate:       m.DueDate.UTC(),
		Status:        invoice.Status(m.Status),
		ListingPrice:  price,
		CurrentHolder: types.Address(m.CurrentHolder),
	}
	if m.VerifiedAt != nil {
		t := m.VerifiedAt.UTC()
		inv.VerifiedAt = &t
	}
	return inv, nil
}

// ==================== Listing models ====================

type listingModel struct {
	InvoiceID int64     `bson:"_id"`
	Seller    string    `bson:"seller"`
	Price     string    `bson:"price"`
	ListedAt  time.Time `bson:"listed_at"`
}

func toListingModel(l *listing.Listing) *listingModel {
	return &listingModel{
		InvoiceID: int64(l.InvoiceID),
		Seller:    string(l.Seller),
		Price:     l.Price.String(),
		ListedAt:  l.ListedAt,
	}
}

func fromListingModel(m *listingModel) (*listing.Listing, error) {
	price, err := types.ParseAmount(m.Price)
	if err != nil {
		return nil, err
	}
	return &listing.Listing{
		InvoiceID: uint64(m.InvoiceID),
		Seller:    types.Address(m.Seller),
		Price:     price,
		ListedAt:  m.ListedAt.UTC(),
	}, nil
}

// ==================== Payment models ====================

type balanceModel struct {
	Token  string `bson:"token"`
	Owner  string `bson:"owner"`
	Amount string `bson:"amount"`
}

type transferModel struct {
	ID        string    `bson:"_id"`
	Token     string    `bson:"token"`
	From      string    `bson:"from"`
	To        string    `bson:"to"`
	Amount    string    `bson:"amount"`
	CreatedAt time.Time `bson:"created_at"`
}

func toTransferModel(t *payment.Transfer) *transferModel {
	return &transferModel{
		ID:        t.ID.String(),
		Token:     string(t.Token),
		From:      string(t.From),
		To:        string(t.To),
		Amount:    t.Amount.String(),
		CreatedAt: t.CreatedAt,
	}
}

func fromTransferModel(m *transferModel) (*payment.Transfer, error) {
	transferID, err := id.ParseTransferID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(m.Amount)
	if err != nil {
		return nil, err
	}
	return &payment.Transfer{
		ID:        transferID,
		Token:     payment.Token(m.Token),
		From:      types.Address(m.From),
		To:        types.Address(m.To),
		Amount:    amount,
		CreatedAt: m.CreatedAt.UTC(),
	}, nil
}

// ==================== Nonce models ====================

type nonceModel struct {
	ID        string    `bson:"_id"`
	Signer    string    `bson:"signer"`
	Nonce     string    `bson:"nonce"`
	UsedAt    time.Time `bson:"used_at"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// toNonceModel keys the document by signer and nonce. Addresses never
// contain "/", so the first one separates the two.
func toNonceModel(n *store.Nonce) *nonceModel {
	return &nonceModel{
		ID:        string(n.Signer) + "/" + n.Value,
		Signer:    string(n.Signer),
		Nonce:     n.Value,
		UsedAt:    n.UsedAt,
		ExpiresAt: n.ExpiresAt,
	}
}
