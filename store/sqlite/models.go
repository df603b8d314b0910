package sqlite

import (
	"database/sql"
	"time"

	"github.com/xraph/factor/id"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/store"
	"github.com/xraph/factor/types"
)

func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// ==================== State models ====================

type stateModel struct {
	Admin         string `db:"admin"`
	Counter       int64  `db:"counter"`
	InitializedAt int64  `db:"initialized_at"`
}

// ==================== Invoice models ====================

type invoiceModel struct {
	ID            int64         `db:"id"`
	Seller        string        `db:"seller"`
	Buyer         string        `db:"buyer"`
	Amount        string        `db:"amount"`
	DueDate       int64         `db:"due_date"`
	Status        string        `db:"status"`
	VerifiedAt    sql.NullInt64 `db:"verified_at"`
	ListingPrice  string        `db:"listing_price"`
	CurrentHolder string        `db:"current_holder"`
	CreatedAt     int64         `db:"created_at"`
	UpdatedAt     int64         `db:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	m := &invoiceModel{
		ID:            int64(inv.ID),
		Seller:        string(inv.Seller),
		Buyer:         string(inv.Buyer),
		Amount:        inv.Amount.String(),
		DueDate:       toNanos(inv.DueDate),
		Status:        string(inv.Status),
		ListingPrice:  inv.ListingPrice.String(),
		CurrentHolder: string(inv.CurrentHolder),
		CreatedAt:     toNanos(inv.CreatedAt),
		UpdatedAt:     toNanos(inv.UpdatedAt),
	}
	if inv.VerifiedAt != nil {
		m.VerifiedAt = sql.NullInt64{Int64: toNanos(*inv.VerifiedAt), Valid: true}
	}
	return m
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
			CreatedAt: fromNanos(m.CreatedAt),
			UpdatedAt: fromNanos(m.UpdatedAt),
		},
		ID:            uint64(m.ID),
		Seller:        types.Address(m.Seller),
		Buyer:         types.Address(m.Buyer),
		Amount:        amount,
		DueDate:       fromNanos(m.DueDate),
		Status:        invoice.Status(m.Status),
		ListingPrice:  price,
		CurrentHolder: types.Address(m.CurrentHolder),
	}
	if m.VerifiedAt.Valid {
		t := fromNanos(m.VerifiedAt.Int64)
		inv.VerifiedAt = &t
	}
	return inv, nil
}

func fromInvoiceModels(models []invoiceModel) ([]*invoice.Invoice, error) {
	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

// ==================== Listing models ====================

type listingModel struct {
	InvoiceID int64  `db:"invoice_id"`
	Seller    string `db:"seller"`
	Price     string `db:"price"`
	ListedAt  int64  `db:"listed_at"`
}

func toListingModel(l *listing.Listing) *listingModel {
	return &listingModel{
		InvoiceID: int64(l.InvoiceID),
		Seller:    string(l.Seller),
		Price:     l.Price.String(),
		ListedAt:  toNanos(l.ListedAt),
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
		ListedAt:  fromNanos(m.ListedAt),
	}, nil
}

// ==================== Transfer models ====================

type transferModel struct {
	ID        string `db:"id"`
	Token     string `db:"token"`
	From      string `db:"from_addr"`
	To        string `db:"to_addr"`
	Amount    string `db:"amount"`
	CreatedAt int64  `db:"created_at"`
}

func toTransferModel(t *payment.Transfer) *transferModel {
	return &transferModel{
		ID:        t.ID.String(),
		Token:     string(t.Token),
		From:      string(t.From),
		To:        string(t.To),
		Amount:    t.Amount.String(),
		CreatedAt: toNanos(t.CreatedAt),
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
		CreatedAt: fromNanos(m.CreatedAt),
	}, nil
}

// ==================== Nonce models ====================

type nonceModel struct {
	Signer    string `db:"signer"`
	Nonce     string `db:"nonce"`
	UsedAt    int64  `db:"used_at"`
	ExpiresAt int64  `db:"expires_at"`
}

func toNonceModel(n *store.Nonce) *nonceModel {
	return &nonceModel{
		Signer:    string(n.Signer),
		Nonce:     n.Value,
		UsedAt:    toNanos(n.UsedAt),
		ExpiresAt: toNanos(n.ExpiresAt),
	}
}
