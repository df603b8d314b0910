package postgres

import (
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/factor/id"
	"github.com/xraph/factor/invoice"
	"github.com/xraph/factor/listing"
	"github.com/xraph/factor/payment"
	"github.com/xraph/factor/types"
)

// Amounts travel as text so that NUMERIC(39,0) values never pass through
// a float.

// ==================== Invoice models ====================

const invoiceColumns = `id, seller, buyer, amount::text, due_date, status, verified_at,
    listing_price::text, current_holder, created_at, updated_at`

type invoiceModel struct {
	ID            int64
	Seller        string
	Buyer         string
	Amount        string
	DueDate       time.Time
	Status        string
	VerifiedAt    *time.Time
	ListingPrice  string
	CurrentHolder string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func scanInvoice(row pgx.Row) (*invoice.Invoice, error) {
	var m invoiceModel
	if err := row.Scan(
		&m.ID, &m.Seller, &m.Buyer, &m.Amount, &m.DueDate, &m.Status, &m.VerifiedAt,
		&m.ListingPrice, &m.CurrentHolder, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return fromInvoiceModel(&m)
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
	var verifiedAt *time.Time
	if m.VerifiedAt != nil {
		t := m.VerifiedAt.UTC()
		verifiedAt = &t
	}
	return &invoice.Invoice{
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
		VerifiedAt:    verifiedAt,
		ListingPrice:  price,
		CurrentHolder: types.Address(m.CurrentHolder),
	}, nil
}

func collectInvoices(rows pgx.Rows) ([]*invoice.Invoice, error) {
	defer rows.Close()

	result := []*invoice.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

// ==================== Listing models ====================

const listingColumns = `invoice_id, seller, price::text, listed_at`

func scanListing(row pgx.Row) (*listing.Listing, error) {
	var (
		invoiceID int64
		seller    string
		price     string
		listedAt  time.Time
	)
	if err := row.Scan(&invoiceID, &seller, &price, &listedAt); err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(price)
	if err != nil {
		return nil, err
	}
	return &listing.Listing{
		InvoiceID: uint64(invoiceID),
		Seller:    types.Address(seller),
		Price:     amount,
		ListedAt:  listedAt.UTC(),
	}, nil
}

// ==================== Transfer models ====================

const transferColumns = `id, token, from_addr, to_addr, amount::text, created_at`

func scanTransfer(row pgx.Row) (*payment.Transfer, error) {
	var (
		rawID, token, from, to, amount string
		createdAt                      time.Time
	)
	if err := row.Scan(&rawID, &token, &from, &to, &amount, &createdAt); err != nil {
		return nil, err
	}
	transferID, err := id.ParseTransferID(rawID)
	if err != nil {
		return nil, err
	}
	value, err := types.ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	return &payment.Transfer{
		ID:        transferID,
		Token:     payment.Token(token),
		From:      types.Address(from),
		To:        types.Address(to),
		Amount:    value,
		CreatedAt: createdAt.UTC(),
	}, nil
}
