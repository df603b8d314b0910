// Package event describes the notifications the marketplace publishes
// after each committed operation. Events are advisory: delivering them
// never changes the outcome of the operation that produced them.
package event

import (
	"time"

	"github.com/xraph/factor/id"
	"github.com/xraph/factor/types"
)

// Name tags an event with the operation that produced it.
type Name string

const (
	NameInit   Name = "init"
	NameMint   Name = "mint"
	NameVerify Name = "verify"
	NameList   Name = "list"
	NameBuy    Name = "buy"
	NameSettle Name = "settle"
	NameDue    Name = "due"

	NameDeposit Name = "deposit"
)

// Event carries the caller and the key outputs of one operation.
// Fields that do not apply to the operation are left nil.
type Event struct {
	ID        id.EventID    `json:"id"`
	Name      Name          `json:"name"`
	Caller    types.Address `json:"caller"`
	InvoiceID uint64        `json:"invoice_id,omitempty"`
	Amount    *types.Amount `json:"amount,omitempty"`
	Price     *types.Amount `json:"price,omitempty"`
	DueDate   *time.Time    `json:"due_date,omitempty"`
	Account   types.Address `json:"account,omitempty"`
	Token     string        `json:"token,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// New creates an event stamped at ts.
func New(name Name, caller types.Address, invoiceID uint64, ts time.Time) *Event {
	return &Event{
		ID:        id.NewEventID(),
		Name:      name,
		Caller:    caller,
		InvoiceID: invoiceID,
		Timestamp: ts,
	}
}

// WithAmount sets the amount carried by mint and settle events.
func (e *Event) WithAmount(a types.Amount) *Event {
	e.Amount = &a
	return e
}

// WithPrice sets the price carried by list and buy events.
func (e *Event) WithPrice(p types.Amount) *Event {
	e.Price = &p
	return e
}

// WithDueDate sets the due date carried by mint events.
func (e *Event) WithDueDate(d time.Time) *Event {
	e.DueDate = &d
	return e
}

// WithAccount sets the credited account and token carried by deposit
// events.
func (e *Event) WithAccount(owner types.Address, token string) *Event {
	e.Account = owner
	e.Token = token
	return e
}

// Clone returns a deep copy of e.
func (e *Event) Clone() *Event {
	c := *e
	if e.Amount != nil {
		a := *e.Amount
		c.Amount = &a
	}
	if e.Price != nil {
		p := *e.Price
		c.Price = &p
	}
	if e.DueDate != nil {
		d := *e.DueDate
		c.DueDate = &d
	}
	return &c
}

// Topic returns the routing key used by message-bus publishers.
func (e *Event) Topic(prefix string) string {
	if prefix == "" {
		return "invoice." + string(e.Name)
	}
	return prefix + "." + string(e.Name)
}
