// Package id defines the TypeID identifiers factor gives to records that
// are not invoices: events, transfer receipts and audit records. Invoices
// keep their sequential integer ids.
//
// An ID renders as "prefix_suffix", e.g. "evt_01h2xcejqtf2nbrexx3vqjhp41".
// The suffix is UUIDv7-based, so ids of one kind sort by creation time to
// millisecond precision.
package id

import (
	"database/sql/driver"
	"fmt"

	"github.com/cockroachdb/errors"
	"go.jetify.com/typeid/v2"
)

// ErrInvalid marks every parse failure.
var ErrInvalid = errors.New("id: invalid")

// Prefix names the kind of record an ID belongs to.
type Prefix string

const (
	PrefixEvent    Prefix = "evt"
	PrefixTransfer Prefix = "xfer"
	PrefixAudit    Prefix = "aud"
)

// ID is a prefixed TypeID. The zero value is Nil and encodes as an empty
// string or SQL NULL.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	tid typeid.TypeID
	set bool
}

// Nil is the zero ID.
var Nil ID

// EventID, TransferID and AuditID document which prefix a field carries.
type (
	EventID    = ID
	TransferID = ID
	AuditID    = ID
)

// New generates an ID with prefix. An invalid prefix is a programming
// error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: generate %q: %v", prefix, err))
	}
	return ID{tid: tid, set: true}
}

// NewEventID generates an event id.
func NewEventID() ID { return New(PrefixEvent) }

// NewTransferID generates a transfer receipt id.
func NewTransferID() ID { return New(PrefixTransfer) }

// NewAuditID generates an audit record id.
func NewAuditID() ID { return New(PrefixAudit) }

// Parse parses any prefixed TypeID.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, errors.WithDetail(ErrInvalid, "empty string")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, errors.Mark(errors.Wrapf(err, "id: parse %q", s), ErrInvalid)
	}
	return ID{tid: tid, set: true}, nil
}

// ParseWithPrefix parses s and requires its prefix to be want.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, errors.WithDetailf(ErrInvalid, "%q has prefix %q, want %q", s, got, want)
	}
	return parsed, nil
}

// ParseEventID parses an "evt" id.
func ParseEventID(s string) (ID, error) { return ParseWithPrefix(s, PrefixEvent) }

// ParseTransferID parses an "xfer" id.
func ParseTransferID(s string) (ID, error) { return ParseWithPrefix(s, PrefixTransfer) }

// ParseAuditID parses an "aud" id.
func ParseAuditID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAudit) }

// String returns "prefix_suffix", or "" for Nil.
func (i ID) String() string {
	if !i.set {
		return ""
	}
	return i.tid.String()
}

// Prefix returns the id's prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if !i.set {
		return ""
	}
	return Prefix(i.tid.Prefix())
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool { return !i.set }

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields Nil.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. Nil is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.set {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.tid.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return errors.WithDetailf(ErrInvalid, "cannot scan %T", src)
	}
}
