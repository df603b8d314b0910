package types

import "strings"

// Address identifies a participant: seller, debtor, investor or admin.
// It is opaque to the engine; the identity gate decides what it means.
type Address string

// String implements fmt.Stringer.
func (a Address) String() string { return string(a) }

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return strings.TrimSpace(string(a)) == "" }
