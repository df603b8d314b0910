package invoice

import "fmt"

// Status is the lifecycle position of an invoice. The set is closed; see
// lifecycle.go for the legal moves between values.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusListed   Status = "listed"
	StatusSold     Status = "sold"
	StatusSettled  Status = "settled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusVerified,
	StatusListed,
	StatusSold,
	StatusSettled,
}

// ParseStatus converts s into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("invoice: unknown status %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// String implements fmt.Stringer.
func (s Status) String() string { return string(s) }

// IsTerminal reports whether no operation can move the invoice further.
func (s Status) IsTerminal() bool { return s == StatusSettled }

func (s Status) rank() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}
