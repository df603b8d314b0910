package invoice

// Action is a marketplace operation that moves an invoice between statuses.
type Action string

const (
	ActionVerify Action = "verify"
	ActionList   Action = "list"
	ActionBuy    Action = "buy"
	ActionSettle Action = "settle"
)

type transition struct {
	from Status
	to   Status
}

// transitions is the single source of truth for lifecycle legality.
// Adding a status means touching this table and Statuses only.
var transitions = map[Action]transition{
	ActionVerify: {from: StatusPending, to: StatusVerified},
	ActionList:   {from: StatusVerified, to: StatusListed},
	ActionBuy:    {from: StatusListed, to: StatusSold},
	ActionSettle: {from: StatusSold, to: StatusSettled},
}

// Next returns the status an invoice in from reaches by applying a.
// ok is false when a is not legal from that status.
func Next(a Action, from Status) (to Status, ok bool) {
	t, found := transitions[a]
	if !found || t.from != from {
		return "", false
	}
	return t.to, true
}

// Requires returns the status an invoice must be in for a to apply.
func Requires(a Action) Status {
	return transitions[a].from
}

// CanTransition reports whether any action moves an invoice from one
// status directly to another.
func CanTransition(from, to Status) bool {
	for _, t := range transitions {
		if t.from == from && t.to == to {
			return true
		}
	}
	return false
}

// Next returns the status that follows s, if any.
func (s Status) Next() (Status, bool) {
	for _, t := range transitions {
		if t.from == s {
			return t.to, true
		}
	}
	return "", false
}
