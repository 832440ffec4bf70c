package workflow

// State is a reimbursement status in the resolution lifecycle.
// Values match the ers_reimb_statuses lookup names.
type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateDenied   State = "denied"
)

func (s State) String() string {
	return string(s)
}

// IsValid reports whether s is a seeded status
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateApproved, StateDenied:
		return true
	}
	return false
}

// IsTerminal reports whether a request in s can no longer be resolved
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateDenied
}
