package workflow

import "fmt"

// Trigger is a reviewer decision that moves a request out of pending
type Trigger string

const (
	TriggerApprove Trigger = "APPROVE"
	TriggerDeny    Trigger = "DENY"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// ParseDecision maps a reviewer decision ("approve", "deny") to its trigger
func ParseDecision(decision string) (Trigger, error) {
	switch decision {
	case "approve", "APPROVE", "approved":
		return TriggerApprove, nil
	case "deny", "DENY", "denied":
		return TriggerDeny, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTrigger, decision)
	}
}
