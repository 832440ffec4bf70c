package workflow

import "context"

// ResolutionTransitions is the review lifecycle: a pending request is approved
// or denied by a named resolver. Approved and denied are terminal.
func ResolutionTransitions(resolver string) []Transition {
	hasResolver := func(context.Context) bool { return resolver != "" }

	return []Transition{
		{From: StatePending, Trigger: TriggerApprove, To: StateApproved, Guard: hasResolver},
		{From: StatePending, Trigger: TriggerDeny, To: StateDenied, Guard: hasResolver},
	}
}

// NewResolutionMachine returns the review lifecycle positioned at current
func NewResolutionMachine(current State, resolver string) (*Machine, error) {
	return NewMachine(current, ResolutionTransitions(resolver))
}

// Resolve applies decision to a request in state current and returns the new state
func Resolve(ctx context.Context, current State, decision Trigger, resolver string) (State, error) {
	machine, err := NewResolutionMachine(current, resolver)
	if err != nil {
		return "", err
	}
	if err := machine.Fire(ctx, decision); err != nil {
		return "", err
	}
	return machine.State(), nil
}
