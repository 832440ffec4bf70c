package workflow

import (
	"context"
	"fmt"
)

// GuardFunc decides whether a transition may be taken
type GuardFunc func(ctx context.Context) bool

// Transition moves a request from one status to another on a trigger.
// A nil Guard always passes.
type Transition struct {
	From    State
	Trigger Trigger
	To      State
	Guard   GuardFunc
}

// Machine tracks one request's status against a fixed transition table
type Machine struct {
	current State
	table   map[State]map[Trigger][]Transition
}

// NewMachine positions a machine at current. The table is copied, so callers
// may reuse or modify transitions afterwards.
func NewMachine(current State, transitions []Transition) (*Machine, error) {
	if !current.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, current)
	}

	table := make(map[State]map[Trigger][]Transition)
	for _, t := range transitions {
		if !t.From.IsValid() || !t.To.IsValid() {
			return nil, fmt.Errorf("%w: transition %s -%s-> %s", ErrInvalidState, t.From, t.Trigger, t.To)
		}
		if table[t.From] == nil {
			table[t.From] = make(map[Trigger][]Transition)
		}
		table[t.From][t.Trigger] = append(table[t.From][t.Trigger], t)
	}

	return &Machine{current: current, table: table}, nil
}

// State returns the current status
func (m *Machine) State() State {
	return m.current
}

// Fire takes the first transition for trigger whose guard passes
func (m *Machine) Fire(ctx context.Context, trigger Trigger) error {
	candidates := m.table[m.current][trigger]
	if len(candidates) == 0 {
		return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	for _, t := range candidates {
		if t.Guard == nil || t.Guard(ctx) {
			m.current = t.To
			return nil
		}
	}

	return fmt.Errorf("%w: %s from %s", ErrGuardFailed, trigger, m.current)
}
