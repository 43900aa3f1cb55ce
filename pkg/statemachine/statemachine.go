package statemachine

import (
	"context"
	"fmt"
)

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard[S, E ~string] func(ctx context.Context, from S, event E, data any) bool

// Transition defines a state change triggered by an event.
type Transition[S, E ~string] struct {
	From   S
	To     S
	Event  E
	Guards []Guard[S, E] // all must pass
}

// Option registers transitions while building a Table.
type Option[S, E ~string] func(*Table[S, E]) error

// Table is an immutable lookup of allowed transitions: [from][event][]Transition.
type Table[S, E ~string] struct {
	transitions map[S]map[E][]Transition[S, E]
}

// New builds a table from the given options.
func New[S, E ~string](opts ...Option[S, E]) (*Table[S, E], error) {
	t := &Table[S, E]{transitions: make(map[S]map[E][]Transition[S, E])}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MustNew is New that panics on a misconfigured transition.
func MustNew[S, E ~string](opts ...Option[S, E]) *Table[S, E] {
	t, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return t
}

// Allow registers a transition from one state to another on event.
func Allow[S, E ~string](from S, event E, to S, guards ...Guard[S, E]) Option[S, E] {
	return func(t *Table[S, E]) error {
		return t.add(Transition[S, E]{From: from, To: to, Event: event, Guards: guards})
	}
}

// AllowFrom registers the same event and target for several source states.
func AllowFrom[S, E ~string](froms []S, event E, to S, guards ...Guard[S, E]) Option[S, E] {
	return func(t *Table[S, E]) error {
		for _, from := range froms {
			if err := t.add(Transition[S, E]{From: from, To: to, Event: event, Guards: guards}); err != nil {
				return fmt.Errorf("transition %s -[%s]-> %s: %w", from, event, to, err)
			}
		}
		return nil
	}
}

func (t *Table[S, E]) add(tr Transition[S, E]) error {
	if tr.From == "" || tr.To == "" || tr.Event == "" {
		return ErrInvalidTransition
	}
	if _, ok := t.transitions[tr.From]; !ok {
		t.transitions[tr.From] = make(map[E][]Transition[S, E])
	}
	t.transitions[tr.From][tr.Event] = append(t.transitions[tr.From][tr.Event], tr)
	return nil
}

// Next returns the state reached from current on event.
func (t *Table[S, E]) Next(ctx context.Context, current S, event E, data any) (S, error) {
	if event == "" {
		return current, ErrInvalidEvent
	}

	candidates := t.transitions[current][event]
	if len(candidates) == 0 {
		return current, NewErrNoTransitionAvailable(string(current), string(event))
	}

	for _, tr := range candidates {
		if passes(ctx, tr, current, event, data) {
			return tr.To, nil
		}
	}

	return current, NewErrTransitionRejected(string(current), string(event))
}

// Can reports whether event is allowed from current.
func (t *Table[S, E]) Can(ctx context.Context, current S, event E, data any) bool {
	_, err := t.Next(ctx, current, event, data)
	return err == nil
}

func passes[S, E ~string](ctx context.Context, tr Transition[S, E], from S, event E, data any) bool {
	for _, guard := range tr.Guards {
		if guard != nil && !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}
