package workflow

import "context"

// StateMachine tracks the current state of one request and validates its transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is configured for the current state
	CanFire(trigger Trigger) bool

	// Fire takes a single edge. An unconfigured trigger yields a *TransitionError.
	Fire(ctx context.Context, trigger Trigger) error

	// Transit fires trigger and settles through any transient states
	Transit(ctx context.Context, trigger Trigger) (Step, error)

	// PermittedTriggers returns all triggers that can be fired in the current state
	PermittedTriggers() []Trigger
}
