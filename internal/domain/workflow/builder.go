package workflow

import (
	"context"
	"fmt"
	"slices"
)

// GuardFunc is a function that evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Build creates a new state machine instance with the given initial state
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to transition to the target state if the guard condition passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration

	// AdvanceTo makes the state transient: Transit leaves it through ADVANCE as soon as it is entered
	AdvanceTo(toState State) StateConfiguration
}

// Step describes one Transit: the fired trigger, the transient states passed and the resting state
type Step struct {
	Trigger Trigger
	From    State
	Through []State
	To      State
}

// Intermediate returns the last transient state passed, or "" when the trigger landed directly
func (s Step) Intermediate() State {
	if len(s.Through) == 0 {
		return ""
	}
	return s.Through[len(s.Through)-1]
}

type edge struct {
	to    State
	guard GuardFunc
}

type stateConfig struct {
	edges   map[Trigger][]edge
	advance bool
}

func (c *stateConfig) clone() *stateConfig {
	cp := &stateConfig{edges: make(map[Trigger][]edge, len(c.edges)), advance: c.advance}
	for trigger, edges := range c.edges {
		cp.edges[trigger] = slices.Clone(edges)
	}
	return cp
}

type stateMachineBuilder struct {
	states map[State]*stateConfig
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{states: make(map[State]*stateConfig)}
}

// Configure returns the configuration for state, creating it on first use
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	cfg, ok := b.states[state]
	if !ok {
		cfg = &stateConfig{edges: make(map[Trigger][]edge)}
		b.states[state] = cfg
	}
	return cfg
}

// Build creates a machine in initialState. Machines built from one builder share nothing.
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	states := make(map[State]*stateConfig, len(b.states))
	for state, cfg := range b.states {
		states[state] = cfg.clone()
	}

	return &stateMachine{current: initialState, states: states}
}

// Permit allows a trigger to transition to the target state
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows a trigger to transition to the target state if the guard condition passes
func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.edges[trigger] = append(c.edges[trigger], edge{to: toState, guard: guard})
	return c
}

// AdvanceTo registers the automatic ADVANCE edge out of this state
func (c *stateConfig) AdvanceTo(toState State) StateConfiguration {
	c.advance = true
	return c.Permit(TriggerAdvance, toState)
}

type stateMachine struct {
	current State
	states  map[State]*stateConfig
}

// State returns the current state
func (m *stateMachine) State() State {
	return m.current
}

// CanFire reports whether trigger has an edge out of the current state. Guards are not evaluated.
func (m *stateMachine) CanFire(trigger Trigger) bool {
	cfg, ok := m.states[m.current]
	return ok && len(cfg.edges[trigger]) > 0
}

// Fire moves along the first edge of trigger whose guard passes
func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	if !m.CanFire(trigger) {
		return &TransitionError{Trigger: trigger, Current: m.current}
	}

	for _, e := range m.states[m.current].edges[trigger] {
		if e.guard == nil || e.guard(ctx) {
			m.current = e.to
			return nil
		}
	}

	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
}

// Transit fires trigger and then follows ADVANCE out of every transient state it enters.
// On error the machine is left in its original state.
func (m *stateMachine) Transit(ctx context.Context, trigger Trigger) (Step, error) {
	step := Step{Trigger: trigger, From: m.current}

	if err := m.Fire(ctx, trigger); err != nil {
		return step, err
	}

	for m.isTransient(m.current) {
		step.Through = append(step.Through, m.current)
		if len(step.Through) > len(m.states) {
			m.current = step.From
			return step, fmt.Errorf("%w: advance cycle from %s", ErrInvalidState, step.Through[0])
		}
		if err := m.Fire(ctx, TriggerAdvance); err != nil {
			m.current = step.From
			return step, err
		}
	}

	step.To = m.current
	return step, nil
}

func (m *stateMachine) isTransient(state State) bool {
	cfg, ok := m.states[state]
	return ok && cfg.advance
}

// PermittedTriggers returns the triggers configured for the current state, sorted by name
func (m *stateMachine) PermittedTriggers() []Trigger {
	cfg, ok := m.states[m.current]
	if !ok {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(cfg.edges))
	for trigger := range cfg.edges {
		triggers = append(triggers, trigger)
	}
	slices.Sort(triggers)
	return triggers
}
