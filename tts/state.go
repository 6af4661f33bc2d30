package tts

import (
	"fmt"
	"slices"
)

// StateType is the lifecycle state of a Manager.
type StateType int

const (
	// StateUninitialized indicates no engine or sink is held.
	StateUninitialized StateType = iota
	// StateInitializing indicates handles are being created.
	StateInitializing
	// StateReady indicates the engine and sink are live.
	StateReady
	// StateClosing indicates handles are being released.
	StateClosing
)

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// stateMachine tracks Manager lifecycle transitions. It is not safe for
// concurrent use; the Manager guards it with its own mutex.
type stateMachine struct {
	current StateType
	allowed map[StateType][]StateType
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current: StateUninitialized,
		allowed: map[StateType][]StateType{
			StateUninitialized: {StateInitializing, StateClosing},
			StateInitializing:  {StateReady, StateUninitialized},
			StateReady:         {StateClosing, StateInitializing},
			StateClosing:       {StateUninitialized},
		},
	}
}

// transition moves to the given state. A move the table does not allow
// leaves the state unchanged and returns an error.
func (sm *stateMachine) transition(to StateType) error {
	if !slices.Contains(sm.allowed[sm.current], to) {
		return fmt.Errorf("invalid state transition %s -> %s", sm.current, to)
	}
	sm.current = to
	return nil
}
