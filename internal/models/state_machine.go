package models

import (
	"fmt"
	"time"
)

// RunState represents the current stage of a collection run
type RunState string

const (
	StateStart         RunState = "start"          // Run created, nothing fetched yet
	StateFetching      RunState = "fetching"       // Requesting option chains per expiration
	StateShaping       RunState = "shaping"        // Converting raw contracts into rows
	StateStoring       RunState = "storing"        // Writing the batch to the database
	StateDone          RunState = "done"           // Run completed
	StateErrorReported RunState = "error_reported" // Failure reported by email, run over
)

// Transition conditions used by the collector
const (
	ConditionStartFetch   = "start_fetch"
	ConditionFetched      = "fetched"
	ConditionNoData       = "no_data"
	ConditionShaped       = "shaped"
	ConditionStored       = "stored"
	ConditionFetchFailed  = "fetch_failed"
	ConditionShapeFailed  = "shape_failed"
	ConditionStoreFailed  = "store_failed"
	ConditionRunCancelled = "cancelled"
)

// StateTransition defines a valid state transition
type StateTransition struct {
	From        RunState
	To          RunState
	Condition   string
	Description string
}

// ValidTransitions is the full run lifecycle. Transitions are strictly sequential.
var ValidTransitions = []StateTransition{
	{StateStart, StateFetching, ConditionStartFetch, "Expiration dates selected"},
	{StateFetching, StateShaping, ConditionFetched, "All expirations attempted"},
	{StateFetching, StateDone, ConditionNoData, "No contracts returned for any expiration"},
	{StateShaping, StateStoring, ConditionShaped, "Rows built with a shared quote timestamp"},
	{StateStoring, StateDone, ConditionStored, "Batch committed"},

	{StateFetching, StateErrorReported, ConditionFetchFailed, "Chain request or decode failed"},
	{StateShaping, StateErrorReported, ConditionShapeFailed, "Raw contract missing a field"},
	{StateStoring, StateErrorReported, ConditionStoreFailed, "Database connect or insert failed"},

	{StateStart, StateErrorReported, ConditionRunCancelled, "Run cancelled before fetching"},
}

// RunStateMachine tracks a single run through its states
type RunStateMachine struct {
	transitionTime time.Time
	currentState   RunState
	previousState  RunState
	history        []RunState
}

// NewRunStateMachine creates a state machine in the start state
func NewRunStateMachine() *RunStateMachine {
	return &RunStateMachine{
		currentState:   StateStart,
		previousState:  StateStart,
		transitionTime: time.Now().UTC(),
		history:        []RunState{StateStart},
	}
}

// Current returns the current state
func (sm *RunStateMachine) Current() RunState {
	return sm.currentState
}

// Previous returns the previous state
func (sm *RunStateMachine) Previous() RunState {
	return sm.previousState
}

// TransitionTime returns when the machine last changed state
func (sm *RunStateMachine) TransitionTime() time.Time {
	return sm.transitionTime
}

// History returns every state visited, in order
func (sm *RunStateMachine) History() []RunState {
	out := make([]RunState, len(sm.history))
	copy(out, sm.history)
	return out
}

// IsTerminal reports whether the run can no longer change state
func (sm *RunStateMachine) IsTerminal() bool {
	return sm.currentState == StateDone || sm.currentState == StateErrorReported
}

// IsValidTransition checks if a transition is defined from the current state
func (sm *RunStateMachine) IsValidTransition(to RunState, condition string) error {
	for _, t := range ValidTransitions {
		if t.From == sm.currentState && t.To == to && t.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition '%s'",
		sm.currentState, to, condition)
}

// Transition moves to a new state
func (sm *RunStateMachine) Transition(to RunState, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}

	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	sm.history = append(sm.history, to)
	return nil
}
