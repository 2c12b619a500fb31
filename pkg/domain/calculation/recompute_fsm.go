package calculation

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// State constants for statekit integration.
// These must remain untyped string constants for statekit.StateID compatibility.
const (
	StateClean       = "clean"
	StateDirty       = "dirty"
	StateRecomputing = "recomputing"
)

// Recompute lifecycle events.
const (
	EventInvalidate = "invalidate"
	EventStart      = "start"
	EventFinish     = "finish"
	EventFail       = "fail"
)

// RecomputeContext carries the data the guards look at.
type RecomputeContext struct {
	ProjectID string
	// Hydrating reports whether stored state is currently being loaded for the
	// project. Invalidations are ignored while it returns true.
	Hydrating func(projectID string) bool
}

// RecomputeStateMachine tracks whether a project's derived records are current.
//
//	clean --invalidate--> dirty --start--> recomputing --finish--> clean
//	clean --start--> recomputing            recomputing --fail--> dirty
type RecomputeStateMachine struct {
	interpreter *statekit.Interpreter[RecomputeContext]
}

func NewRecomputeStateMachine(initialState string, projectID string, hydrating func(string) bool) (*RecomputeStateMachine, error) {
	if hydrating == nil {
		hydrating = func(string) bool { return false }
	}

	builder := statekit.NewMachine[RecomputeContext]("recompute-machine").
		WithInitial(statekit.StateID(initialState)).
		WithContext(RecomputeContext{
			ProjectID: projectID,
			Hydrating: hydrating,
		}).
		WithGuard("notHydrating", func(ctx RecomputeContext, _ statekit.Event) bool {
			return !ctx.Hydrating(ctx.ProjectID)
		})

	builder.State(StateClean).
		On(EventInvalidate).Target(StateDirty).Guard("notHydrating").
		On(EventStart).Target(StateRecomputing).
		Done()

	builder.State(StateDirty).
		On(EventStart).Target(StateRecomputing).
		Done()

	builder.State(StateRecomputing).
		On(EventFinish).Target(StateClean).
		On(EventFail).Target(StateDirty).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build recompute state machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &RecomputeStateMachine{interpreter: interpreter}, nil
}

// Transition sends event and reports an error when the state did not change,
// either because the event is not valid in the current state or a guard refused it.
func (sm *RecomputeStateMachine) Transition(event string) error {
	before := sm.Current()
	sm.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	if sm.Current() != before {
		return nil
	}
	return fmt.Errorf("event '%s' is not allowed while the project is '%s'", event, before)
}

func (sm *RecomputeStateMachine) Current() string {
	return string(sm.interpreter.State().Value)
}

func (sm *RecomputeStateMachine) IsClean() bool       { return sm.Current() == StateClean }
func (sm *RecomputeStateMachine) IsDirty() bool       { return sm.Current() == StateDirty }
func (sm *RecomputeStateMachine) IsRecomputing() bool { return sm.Current() == StateRecomputing }
