package timer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/jobclock/pkg/models"
)

// Sentinel errors for rejected transitions. Neither has side effects.
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrMissingReason     = errors.New("pause reason is required")
)

// State is the client-side lifecycle of a job timer.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// Event is a user action on the job timer. At defaults to the session clock
// when zero.
type Event struct {
	Kind   models.Action
	Reason string
	At     time.Time
}

// Effect is a side effect the session performs after a transition.
type Effect string

const (
	EffectClockStart Effect = "clock_start"
	EffectClockStop  Effect = "clock_stop"
	EffectTickStart  Effect = "tick_start"
	EffectTickStop   Effect = "tick_stop"
	EffectReconcile  Effect = "reconcile"
)

// Controls reports which actions a UI should offer.
type Controls struct {
	Start  bool
	Pause  bool
	Resume bool
	Stop   bool
}

// Handle is the job timer state machine. It returns the next state and the
// effects to perform, or an error wrapping ErrInvalidTransition or
// ErrMissingReason with the state unchanged and no effects.
func Handle(state State, ev Event) (State, []Effect, error) {
	switch ev.Kind {
	case models.ActionStart:
		if state != StateIdle {
			return state, nil, invalid(state, ev.Kind)
		}
		return StateRunning, []Effect{EffectClockStart, EffectTickStart, EffectReconcile}, nil

	case models.ActionPause:
		if state != StateRunning {
			return state, nil, invalid(state, ev.Kind)
		}
		if strings.TrimSpace(ev.Reason) == "" {
			return state, nil, ErrMissingReason
		}
		return StatePaused, []Effect{EffectClockStop, EffectTickStop, EffectReconcile}, nil

	case models.ActionResume:
		if state != StatePaused {
			return state, nil, invalid(state, ev.Kind)
		}
		return StateRunning, []Effect{EffectClockStart, EffectTickStart, EffectReconcile}, nil

	case models.ActionStop:
		if state != StateRunning && state != StatePaused {
			return state, nil, invalid(state, ev.Kind)
		}
		return StateStopped, []Effect{EffectClockStop, EffectTickStop, EffectReconcile}, nil
	}
	return state, nil, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, ev.Kind)
}

func invalid(state State, action models.Action) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, action, state)
}

// ControlsFor returns the actions available in state.
func ControlsFor(state State) Controls {
	switch state {
	case StateIdle:
		return Controls{Start: true}
	case StateRunning:
		return Controls{Pause: true, Stop: true}
	case StatePaused:
		return Controls{Resume: true, Stop: true}
	default:
		return Controls{}
	}
}

// StateFromStatus maps a persisted job status to a client state. The second
// result is false for statuses the client does not recognise, which map to
// StateIdle.
func StateFromStatus(status string) (State, bool) {
	switch strings.TrimSpace(status) {
	case models.JobStatusRunning, models.JobStatusInProgress:
		return StateRunning, true
	case models.JobStatusPaused:
		return StatePaused, true
	case models.JobStatusWaitingForApproval, models.JobStatusCompleted, models.JobStatusDeclined, "Stopped":
		return StateStopped, true
	case models.JobStatusPending, models.JobStatusAccepted, models.JobStatusDeclinedAtApproval, "Idle", "":
		return StateIdle, true
	}
	return StateIdle, false
}
