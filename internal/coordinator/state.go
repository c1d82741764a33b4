package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrTurnInProgress is returned when Run is called while a turn is
	// streaming or finalizing.
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrInvalidTransition reports a state change the turn lifecycle does
	// not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// State is the lifecycle position of a turn.
type State int

const (
	Idle State = iota
	Streaming
	Finalizing
	Done
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition happens within the turn.
func (s State) Terminal() bool {
	return s == Done || s == Cancelled
}

// Streaming goes straight to Done only when the stream itself failed.
var transitions = map[State][]State{
	Idle:       {Streaming},
	Streaming:  {Finalizing, Cancelled, Done},
	Finalizing: {Done, Cancelled},
	Done:       {Idle},
	Cancelled:  {Idle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Kind selects how a turn treats change blocks.
type Kind int

const (
	// KindChat turns never apply edits. They stop on the opening marker
	// when the model wants to switch to code.
	KindChat Kind = iota
	// KindCode turns are prefilled with the opening marker and apply the
	// decoded edits when the stream completes.
	KindCode
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindCode:
		return "code"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// StopReason tells the caller how a turn ended.
type StopReason string

const (
	StopEndTurn StopReason = "endTurn"
	// StopConfirmCode means a chat turn stopped at the opening marker and
	// the caller should confirm switching to a code turn.
	StopConfirmCode StopReason = "confirmCode"
)
