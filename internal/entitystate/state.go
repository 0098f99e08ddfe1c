package entitystate

import (
	"github.com/roach88/entitybridge/internal/ir"
)

// State is the derived lifecycle state of an entity.
type State string

const (
	StateDraft     State = "Draft"
	StatePublished State = "Published"
	StateChanged   State = "Changed"
	StateArchived  State = "Archived"
	StateDeleted   State = "Deleted"
)

// States lists every state in priority order, lowest first.
var States = []State{StateDraft, StatePublished, StateChanged, StateArchived, StateDeleted}

// Valid reports whether s is one of the five lifecycle states.
func (s State) Valid() bool {
	switch s {
	case StateDraft, StatePublished, StateChanged, StateArchived, StateDeleted:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// ParseState converts a state name into a State.
func ParseState(name string) (State, error) {
	s := State(name)
	if !s.Valid() {
		return "", &TransitionError{Code: ErrCodeUnknownState, Message: "unknown state " + name}
	}
	return s, nil
}

// Compute derives the lifecycle state from entity metadata.
//
// It is a total function of sys and fails only when sys carries no
// recognizable entity type.
func Compute(sys ir.EntitySys) (State, error) {
	if err := sys.Validate(); err != nil {
		return "", err
	}
	switch {
	case sys.DeletedVersion != nil:
		return StateDeleted, nil
	case sys.ArchivedVersion != nil:
		return StateArchived, nil
	case sys.PublishedVersion != nil:
		if sys.Version >= *sys.PublishedVersion+2 {
			return StateChanged, nil
		}
		return StatePublished, nil
	default:
		return StateDraft, nil
	}
}

// MustCompute is like Compute but panics on malformed metadata.
// Use only in tests or when sys is known to be valid.
func MustCompute(sys ir.EntitySys) State {
	s, err := Compute(sys)
	if err != nil {
		panic(err)
	}
	return s
}
