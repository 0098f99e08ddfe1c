package entitystate

import (
	"fmt"
	"net/http"

	"github.com/roach88/entitybridge/internal/ir"
)

// Action is a user-requestable lifecycle operation.
type Action string

const (
	ActionPublish   Action = "publish"
	ActionUnpublish Action = "unpublish"
	ActionArchive   Action = "archive"
	ActionUnarchive Action = "unarchive"
	ActionDelete    Action = "delete"
)

// Actions lists every action.
var Actions = []Action{ActionPublish, ActionUnpublish, ActionArchive, ActionUnarchive, ActionDelete}

// Backend flags appended to the entity path.
const (
	FlagPublished = "published"
	FlagArchived  = "archived"
)

// ParseAction converts an action name into an Action.
func ParseAction(name string) (Action, error) {
	a := Action(name)
	if _, err := TargetOf(a); err != nil {
		return "", err
	}
	return a, nil
}

// TargetOf returns the state an action aims for.
func TargetOf(a Action) (State, error) {
	switch a {
	case ActionPublish:
		return StatePublished, nil
	case ActionUnpublish, ActionUnarchive:
		return StateDraft, nil
	case ActionArchive:
		return StateArchived, nil
	case ActionDelete:
		return StateDeleted, nil
	default:
		return "", &TransitionError{Code: ErrCodeUnknownAction, Message: fmt.Sprintf("unknown action %q", a)}
	}
}

// Request is one REST-style backend call.
//
// The call addresses /{Collection}/{ID}[/{Flag}] with Method. Version is the
// entity version the caller last saw; the backend rejects stale versions.
type Request struct {
	Action     Action `json:"action"`
	Method     string `json:"method"`
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Flag       string `json:"flag,omitempty"`
	Version    int64  `json:"version"`
}

// Path returns the request path.
func (r Request) Path() string {
	if r.Flag == "" {
		return "/" + r.Collection + "/" + r.ID
	}
	return "/" + r.Collection + "/" + r.ID + "/" + r.Flag
}

func (r Request) String() string {
	return r.Method + " " + r.Path()
}

// RequestFor maps an action on an entity to its single backend call.
func RequestFor(a Action, sys ir.EntitySys) (Request, error) {
	if err := sys.Validate(); err != nil {
		return Request{}, err
	}
	req := Request{
		Action:     a,
		Collection: sys.Type.Collection(),
		ID:         sys.ID,
		Version:    sys.Version,
	}
	switch a {
	case ActionPublish:
		req.Method, req.Flag = http.MethodPut, FlagPublished
	case ActionUnpublish:
		req.Method, req.Flag = http.MethodDelete, FlagPublished
	case ActionArchive:
		req.Method, req.Flag = http.MethodPut, FlagArchived
	case ActionUnarchive:
		req.Method, req.Flag = http.MethodDelete, FlagArchived
	case ActionDelete:
		req.Method = http.MethodDelete
	default:
		return Request{}, &TransitionError{Code: ErrCodeUnknownAction, Message: fmt.Sprintf("unknown action %q", a)}
	}
	return req, nil
}
