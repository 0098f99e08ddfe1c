package entitystate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/entitybridge/internal/ir"
)

// ResourceClient performs one backend call and returns the entity's updated
// metadata. Delete returns nil metadata on success.
type ResourceClient interface {
	Do(ctx context.Context, req Request) (*ir.EntitySys, error)
}

// ClientFunc adapts a function to ResourceClient.
type ClientFunc func(ctx context.Context, req Request) (*ir.EntitySys, error)

// Do calls f.
func (f ClientFunc) Do(ctx context.Context, req Request) (*ir.EntitySys, error) {
	return f(ctx, req)
}

// Planner sequences backend calls to move an entity to a target state.
//
// It performs no retries. A failed call aborts the plan and its error is
// returned unwrapped, so HTTP-shaped backend errors reach the caller intact.
type Planner struct {
	client ResourceClient
}

// NewPlanner creates a planner issuing calls through client.
func NewPlanner(client ResourceClient) *Planner {
	return &Planner{client: client}
}

// Apply runs action against entity. previousState is the state the caller
// last displayed and serves as the UI-state hint for ChangeTo.
func (p *Planner) Apply(ctx context.Context, action Action, previousState State, entity ir.Entity) (*ir.EntitySys, error) {
	target, err := TargetOf(action)
	if err != nil {
		return nil, err
	}
	return p.ChangeTo(ctx, target, entity, previousState)
}

// ChangeTo moves entity to target and returns the final metadata.
//
// The result is nil only when the plan ends with a delete. Requesting
// Changed, or any target while the entity is Deleted, fails before any
// backend call is made. uiState may be empty.
func (p *Planner) ChangeTo(ctx context.Context, target State, entity ir.Entity, uiState State) (*ir.EntitySys, error) {
	current, err := Compute(entity.Sys)
	if err != nil {
		return nil, err
	}
	if target == StateChanged {
		return nil, &TransitionError{
			Code:    ErrCodeInvalidTarget,
			Message: "changed is not a commandable state",
			From:    current,
			To:      target,
		}
	}
	if !target.Valid() {
		return nil, &TransitionError{Code: ErrCodeUnknownState, Message: fmt.Sprintf("unknown target %q", target)}
	}
	if current == StateDeleted {
		return nil, &TransitionError{
			Code:    ErrCodeEntityDeleted,
			Message: "entity is deleted",
			From:    current,
			To:      target,
		}
	}

	slog.Debug("planning transition",
		"entity", entity.Sys.ID,
		"from", current,
		"to", target,
		"ui_state", uiState,
	)

	sys := entity.Sys.Clone()
	switch target {
	case StateDraft:
		return p.toDraft(ctx, current, sys)

	case StatePublished:
		// A changed entry is republished in place.
		if current == StateChanged || uiState == StateChanged {
			return p.call(ctx, ActionPublish, sys)
		}
		draft, err := p.toDraft(ctx, current, sys)
		if err != nil {
			return nil, err
		}
		return p.call(ctx, ActionPublish, *draft)

	case StateArchived:
		draft, err := p.toDraft(ctx, current, sys)
		if err != nil {
			return nil, err
		}
		return p.call(ctx, ActionArchive, *draft)

	default: // StateDeleted
		draft, err := p.toDraft(ctx, current, sys)
		if err != nil {
			return nil, err
		}
		return p.call(ctx, ActionDelete, *draft)
	}
}

// toDraft issues at most one call and always returns non-nil metadata on success.
func (p *Planner) toDraft(ctx context.Context, current State, sys ir.EntitySys) (*ir.EntitySys, error) {
	var action Action
	switch current {
	case StateArchived:
		action = ActionUnarchive
	case StatePublished, StateChanged:
		action = ActionUnpublish
	default:
		return &sys, nil
	}

	next, err := p.call(ctx, action, sys)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, &TransitionError{
			Code:    ErrCodeMissingSys,
			Message: fmt.Sprintf("%s returned no metadata", action),
			From:    current,
			To:      StateDraft,
		}
	}
	return next, nil
}

func (p *Planner) call(ctx context.Context, action Action, sys ir.EntitySys) (*ir.EntitySys, error) {
	req, err := RequestFor(action, sys)
	if err != nil {
		return nil, err
	}
	next, err := p.client.Do(ctx, req)
	if err != nil {
		slog.Debug("backend call failed",
			"request", req.String(),
			"error", err,
		)
		return nil, err
	}
	slog.Debug("backend call succeeded", "request", req.String())
	return next, nil
}
