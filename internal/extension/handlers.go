package extension

import (
	"context"
	"errors"

	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/ir"
)

// Standard RPC method names.
const (
	MethodSetValue       = "setValue"
	MethodRemoveValue    = "removeValue"
	MethodPublishEntry   = "publishEntry"
	MethodUnpublishEntry = "unpublishEntry"
	MethodArchiveEntry   = "archiveEntry"
	MethodUnarchiveEntry = "unarchiveEntry"
	MethodDeleteEntry    = "deleteEntry"
)

// Document is the editable entity value. *document.Document satisfies it.
type Document interface {
	SetValueAt(ctx context.Context, path ir.Path, value any) error
	RemoveValueAt(ctx context.Context, path ir.Path) error
}

// Resource runs lifecycle actions. *resource.Manager satisfies it.
type Resource interface {
	Apply(ctx context.Context, action entitystate.Action) (*ir.EntitySys, error)
}

// Permissions decides what the acting user may change.
type Permissions interface {
	CanEditField(fieldID, localeCode string) bool
	CanPerform(action entitystate.Action) bool
}

// AllowAll permits everything.
type AllowAll struct{}

// CanEditField always returns true.
func (AllowAll) CanEditField(string, string) bool {
	return true
}

// CanPerform always returns true.
func (AllowAll) CanPerform(entitystate.Action) bool {
	return true
}

// StaticPermissions is a fixed permission set.
type StaticPermissions struct {
	// ReadOnly denies every field edit.
	ReadOnly bool
	// Denied lists forbidden actions.
	Denied []entitystate.Action
	// ReadOnlyFields lists internal field ids that cannot be edited.
	ReadOnlyFields []string
}

// CanEditField reports whether fieldID may be written.
func (p StaticPermissions) CanEditField(fieldID, _ string) bool {
	if p.ReadOnly {
		return false
	}
	for _, id := range p.ReadOnlyFields {
		if id == fieldID {
			return false
		}
	}
	return true
}

// CanPerform reports whether action is allowed.
func (p StaticPermissions) CanPerform(action entitystate.Action) bool {
	for _, a := range p.Denied {
		if a == action {
			return false
		}
	}
	return true
}

// Deps are the collaborators behind the standard handlers. Permissions
// defaults to AllowAll.
type Deps struct {
	Document    Document
	Resource    Resource
	Permissions Permissions
}

var entryActions = []struct {
	method string
	action entitystate.Action
}{
	{MethodPublishEntry, entitystate.ActionPublish},
	{MethodUnpublishEntry, entitystate.ActionUnpublish},
	{MethodArchiveEntry, entitystate.ActionArchive},
	{MethodUnarchiveEntry, entitystate.ActionUnarchive},
	{MethodDeleteEntry, entitystate.ActionDelete},
}

// RegisterDefaultHandlers wires the standard field and lifecycle RPCs.
// Field handlers need deps.Document and lifecycle handlers need
// deps.Resource; either may be nil to skip that group.
func RegisterDefaultHandlers(a *Adapter, deps Deps) error {
	perms := deps.Permissions
	if perms == nil {
		perms = AllowAll{}
	}

	if doc := deps.Document; doc != nil {
		err := a.RegisterPathHandler(MethodSetValue, func(ctx context.Context, path ir.Path, rest []any) (any, error) {
			if !perms.CanEditField(path[1], path[2]) {
				return nil, &PermissionError{Operation: MethodSetValue}
			}
			var value any
			if len(rest) > 0 {
				value = rest[0]
			}
			if err := doc.SetValueAt(ctx, path, value); err != nil {
				return nil, &BackendError{Operation: MethodSetValue, Err: err}
			}
			return value, nil
		})
		if err != nil {
			return err
		}

		err = a.RegisterPathHandler(MethodRemoveValue, func(ctx context.Context, path ir.Path, _ []any) (any, error) {
			if !perms.CanEditField(path[1], path[2]) {
				return nil, &PermissionError{Operation: MethodRemoveValue}
			}
			if err := doc.RemoveValueAt(ctx, path); err != nil {
				return nil, &BackendError{Operation: MethodRemoveValue, Err: err}
			}
			return nil, nil
		})
		if err != nil {
			return err
		}
	}

	if res := deps.Resource; res != nil {
		for _, ea := range entryActions {
			err := a.RegisterHandler(ea.method, func(ctx context.Context, _ []any) (any, error) {
				if !perms.CanPerform(ea.action) {
					return nil, &PermissionError{Operation: ea.method}
				}
				sys, err := res.Apply(ctx, ea.action)
				if err != nil {
					var te *entitystate.TransitionError
					if errors.As(err, &te) {
						return nil, err
					}
					return nil, &BackendError{Operation: ea.method, Err: err}
				}
				if sys == nil {
					return nil, nil
				}
				return *sys, nil
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}
