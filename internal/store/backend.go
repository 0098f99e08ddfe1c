package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/ir"
)

var _ entitystate.ResourceClient = (*Backend)(nil)

// Validator checks an entity before it is published.
type Validator func(ir.Entity) error

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithValidator rejects publishing entities for which v fails.
func WithValidator(v Validator) BackendOption {
	return func(b *Backend) {
		b.validate = v
	}
}

// Backend serves lifecycle requests against the store.
type Backend struct {
	store    *Store
	validate Validator
}

// NewBackend creates a Backend over s.
func NewBackend(s *Store, opts ...BackendOption) *Backend {
	b := &Backend{store: s}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Do applies one lifecycle request. The entity row and the transition log
// entry are written in the same transaction. Delete returns nil sys.
func (b *Backend) Do(ctx context.Context, req entitystate.Request) (*ir.EntitySys, error) {
	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	current, err := getEntity(ctx, tx, req.ID)
	if err != nil {
		return nil, err
	}
	sys := current.Sys
	if sys.DeletedVersion != nil || sys.Type.Collection() != req.Collection {
		return nil, notFound(req.ID)
	}
	if sys.Version != req.Version {
		return nil, versionMismatch(req.ID, req.Version, sys.Version)
	}

	from, err := entitystate.Compute(sys)
	if err != nil {
		return nil, err
	}
	next, err := b.apply(req, current)
	if err != nil {
		return nil, err
	}
	to, err := entitystate.Compute(next)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE entities
		SET version = ?, published_version = ?, archived_version = ?, deleted_version = ?
		WHERE id = ?
	`,
		next.Version,
		nullable(next.PublishedVersion),
		nullable(next.ArchivedVersion),
		nullable(next.DeletedVersion),
		next.ID,
	); err != nil {
		return nil, fmt.Errorf("backend: update entity: %w", err)
	}

	if err := appendTransition(ctx, tx, req.Action, from, to, next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("backend: commit: %w", err)
	}

	slog.Debug("backend request applied",
		"request", req.String(),
		"from", from,
		"to", to,
		"version", next.Version,
	)

	if req.Action == entitystate.ActionDelete {
		return nil, nil
	}
	return &next, nil
}

// apply computes the sys after req. Every accepted request bumps the
// version by one.
func (b *Backend) apply(req entitystate.Request, current ir.Entity) (ir.EntitySys, error) {
	next := current.Sys.Clone()
	v := next.Version
	published := next.PublishedVersion != nil
	archived := next.ArchivedVersion != nil

	switch {
	case req.Method == http.MethodPut && req.Flag == entitystate.FlagPublished:
		if archived {
			return next, badRequest("cannot publish archived entity %q", req.ID)
		}
		if b.validate != nil {
			if err := b.validate(current); err != nil {
				return next, &APIError{Status: http.StatusUnprocessableEntity, Code: CodeValidationFailed, Message: err.Error()}
			}
		}
		next.PublishedVersion = ir.V(v)

	case req.Method == http.MethodDelete && req.Flag == entitystate.FlagPublished:
		if !published {
			return next, badRequest("entity %q is not published", req.ID)
		}
		next.PublishedVersion = nil

	case req.Method == http.MethodPut && req.Flag == entitystate.FlagArchived:
		if published || archived {
			return next, badRequest("only drafts can be archived, %q is not a draft", req.ID)
		}
		next.ArchivedVersion = ir.V(v)

	case req.Method == http.MethodDelete && req.Flag == entitystate.FlagArchived:
		if !archived {
			return next, badRequest("entity %q is not archived", req.ID)
		}
		next.ArchivedVersion = nil

	case req.Method == http.MethodDelete && req.Flag == "":
		if published || archived {
			return next, badRequest("only drafts can be deleted, %q is not a draft", req.ID)
		}
		next.DeletedVersion = ir.V(v)

	default:
		return next, &APIError{
			Status:  http.StatusMethodNotAllowed,
			Code:    CodeBadRequest,
			Message: fmt.Sprintf("unsupported request %s", req),
		}
	}

	next.Version = v + 1
	return next, nil
}
