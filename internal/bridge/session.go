// Package bridge hosts one sandboxed surface editing one entity.
//
// A Session wires the extension adapter to a reactive document and a
// resource state manager, both backed by a lifecycle client (the SQLite
// store backend unless overridden). Document writes fan out to the peer as
// value and sys notifications; lifecycle RPCs run through the manager and
// feed the resulting sys back into the document.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/entitybridge/internal/document"
	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/extension"
	"github.com/roach88/entitybridge/internal/ir"
	"github.com/roach88/entitybridge/internal/resource"
	"github.com/roach88/entitybridge/internal/store"
)

// ErrNoBackend is returned when neither a store nor a client is given.
var ErrNoBackend = errors.New("bridge: a store or a lifecycle client is required")

// Options configures a Session. Every field is optional.
type Options struct {
	// Client overrides the store backend for lifecycle requests.
	Client entitystate.ResourceClient
	// Validator gates publishing on the store backend.
	Validator store.Validator
	// Permissions defaults to extension.AllowAll.
	Permissions extension.Permissions
	// PreApply runs before every lifecycle action.
	PreApply resource.PreApplyHook
}

// Session is one live surface.
type Session struct {
	Adapter  *extension.Adapter
	Document *document.Document
	Resource *resource.Manager

	// source is the store lifecycle calls commit to. It is nil when
	// Options.Client overrides the backend.
	source *store.Store

	closeOnce sync.Once
	unsubs    []func()
}

// New builds a Session for cfg.Entry. Field writes are persisted to st
// when it is non-nil.
func New(cfg extension.Config, st *store.Store, opts Options) (*Session, error) {
	client := opts.Client
	var source *store.Store
	if client == nil {
		if st == nil {
			return nil, ErrNoBackend
		}
		source = st
		var backendOpts []store.BackendOption
		if opts.Validator != nil {
			backendOpts = append(backendOpts, store.WithValidator(opts.Validator))
		}
		client = store.NewBackend(st, backendOpts...)
	}

	adapter, err := extension.New(cfg)
	if err != nil {
		return nil, err
	}

	var docOpts []document.Option
	if st != nil {
		docOpts = append(docOpts, document.WithPersister(st))
	}
	doc := document.New(cfg.Entry, docOpts...)

	var mgrOpts []resource.Option
	if opts.PreApply != nil {
		mgrOpts = append(mgrOpts, resource.WithPreApply(opts.PreApply))
	}
	mgr, err := resource.New(doc.Sys(), doc.Entity, entitystate.NewPlanner(client), mgrOpts...)
	if err != nil {
		return nil, err
	}

	s := &Session{Adapter: adapter, Document: doc, Resource: mgr, source: source}

	s.unsubs = append(s.unsubs,
		doc.OnChange(func(p ir.Path) {
			if err := adapter.Update(p, doc.Entity()); err != nil {
				slog.Warn("value notification failed", "path", p.String(), "error", err)
			}
		}),
		doc.OnSys(func(sys ir.EntitySys) {
			if err := mgr.SetSys(sys); err != nil {
				slog.Warn("rejected sys update", "entity", sys.ID, "error", err)
				return
			}
			if err := adapter.UpdateSys(sys); err != nil {
				slog.Warn("sys notification failed", "entity", sys.ID, "error", err)
			}
		}),
	)

	err = extension.RegisterDefaultHandlers(adapter, extension.Deps{
		Document:    doc,
		Resource:    s,
		Permissions: opts.Permissions,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Connect sends the handshake for the current document value.
func (s *Session) Connect() error {
	return s.Adapter.ConnectWith(s.Document.Entity())
}

// Apply runs a lifecycle action and pushes the resulting sys into the
// document. A delete leaves the document untouched.
//
// A failed action may still have committed earlier steps of its plan, e.g.
// the unarchive before a rejected publish. The document is then resynced
// from the store so later writes carry the committed version.
func (s *Session) Apply(ctx context.Context, action entitystate.Action) (*ir.EntitySys, error) {
	sys, err := s.Resource.Apply(ctx, action)
	if err != nil {
		s.resync(context.WithoutCancel(ctx), action)
		return nil, err
	}
	if sys == nil {
		return nil, nil
	}
	s.Document.SetSys(*sys)
	return sys, nil
}

func (s *Session) resync(ctx context.Context, action entitystate.Action) {
	if s.source == nil {
		return
	}
	current := s.Document.Sys()
	stored, err := s.source.Get(ctx, current.ID)
	if err != nil {
		slog.Warn("resync after failed action", "entity", current.ID, "action", action, "error", err)
		return
	}
	if stored.Sys.Version == current.Version {
		return
	}
	slog.Debug("resynced after partial action",
		"entity", current.ID,
		"action", action,
		"from_version", current.Version,
		"to_version", stored.Sys.Version,
	)
	s.Document.SetSys(stored.Sys)
}

// Close detaches the session from its document.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, fn := range s.unsubs {
			fn()
		}
	})
}
