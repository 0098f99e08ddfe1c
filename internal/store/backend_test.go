package store

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/ir"
)

func request(t *testing.T, action entitystate.Action, sys ir.EntitySys) entitystate.Request {
	t.Helper()
	req, err := entitystate.RequestFor(action, sys)
	if err != nil {
		t.Fatalf("RequestFor(%s) failed: %v", action, err)
	}
	return req
}

func TestBackend_PublishBumpsVersion(t *testing.T) {
	s := createTestStore(t)
	e := createTestEntry("e1", 1)
	importTestEntry(t, s, e)

	sys, err := NewBackend(s).Do(context.Background(), request(t, entitystate.ActionPublish, e.Sys))
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if sys.Version != 2 || sys.PublishedVersion == nil || *sys.PublishedVersion != 1 {
		t.Errorf("sys = %+v, want version 2 published 1", sys)
	}
	if got := entitystate.MustCompute(*sys); got != entitystate.StatePublished {
		t.Errorf("state = %s, want Published", got)
	}

	stored, _ := s.Get(context.Background(), "e1")
	if stored.Sys.Version != 2 {
		t.Errorf("stored version = %d, want 2", stored.Sys.Version)
	}
}

func TestBackend_Rules(t *testing.T) {
	published := createTestEntry("e1", 2)
	published.Sys.PublishedVersion = ir.V(1)
	archived := createTestEntry("e1", 2)
	archived.Sys.ArchivedVersion = ir.V(1)
	draft := createTestEntry("e1", 1)

	tests := []struct {
		name   string
		entity ir.Entity
		action entitystate.Action
		status int
	}{
		{"archive published", published, entitystate.ActionArchive, http.StatusBadRequest},
		{"delete published", published, entitystate.ActionDelete, http.StatusBadRequest},
		{"delete archived", archived, entitystate.ActionDelete, http.StatusBadRequest},
		{"publish archived", archived, entitystate.ActionPublish, http.StatusBadRequest},
		{"archive archived", archived, entitystate.ActionArchive, http.StatusBadRequest},
		{"unpublish draft", draft, entitystate.ActionUnpublish, http.StatusBadRequest},
		{"unarchive draft", draft, entitystate.ActionUnarchive, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestStore(t)
			importTestEntry(t, s, tt.entity)

			_, err := NewBackend(s).Do(context.Background(), request(t, tt.action, tt.entity.Sys))
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Do() error = %v, want APIError", err)
			}
			if apiErr.Status != tt.status {
				t.Errorf("status = %d, want %d", apiErr.Status, tt.status)
			}

			stored, _ := s.Get(context.Background(), "e1")
			if stored.Sys.Version != tt.entity.Sys.Version {
				t.Errorf("rejected request changed version to %d", stored.Sys.Version)
			}
			log, _ := s.Transitions(context.Background(), "e1")
			if len(log) != 0 {
				t.Errorf("rejected request was logged: %v", log)
			}
		})
	}
}

func TestBackend_VersionMismatch(t *testing.T) {
	s := createTestStore(t)
	e := createTestEntry("e1", 5)
	importTestEntry(t, s, e)

	stale := e.Sys
	stale.Version = 4
	_, err := NewBackend(s).Do(context.Background(), request(t, entitystate.ActionPublish, stale))
	if !IsVersionMismatch(err) {
		t.Errorf("Do() error = %v, want VersionMismatch", err)
	}
}

func TestBackend_NotFound(t *testing.T) {
	s := createTestStore(t)
	b := NewBackend(s)

	_, err := b.Do(context.Background(), request(t, entitystate.ActionPublish, createTestEntry("ghost", 1).Sys))
	if !IsNotFound(err) {
		t.Errorf("missing entity error = %v, want NotFound", err)
	}

	asset := createTestEntry("a1", 1)
	asset.Sys.Type = ir.EntityTypeAsset
	importTestEntry(t, s, asset)
	req := request(t, entitystate.ActionPublish, asset.Sys)
	req.Collection = "entries"
	_, err = b.Do(context.Background(), req)
	if !IsNotFound(err) {
		t.Errorf("wrong collection error = %v, want NotFound", err)
	}
}

func TestBackend_DeleteLeavesTombstone(t *testing.T) {
	s := createTestStore(t)
	e := createTestEntry("e1", 1)
	importTestEntry(t, s, e)
	b := NewBackend(s)

	sys, err := b.Do(context.Background(), request(t, entitystate.ActionDelete, e.Sys))
	if err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if sys != nil {
		t.Errorf("delete returned sys %+v, want nil", sys)
	}

	stored, err := s.Get(context.Background(), "e1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got := entitystate.MustCompute(stored.Sys); got != entitystate.StateDeleted {
		t.Errorf("state = %s, want Deleted", got)
	}

	_, err = b.Do(context.Background(), request(t, entitystate.ActionPublish, stored.Sys))
	if !IsNotFound(err) {
		t.Errorf("call on tombstone error = %v, want NotFound", err)
	}
	if _, err := s.SaveFields(context.Background(), "e1", stored.Sys.Version, nil); !IsNotFound(err) {
		t.Errorf("save on tombstone error = %v, want NotFound", err)
	}
}

func TestBackend_Validator(t *testing.T) {
	s := createTestStore(t)
	e := createTestEntry("e1", 1)
	importTestEntry(t, s, e)

	b := NewBackend(s, WithValidator(func(ir.Entity) error {
		return errors.New("title is required")
	}))
	_, err := b.Do(context.Background(), request(t, entitystate.ActionPublish, e.Sys))

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != CodeValidationFailed {
		t.Fatalf("Do() error = %v, want ValidationFailed", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", apiErr.Status)
	}

	if _, err := b.Do(context.Background(), request(t, entitystate.ActionArchive, e.Sys)); err != nil {
		t.Errorf("validator must only gate publish: %v", err)
	}
}

func TestBackend_PlannerSequences(t *testing.T) {
	s := createTestStore(t)
	e := createTestEntry("e1", 3)
	e.Sys.PublishedVersion = ir.V(1)
	importTestEntry(t, s, e)
	planner := entitystate.NewPlanner(NewBackend(s))
	ctx := context.Background()

	sys, err := planner.Apply(ctx, entitystate.ActionArchive, entitystate.StateChanged, e)
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if got := entitystate.MustCompute(*sys); got != entitystate.StateArchived {
		t.Errorf("state = %s, want Archived", got)
	}

	current, _ := s.Get(ctx, "e1")
	sys, err = planner.Apply(ctx, entitystate.ActionPublish, entitystate.StateArchived, current)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if got := entitystate.MustCompute(*sys); got != entitystate.StatePublished {
		t.Errorf("state = %s, want Published", got)
	}

	log, err := s.Transitions(ctx, "e1")
	if err != nil {
		t.Fatalf("Transitions() failed: %v", err)
	}
	want := []struct {
		action   entitystate.Action
		from, to entitystate.State
	}{
		{entitystate.ActionUnpublish, entitystate.StateChanged, entitystate.StateDraft},
		{entitystate.ActionArchive, entitystate.StateDraft, entitystate.StateArchived},
		{entitystate.ActionUnarchive, entitystate.StateArchived, entitystate.StateDraft},
		{entitystate.ActionPublish, entitystate.StateDraft, entitystate.StatePublished},
	}
	if len(log) != len(want) {
		t.Fatalf("log has %d entries, want %d", len(log), len(want))
	}
	for i, w := range want {
		got := log[i]
		if got.Action != w.action || got.FromState != w.from || got.ToState != w.to {
			t.Errorf("log[%d] = %s %s->%s, want %s %s->%s", i, got.Action, got.FromState, got.ToState, w.action, w.from, w.to)
		}
		if got.Seq != int64(i+1) {
			t.Errorf("log[%d].Seq = %d, want %d", i, got.Seq, i+1)
		}
		if got.Version != got.Sys.Version {
			t.Errorf("log[%d] version %d does not match snapshot %d", i, got.Version, got.Sys.Version)
		}
	}
	if log[3].Sys.Version != 7 {
		t.Errorf("final version = %d, want 7", log[3].Sys.Version)
	}
}

func TestTransitions_IDsAreContentAddressed(t *testing.T) {
	s := createTestStore(t)
	e := createTestEntry("e1", 1)
	importTestEntry(t, s, e)

	if _, err := NewBackend(s).Do(context.Background(), request(t, entitystate.ActionPublish, e.Sys)); err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	log, _ := s.Transitions(context.Background(), "")
	if len(log) != 1 {
		t.Fatalf("log has %d entries, want 1", len(log))
	}

	want := ir.MustTransitionID(ir.TransitionRecord{
		EntityID:  "e1",
		Action:    "publish",
		FromState: "Draft",
		ToState:   "Published",
		Version:   2,
		Seq:       1,
	})
	if log[0].ID != want {
		t.Errorf("id = %s, want %s", log[0].ID, want)
	}
}
