package ir

import (
	"errors"
	"fmt"
)

// EntityType distinguishes the two kinds of content entity.
type EntityType string

const (
	EntityTypeEntry EntityType = "Entry"
	EntityTypeAsset EntityType = "Asset"
)

// Collection returns the REST collection name for the entity type.
func (t EntityType) Collection() string {
	switch t {
	case EntityTypeEntry:
		return "entries"
	case EntityTypeAsset:
		return "assets"
	default:
		return ""
	}
}

// ErrMissingType is returned when EntitySys carries no entity type.
var ErrMissingType = errors.New("entity sys: missing type")

// EntitySys is the metadata subset that determines lifecycle state.
//
// Version markers are absent (nil) when the entity has never been published,
// archived or deleted. Nothing outside this struct affects lifecycle state.
type EntitySys struct {
	ID               string     `json:"id" yaml:"id"`
	Type             EntityType `json:"type" yaml:"type"`
	Version          int64      `json:"version" yaml:"version"`
	PublishedVersion *int64     `json:"publishedVersion,omitempty" yaml:"publishedVersion,omitempty"`
	ArchivedVersion  *int64     `json:"archivedVersion,omitempty" yaml:"archivedVersion,omitempty"`
	DeletedVersion   *int64     `json:"deletedVersion,omitempty" yaml:"deletedVersion,omitempty"`
	ContentTypeID    string     `json:"contentTypeId,omitempty" yaml:"contentTypeId,omitempty"`
}

// Validate rejects metadata that state computation cannot interpret.
func (s EntitySys) Validate() error {
	switch s.Type {
	case "":
		return ErrMissingType
	case EntityTypeEntry, EntityTypeAsset:
		return nil
	default:
		return fmt.Errorf("entity sys: unknown type %q", s.Type)
	}
}

// Clone returns a deep copy; version markers are not shared.
func (s EntitySys) Clone() EntitySys {
	out := s
	out.PublishedVersion = cloneVersion(s.PublishedVersion)
	out.ArchivedVersion = cloneVersion(s.ArchivedVersion)
	out.DeletedVersion = cloneVersion(s.DeletedVersion)
	return out
}

// V returns a pointer to v, for populating optional version markers.
func V(v int64) *int64 {
	return &v
}

func cloneVersion(v *int64) *int64 {
	if v == nil {
		return nil
	}
	return V(*v)
}

// Entity is a full content entity: metadata plus localized field data.
//
// Fields is keyed by internal field id, then by internal locale code.
type Entity struct {
	Sys    EntitySys                 `json:"sys" yaml:"sys"`
	Fields map[string]map[string]any `json:"fields" yaml:"fields"`
}

// Clone returns a copy of the entity whose field maps can be mutated freely.
// Field values themselves are shared.
func (e Entity) Clone() Entity {
	out := Entity{Sys: e.Sys.Clone(), Fields: make(map[string]map[string]any, len(e.Fields))}
	for id, locales := range e.Fields {
		cp := make(map[string]any, len(locales))
		for code, v := range locales {
			cp[code] = v
		}
		out.Fields[id] = cp
	}
	return out
}

// ValueAt reads the value at a document path. Supported shapes are
// ["sys"], ["fields"], ["fields", id] and ["fields", id, locale].
// Returned maps are shared with the entity.
func (e Entity) ValueAt(p Path) (any, bool) {
	if len(p) == 1 && p[0] == "sys" {
		return e.Sys, true
	}
	if !p.IsField() {
		return nil, false
	}
	switch len(p) {
	case 1:
		return e.Fields, e.Fields != nil
	case 2:
		locales, ok := e.Fields[p[1]]
		return locales, ok
	case 3:
		locales, ok := e.Fields[p[1]]
		if !ok {
			return nil, false
		}
		v, ok := locales[p[2]]
		return v, ok
	default:
		return nil, false
	}
}
