// Package idmap translates between host-internal identifiers and the public
// identifiers exposed to sandboxed code.
//
// Two independent bijections are kept: field ids and locale codes. Every
// outbound payload and every inbound request is translated at this single
// seam so the two identifier spaces never leak into each other. Lookups of
// unknown keys report ok=false; callers treat that as a stale or foreign
// identifier and ignore it.
package idmap

import (
	"fmt"

	"github.com/roach88/entitybridge/internal/ir"
)

// Map holds the field and locale bijections. It is immutable after New.
type Map struct {
	Field  *Bijection
	Locale *LocaleMap
}

// Bijection is a total one-to-one mapping between internal and public ids.
type Bijection struct {
	toPublic   map[string]string
	toInternal map[string]string
}

// LocaleMap is the locale bijection plus value-map translation.
type LocaleMap struct {
	*Bijection
}

// CollisionError reports two internal identifiers sharing one public
// identifier, which would break the bijection.
type CollisionError struct {
	Kind     string
	PublicID string
	First    string
	Second   string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("idmap: %s public id %q used by both %q and %q", e.Kind, e.PublicID, e.First, e.Second)
}

// New builds the identifier map from a content type's fields and the
// available locales. A field without an API name is public under its
// internal id.
func New(fields []ir.Field, locales []ir.Locale) (*Map, error) {
	fieldPairs := make([][2]string, len(fields))
	for i, f := range fields {
		fieldPairs[i] = [2]string{f.ID, f.PublicID()}
	}
	fieldMap, err := newBijection("field", fieldPairs)
	if err != nil {
		return nil, err
	}

	localePairs := make([][2]string, len(locales))
	for i, l := range locales {
		internal := l.InternalCode
		if internal == "" {
			internal = l.Code
		}
		localePairs[i] = [2]string{internal, l.Code}
	}
	localeMap, err := newBijection("locale", localePairs)
	if err != nil {
		return nil, err
	}

	return &Map{Field: fieldMap, Locale: &LocaleMap{localeMap}}, nil
}

func newBijection(kind string, pairs [][2]string) (*Bijection, error) {
	b := &Bijection{
		toPublic:   make(map[string]string, len(pairs)),
		toInternal: make(map[string]string, len(pairs)),
	}
	for _, p := range pairs {
		internal, public := p[0], p[1]
		if prev, ok := b.toInternal[public]; ok && prev != internal {
			return nil, &CollisionError{Kind: kind, PublicID: public, First: prev, Second: internal}
		}
		if prev, ok := b.toPublic[internal]; ok && prev != public {
			return nil, &CollisionError{Kind: kind, PublicID: public, First: internal, Second: prev}
		}
		b.toPublic[internal] = public
		b.toInternal[public] = internal
	}
	return b, nil
}

// ToPublic translates an internal id. ok is false for unknown ids.
func (b *Bijection) ToPublic(internal string) (public string, ok bool) {
	public, ok = b.toPublic[internal]
	return public, ok
}

// ToInternal translates a public id. ok is false for unknown ids.
func (b *Bijection) ToInternal(public string) (internal string, ok bool) {
	internal, ok = b.toInternal[public]
	return internal, ok
}

// Len returns the size of the domain.
func (b *Bijection) Len() int {
	return len(b.toPublic)
}

// InternalIDs returns every internal id in unspecified order.
func (b *Bijection) InternalIDs() []string {
	out := make([]string, 0, len(b.toPublic))
	for id := range b.toPublic {
		out = append(out, id)
	}
	return out
}

// ValuesToPublic rekeys a map from internal locale codes to public ones.
// Keys with no public counterpart are dropped. This happens when data was
// saved under a locale that has since been removed. Never fails.
func (l *LocaleMap) ValuesToPublic(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for code, v := range values {
		if public, ok := l.ToPublic(code); ok {
			out[public] = v
		}
	}
	return out
}

// ValuesToInternal is the inverse of ValuesToPublic.
func (l *LocaleMap) ValuesToInternal(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for code, v := range values {
		if internal, ok := l.ToInternal(code); ok {
			out[internal] = v
		}
	}
	return out
}
