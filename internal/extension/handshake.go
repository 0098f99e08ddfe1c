package extension

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/roach88/entitybridge/internal/ir"
)

// Handshake is the initial state sent to the peer on connect. Every field
// and locale identifier in it is public.
type Handshake struct {
	Location        string            `json:"location"`
	User            UserInfo          `json:"user"`
	Field           *CurrentField     `json:"field"`
	FieldInfo       []FieldInfo       `json:"fieldInfo"`
	Locales         LocalesInfo       `json:"locales"`
	Entry           EntryInfo         `json:"entry"`
	ContentType     PublicContentType `json:"contentType"`
	EditorInterface map[string]any    `json:"editorInterface"`
	Parameters      Parameters        `json:"parameters"`
	IDs             HandshakeIDs      `json:"ids"`
}

// SysLink is a minimal sys block.
type SysLink struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// UserInfo is the whitelisted view of the acting user.
type UserInfo struct {
	Sys             SysLink        `json:"sys"`
	FirstName       string         `json:"firstName"`
	LastName        string         `json:"lastName"`
	Email           string         `json:"email"`
	AvatarURL       string         `json:"avatarUrl"`
	SpaceMembership MembershipInfo `json:"spaceMembership"`
}

// MembershipInfo is the public view of a space membership.
type MembershipInfo struct {
	Sys   SysLink  `json:"sys"`
	Admin bool     `json:"admin"`
	Roles []string `json:"roles"`
}

// CurrentField describes the field/locale the surface is bound to.
type CurrentField struct {
	ID          string           `json:"id"`
	Locale      string           `json:"locale"`
	Value       any              `json:"value"`
	Type        string           `json:"type"`
	Required    bool             `json:"required"`
	Validations []map[string]any `json:"validations"`
}

// FieldInfo describes one content type field and its values.
type FieldInfo struct {
	ID          string           `json:"id"`
	Localized   bool             `json:"localized"`
	Locales     []string         `json:"locales"`
	Values      map[string]any   `json:"values"`
	Type        string           `json:"type"`
	Required    bool             `json:"required"`
	Validations []map[string]any `json:"validations"`
}

// LocalesInfo is the public locale configuration.
type LocalesInfo struct {
	Available []string          `json:"available"`
	Default   string            `json:"default"`
	Names     map[string]string `json:"names"`
	Fallbacks map[string]string `json:"fallbacks"`
	Optional  map[string]bool   `json:"optional"`
}

// EntryInfo carries entry metadata only. Field data travels in FieldInfo,
// already translated.
type EntryInfo struct {
	Sys ir.EntitySys `json:"sys"`
}

// PublicContentType is a content type with internal ids replaced.
type PublicContentType struct {
	Sys          SysLink       `json:"sys"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	DisplayField string        `json:"displayField"`
	Fields       []PublicField `json:"fields"`
}

// PublicField is one field of a PublicContentType.
type PublicField struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Localized   bool             `json:"localized"`
	Required    bool             `json:"required"`
	Disabled    bool             `json:"disabled"`
	Omitted     bool             `json:"omitted"`
	Validations []map[string]any `json:"validations"`
}

// HandshakeIDs bundles the identifiers a peer needs to call back into the
// content API.
type HandshakeIDs struct {
	Space       string `json:"space"`
	Environment string `json:"environment"`
	ContentType string `json:"contentType"`
	Entry       string `json:"entry"`
	Field       string `json:"field,omitempty"`
	User        string `json:"user"`
	Extension   string `json:"extension"`
}

// Handshake builds the connect payload from the adapter's configuration and
// the given entry snapshot.
func (a *Adapter) Handshake(entry ir.Entity) Handshake {
	cfg := a.cfg
	h := Handshake{
		Location:        cfg.Location,
		User:            sanitizeUser(cfg.User),
		FieldInfo:       a.fieldInfo(entry),
		Locales:         a.localesInfo(),
		Entry:           EntryInfo{Sys: entry.Sys.Clone()},
		ContentType:     a.publicContentType(),
		EditorInterface: cfg.EditorInterface,
		Parameters:      cfg.Parameters,
		IDs: HandshakeIDs{
			Space:       cfg.IDs.Space,
			Environment: cfg.IDs.Environment,
			ContentType: cfg.ContentType.ID,
			Entry:       entry.Sys.ID,
			User:        cfg.User.ID,
			Extension:   cfg.IDs.Extension,
		},
	}
	if h.EditorInterface == nil {
		h.EditorInterface = map[string]any{}
	}
	if h.Parameters.Instance == nil {
		h.Parameters.Instance = map[string]any{}
	}
	if h.Parameters.Installation == nil {
		h.Parameters.Installation = map[string]any{}
	}

	if cur := cfg.Current; cur != nil {
		field, _ := cfg.ContentType.FieldByID(cur.FieldID)
		publicID, _ := a.ids.Field.ToPublic(cur.FieldID)
		locale, _ := a.ids.Locale.ToPublic(cur.LocaleCode)
		value, _ := entry.ValueAt(ir.FieldPath(cur.FieldID, cur.LocaleCode))
		h.Field = &CurrentField{
			ID:          publicID,
			Locale:      locale,
			Value:       value,
			Type:        field.Type,
			Required:    field.Required,
			Validations: validations(field),
		}
		h.IDs.Field = publicID
	}
	return h
}

func sanitizeUser(u ir.User) UserInfo {
	roles := u.SpaceMembership.Roles
	if roles == nil {
		roles = []string{}
	}
	return UserInfo{
		Sys:       SysLink{ID: u.ID, Type: "User"},
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		SpaceMembership: MembershipInfo{
			Sys:   SysLink{ID: u.SpaceMembership.ID, Type: "SpaceMembership"},
			Admin: u.SpaceMembership.Admin,
			Roles: roles,
		},
	}
}

func (a *Adapter) fieldInfo(entry ir.Entity) []FieldInfo {
	out := make([]FieldInfo, 0, len(a.cfg.ContentType.Fields))
	for _, f := range a.cfg.ContentType.Fields {
		publicID, ok := a.ids.Field.ToPublic(f.ID)
		if !ok {
			continue
		}
		locales := make([]string, 0)
		for _, code := range a.applicableLocales(f) {
			if pub, ok := a.ids.Locale.ToPublic(code); ok {
				locales = append(locales, pub)
			}
		}
		out = append(out, FieldInfo{
			ID:          publicID,
			Localized:   f.Localized,
			Locales:     locales,
			Values:      a.ids.Locale.ValuesToPublic(entry.Fields[f.ID]),
			Type:        f.Type,
			Required:    f.Required,
			Validations: validations(f),
		})
	}
	return out
}

// applicableLocales returns the internal locale codes a field can hold a
// value in. A non-localized field only ever uses the default locale.
func (a *Adapter) applicableLocales(f ir.Field) []string {
	if !f.Localized {
		return []string{internalCode(a.cfg.Locales.Default)}
	}
	out := make([]string, len(a.cfg.Locales.Available))
	for i, l := range a.cfg.Locales.Available {
		out[i] = internalCode(l)
	}
	return out
}

func (a *Adapter) localesInfo() LocalesInfo {
	info := LocalesInfo{
		Available: make([]string, 0, len(a.cfg.Locales.Available)),
		Default:   a.cfg.Locales.Default.Code,
		Names:     make(map[string]string, len(a.cfg.Locales.Available)),
		Fallbacks: make(map[string]string),
		Optional:  make(map[string]bool, len(a.cfg.Locales.Available)),
	}
	for _, l := range a.cfg.Locales.Available {
		info.Available = append(info.Available, l.Code)
		info.Names[l.Code] = localeName(l)
		info.Optional[l.Code] = l.Optional
		if l.FallbackCode != "" {
			info.Fallbacks[l.Code] = l.FallbackCode
		}
	}
	return info
}

// localeName returns the configured display name, falling back to the
// English name of the language tag.
func localeName(l ir.Locale) string {
	if l.Name != "" {
		return l.Name
	}
	tag, err := language.Parse(l.Code)
	if err != nil {
		return l.Code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return l.Code
}

func (a *Adapter) publicContentType() PublicContentType {
	ct := a.cfg.ContentType
	out := PublicContentType{
		Sys:         SysLink{ID: ct.ID, Type: "ContentType"},
		Name:        ct.Name,
		Description: ct.Description,
		Fields:      make([]PublicField, 0, len(ct.Fields)),
	}
	if ct.DisplayField != "" {
		out.DisplayField, _ = a.ids.Field.ToPublic(ct.DisplayField)
	}
	for _, f := range ct.Fields {
		out.Fields = append(out.Fields, PublicField{
			ID:          f.PublicID(),
			Name:        f.Name,
			Type:        f.Type,
			Localized:   f.Localized,
			Required:    f.Required,
			Disabled:    f.Disabled,
			Omitted:     f.Omitted,
			Validations: validations(f),
		})
	}
	return out
}

func validations(f ir.Field) []map[string]any {
	if f.Validations == nil {
		return []map[string]any{}
	}
	return f.Validations
}
