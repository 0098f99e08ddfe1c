package ir

// ContentType describes the fields an entry may carry.
type ContentType struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Description  string  `json:"description,omitempty" yaml:"description,omitempty"`
	DisplayField string  `json:"displayField,omitempty" yaml:"displayField,omitempty"`
	Fields       []Field `json:"fields" yaml:"fields"`
}

// Field is a content type field definition.
//
// ID is the stable internal identifier. APIName is the renameable public
// alias shown to sandboxed code; when empty, ID doubles as the public id.
type Field struct {
	ID          string           `json:"id" yaml:"id"`
	APIName     string           `json:"apiName,omitempty" yaml:"apiName,omitempty"`
	Name        string           `json:"name" yaml:"name"`
	Type        string           `json:"type" yaml:"type"`
	Localized   bool             `json:"localized" yaml:"localized"`
	Required    bool             `json:"required" yaml:"required"`
	Disabled    bool             `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Omitted     bool             `json:"omitted,omitempty" yaml:"omitted,omitempty"`
	Validations []map[string]any `json:"validations,omitempty" yaml:"validations,omitempty"`
}

// PublicID returns the identifier exposed to sandboxed code.
func (f Field) PublicID() string {
	if f.APIName != "" {
		return f.APIName
	}
	return f.ID
}

// FieldByID returns the field with the given internal id.
func (c ContentType) FieldByID(id string) (Field, bool) {
	for _, f := range c.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// Locale is a content locale.
//
// Code is the public code (e.g. "en-US"); InternalCode is the host's stable
// identifier for the same locale.
type Locale struct {
	Code         string `json:"code" yaml:"code"`
	InternalCode string `json:"internalCode" yaml:"internalCode"`
	Name         string `json:"name" yaml:"name"`
	Default      bool   `json:"default,omitempty" yaml:"default,omitempty"`
	Optional     bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
	FallbackCode string `json:"fallbackCode,omitempty" yaml:"fallbackCode,omitempty"`
}

// LocaleSettings is the locale configuration of a space.
type LocaleSettings struct {
	Available []Locale `json:"available" yaml:"available"`
	Default   Locale   `json:"default" yaml:"default"`
}

// FieldLocale binds a sandboxed surface to one field in one locale.
// Both identifiers are internal.
type FieldLocale struct {
	FieldID    string `json:"fieldId" yaml:"fieldId"`
	LocaleCode string `json:"localeCode" yaml:"localeCode"`
}

// User is the acting user. Only a whitelisted subset is ever sent to a peer.
type User struct {
	ID              string         `json:"id" yaml:"id"`
	FirstName       string         `json:"firstName" yaml:"firstName"`
	LastName        string         `json:"lastName" yaml:"lastName"`
	Email           string         `json:"email" yaml:"email"`
	AvatarURL       string         `json:"avatarUrl" yaml:"avatarUrl"`
	SpaceMembership Membership     `json:"spaceMembership" yaml:"spaceMembership"`
	Extra           map[string]any `json:"-" yaml:"extra,omitempty"`
}

// Membership describes the user's role in the space.
type Membership struct {
	ID    string   `json:"id" yaml:"id"`
	Admin bool     `json:"admin" yaml:"admin"`
	Roles []string `json:"roles" yaml:"roles"`
}
