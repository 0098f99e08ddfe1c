package extension

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/entitybridge/internal/channel"
	"github.com/roach88/entitybridge/internal/ir"
)

// Channel is the part of *channel.Channel the adapter uses.
type Channel interface {
	Connect(data any) error
	Send(method string, params []any) error
	Handle(method string, fn channel.HandlerFunc) error
}

// Locations a sandboxed surface can be rendered in.
const (
	LocationEntryField   = "entry-field"
	LocationEntrySidebar = "entry-sidebar"
	LocationEntryEditor  = "entry-editor"
	LocationDialog       = "dialog"
	LocationPage         = "page"
)

var locations = map[string]bool{
	LocationEntryField:   true,
	LocationEntrySidebar: true,
	LocationEntryEditor:  true,
	LocationDialog:       true,
	LocationPage:         true,
}

// Parameters are the author-supplied extension parameters.
type Parameters struct {
	Instance     map[string]any `json:"instance" yaml:"instance"`
	Installation map[string]any `json:"installation" yaml:"installation"`
}

// IDs identifies the space, environment and extension.
type IDs struct {
	Space       string `json:"space" yaml:"space"`
	Environment string `json:"environment" yaml:"environment"`
	Extension   string `json:"extension" yaml:"extension"`
}

// Config is everything an Adapter is constructed from.
//
// Channel and Tracker are wired in code. The rest can be loaded from YAML
// with LoadConfigFile. Current is nil for surfaces not bound to a field.
type Config struct {
	Channel         Channel           `yaml:"-"`
	Tracker         Tracker           `yaml:"-"`
	Entry           ir.Entity         `yaml:"entry"`
	ContentType     ir.ContentType    `yaml:"contentType"`
	Current         *ir.FieldLocale   `yaml:"current,omitempty"`
	Locales         ir.LocaleSettings `yaml:"locales"`
	User            ir.User           `yaml:"user"`
	Parameters      Parameters        `yaml:"parameters"`
	IDs             IDs               `yaml:"ids"`
	Location        string            `yaml:"location"`
	EditorInterface map[string]any    `yaml:"editorInterface,omitempty"`
}

// ConfigError lists every problem found in a Config.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, "; "))
	}
	return "extension config: " + strings.Join(parts, "; ")
}

// ErrorCode implements the coded-error convention of the channel.
func (e *ConfigError) ErrorCode() string {
	return "EINVALIDCONFIG"
}

// Validate checks required keys and cross-references. It reports every
// problem at once rather than stopping at the first.
func (c *Config) Validate() error {
	e := &ConfigError{}
	missing := func(ok bool, key string) {
		if !ok {
			e.Missing = append(e.Missing, key)
		}
	}

	missing(c.Channel != nil, "channel")
	missing(c.Entry.Sys.ID != "", "entry.sys.id")
	missing(c.Entry.Sys.Type != "", "entry.sys.type")
	missing(c.ContentType.ID != "", "contentType.id")
	missing(c.Locales.Default.Code != "", "locales.default")
	missing(len(c.Locales.Available) > 0, "locales.available")
	missing(c.User.ID != "", "user.id")
	missing(c.IDs.Space != "", "ids.space")
	missing(c.IDs.Environment != "", "ids.environment")
	missing(c.IDs.Extension != "", "ids.extension")
	missing(c.Location != "", "location")

	if c.Entry.Sys.Type != "" {
		if err := c.Entry.Sys.Validate(); err != nil {
			e.Invalid = append(e.Invalid, err.Error())
		}
	}
	if c.Location != "" && !locations[c.Location] {
		e.Invalid = append(e.Invalid, fmt.Sprintf("location %q", c.Location))
	}
	if c.Locales.Default.Code != "" && !hasLocale(c.Locales.Available, c.Locales.Default.Code) {
		e.Invalid = append(e.Invalid, fmt.Sprintf("default locale %q is not available", c.Locales.Default.Code))
	}
	if c.Current != nil {
		if _, ok := c.ContentType.FieldByID(c.Current.FieldID); !ok {
			e.Invalid = append(e.Invalid, fmt.Sprintf("current field %q is not in the content type", c.Current.FieldID))
		}
		if !hasInternalLocale(c.Locales.Available, c.Current.LocaleCode) {
			e.Invalid = append(e.Invalid, fmt.Sprintf("current locale %q is not available", c.Current.LocaleCode))
		}
	}
	if c.Location == LocationEntryField && c.Current == nil {
		e.Missing = append(e.Missing, "current")
	}

	if len(e.Missing) > 0 || len(e.Invalid) > 0 {
		return e
	}
	return nil
}

// LoadConfigFile reads a YAML config. Unknown keys are rejected so a typo
// fails loudly instead of silently dropping a setting. The returned config
// still needs a Channel before it validates.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfigFile for in-memory YAML.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

func hasLocale(locales []ir.Locale, code string) bool {
	for _, l := range locales {
		if l.Code == code {
			return true
		}
	}
	return false
}

func hasInternalLocale(locales []ir.Locale, code string) bool {
	for _, l := range locales {
		if internalCode(l) == code {
			return true
		}
	}
	return false
}

func internalCode(l ir.Locale) string {
	if l.InternalCode != "" {
		return l.InternalCode
	}
	return l.Code
}
