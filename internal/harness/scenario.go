package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/extension"
	"github.com/roach88/entitybridge/internal/ir"
)

// Scenario defines a lifecycle test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is the CUE directory holding content types and locales.
	// Relative paths are resolved against the scenario file.
	Schema string `yaml:"schema"`

	// Entry is the entity the surface edits. Its content type must be
	// defined by the schema.
	Entry ir.Entity `yaml:"entry"`

	// Location defaults to entry-editor, or entry-field when Current is set.
	Location string `yaml:"location,omitempty"`

	// Current binds the surface to one field and locale (internal ids).
	Current *ir.FieldLocale `yaml:"current,omitempty"`

	// Permissions restricts the acting user. Everything is allowed when nil.
	Permissions *PermissionSpec `yaml:"permissions,omitempty"`

	// Flow is the sequence of peer calls.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the trace and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// PermissionSpec is the YAML form of extension.StaticPermissions.
type PermissionSpec struct {
	ReadOnly       bool     `yaml:"readOnly,omitempty"`
	Denied         []string `yaml:"denied,omitempty"`
	ReadOnlyFields []string `yaml:"readOnlyFields,omitempty"`
}

// Permissions converts the YAML form. Unknown action names are rejected.
func (p *PermissionSpec) Permissions() (extension.Permissions, error) {
	if p == nil {
		return extension.AllowAll{}, nil
	}
	perms := extension.StaticPermissions{ReadOnly: p.ReadOnly, ReadOnlyFields: p.ReadOnlyFields}
	for _, name := range p.Denied {
		action, err := entitystate.ParseAction(name)
		if err != nil {
			return nil, err
		}
		perms.Denied = append(perms.Denied, action)
	}
	return perms, nil
}

// FlowStep is one RPC call made by the peer.
type FlowStep struct {
	// Call is the method name, e.g. "setValue" or "publishEntry".
	Call string `yaml:"call"`

	// Params are sent as-is. Field and locale ids are public ids.
	Params []any `yaml:"params,omitempty"`

	// Expect validates the response. Nothing is checked when nil.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected response of a call.
type ExpectClause struct {
	// Result is compared after a JSON round trip. Maps are subset-matched.
	Result any `yaml:"result,omitempty"`

	// Error is the expected RPC error code. Empty means success.
	Error string `yaml:"error,omitempty"`

	// State is the lifecycle state expected after the call.
	State string `yaml:"state,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Request is a rendered backend request, e.g. "PUT /entries/e1/published"
	// (request_contains, request_count).
	Request string `yaml:"request,omitempty"`

	// Requests is the expected request order (request_order).
	Requests []string `yaml:"requests,omitempty"`

	// Method is a host → peer method name (notify_count).
	Method string `yaml:"method,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`

	// State is the expected final lifecycle state (entity_state).
	State string `yaml:"state,omitempty"`

	// Table is entities or transitions (final_state).
	Table string `yaml:"table,omitempty"`

	// Where filters rows; all fields must match exactly (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values, subset-matched (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertRequestContains = "request_contains"
	AssertRequestOrder    = "request_order"
	AssertRequestCount    = "request_count"
	AssertNotifyCount     = "notify_count"
	AssertEntityState     = "entity_state"
	AssertFinalState      = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Unknown keys are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
		return fmt.Errorf("schema directory not found: %s", s.Schema)
	}
	if s.Entry.Sys.ID == "" {
		return fmt.Errorf("entry.sys.id is required")
	}
	if err := s.Entry.Sys.Validate(); err != nil {
		return fmt.Errorf("entry: %w", err)
	}
	if _, err := s.Permissions.Permissions(); err != nil {
		return fmt.Errorf("permissions: %w", err)
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	for i, step := range s.Flow {
		if step.Call == "" {
			return fmt.Errorf("flow[%d]: call is required", i)
		}
		if step.Expect != nil && step.Expect.State != "" {
			if _, err := entitystate.ParseState(step.Expect.State); err != nil {
				return fmt.Errorf("flow[%d].expect: %w", i, err)
			}
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRequestContains:
		if a.Request == "" {
			return fmt.Errorf("assertions[%d]: request is required for request_contains", index)
		}
	case AssertRequestOrder:
		if len(a.Requests) == 0 {
			return fmt.Errorf("assertions[%d]: requests list is required for request_order", index)
		}
	case AssertRequestCount:
		if a.Request == "" {
			return fmt.Errorf("assertions[%d]: request is required for request_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for request_count", index)
		}
	case AssertNotifyCount:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: method is required for notify_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for notify_count", index)
		}
	case AssertEntityState:
		if _, err := entitystate.ParseState(a.State); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
