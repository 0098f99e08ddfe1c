package contenttype

import (
	"errors"
	"fmt"
	"math"

	"github.com/roach88/entitybridge/internal/ir"
)

// FieldError describes one invalid field value.
type FieldError struct {
	FieldID string
	Locale  string
	Message string
}

func (e *FieldError) Error() string {
	if e.Locale == "" {
		return fmt.Sprintf("field %q: %s", e.FieldID, e.Message)
	}
	return fmt.Sprintf("field %q (%s): %s", e.FieldID, e.Locale, e.Message)
}

// Validate checks e against its content type. Field data is keyed by
// internal locale code. Required fields need a value in the default locale
// and, when localized, in every locale not marked optional. Values of known
// scalar types are type-checked.
func (s *Schema) Validate(e ir.Entity) error {
	if e.Sys.Type != ir.EntityTypeEntry {
		return nil
	}
	ct, ok := s.ContentType(e.Sys.ContentTypeID)
	if !ok {
		return fmt.Errorf("unknown content type %q", e.Sys.ContentTypeID)
	}

	var errs []error
	for id := range e.Fields {
		if _, ok := ct.FieldByID(id); !ok {
			errs = append(errs, &FieldError{FieldID: id, Message: "not defined on content type " + ct.ID})
		}
	}

	for _, f := range ct.Fields {
		if f.Disabled || f.Omitted {
			continue
		}
		values := e.Fields[f.ID]

		if f.Required {
			for _, loc := range s.requiredLocales(f) {
				if isEmpty(values[loc]) {
					errs = append(errs, &FieldError{FieldID: f.ID, Locale: loc, Message: "is required"})
				}
			}
		}
		for loc, value := range values {
			if isEmpty(value) {
				continue
			}
			if err := checkType(f.Type, value); err != nil {
				errs = append(errs, &FieldError{FieldID: f.ID, Locale: loc, Message: err.Error()})
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Schema) requiredLocales(f ir.Field) []string {
	if !f.Localized {
		return []string{internalCode(s.Locales.Default)}
	}
	var codes []string
	for _, loc := range s.Locales.Available {
		if loc.Default || !loc.Optional {
			codes = append(codes, internalCode(loc))
		}
	}
	return codes
}

func internalCode(loc ir.Locale) string {
	if loc.InternalCode != "" {
		return loc.InternalCode
	}
	return loc.Code
}

func isEmpty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	}
	return false
}

func checkType(fieldType string, v any) error {
	switch fieldType {
	case "Symbol", "Text", "Date":
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
	case "Boolean":
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
	case "Integer":
		n, ok := toFloat(v)
		if !ok || n != math.Trunc(n) {
			return fmt.Errorf("expected integer, got %v", v)
		}
	case "Number":
		if _, ok := toFloat(v); !ok {
			return fmt.Errorf("expected number, got %T", v)
		}
	case "Array":
		if _, ok := v.([]any); !ok {
			return fmt.Errorf("expected array, got %T", v)
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
