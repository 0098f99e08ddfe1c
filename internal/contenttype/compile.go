package contenttype

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/entitybridge/internal/ir"
)

// FieldTypes are the accepted field type names.
var FieldTypes = []string{
	"Symbol", "Text", "RichText", "Integer", "Number", "Date",
	"Location", "Boolean", "Link", "Array", "Object",
}

// CompileContentType parses the CUE value of one content type. id is the
// label the value was declared under.
func CompileContentType(id string, v cue.Value) (*ir.ContentType, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	ct := &ir.ContentType{ID: id}

	name, err := requiredString(v, "name")
	if err != nil {
		return nil, err
	}
	ct.Name = name
	if ct.Description, err = optionalString(v, "description"); err != nil {
		return nil, err
	}
	if ct.DisplayField, err = optionalString(v, "displayField"); err != nil {
		return nil, err
	}

	ct.Fields, err = parseFields(v)
	if err != nil {
		return nil, err
	}
	if len(ct.Fields) == 0 {
		return nil, &CompileError{
			Field:   "fields",
			Message: "at least one field is required",
			Pos:     v.Pos(),
		}
	}

	if ct.DisplayField != "" {
		if _, ok := ct.FieldByID(ct.DisplayField); !ok {
			return nil, &CompileError{
				Field:   "displayField",
				Message: fmt.Sprintf("display field %q is not defined", ct.DisplayField),
				Pos:     v.LookupPath(cue.ParsePath("displayField")).Pos(),
			}
		}
	}
	return ct, nil
}

// parseFields extracts field definitions in declaration order.
func parseFields(v cue.Value) ([]ir.Field, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []ir.Field
	publicIDs := map[string]string{}
	for iter.Next() {
		fv := iter.Value()
		f := ir.Field{ID: iter.Label()}

		if f.Name, err = optionalString(fv, "name"); err != nil {
			return nil, err
		}
		if f.Name == "" {
			f.Name = f.ID
		}
		if f.APIName, err = optionalString(fv, "apiName"); err != nil {
			return nil, err
		}

		typeName, err := requiredString(fv, "type")
		if err != nil {
			return nil, err
		}
		if !slices.Contains(FieldTypes, typeName) {
			return nil, &CompileError{
				Field:   "type",
				Message: fmt.Sprintf("field %q has unsupported type %q", f.ID, typeName),
				Pos:     fv.LookupPath(cue.ParsePath("type")).Pos(),
			}
		}
		f.Type = typeName

		for _, flag := range []struct {
			name string
			dst  *bool
		}{
			{"localized", &f.Localized},
			{"required", &f.Required},
			{"disabled", &f.Disabled},
			{"omitted", &f.Omitted},
		} {
			if *flag.dst, err = optionalBool(fv, flag.name); err != nil {
				return nil, err
			}
		}

		validationsVal := fv.LookupPath(cue.ParsePath("validations"))
		if validationsVal.Exists() {
			if err := validationsVal.Decode(&f.Validations); err != nil {
				return nil, formatCUEError(err)
			}
		}

		if other, dup := publicIDs[f.PublicID()]; dup {
			return nil, &CompileError{
				Field:   "apiName",
				Message: fmt.Sprintf("fields %q and %q share public id %q", other, f.ID, f.PublicID()),
				Pos:     fv.Pos(),
			}
		}
		publicIDs[f.PublicID()] = f.ID
		fields = append(fields, f)
	}
	return fields, nil
}

// CompileLocales parses the locales struct. Exactly one locale must be the
// default and every fallback must name a declared locale.
func CompileLocales(v cue.Value) (ir.LocaleSettings, error) {
	var settings ir.LocaleSettings
	if err := v.Err(); err != nil {
		return settings, formatCUEError(err)
	}

	iter, err := v.Fields()
	if err != nil {
		return settings, formatCUEError(err)
	}

	defaults := 0
	for iter.Next() {
		lv := iter.Value()
		loc := ir.Locale{Code: iter.Label()}

		if loc.InternalCode, err = optionalString(lv, "internalCode"); err != nil {
			return settings, err
		}
		if loc.Name, err = optionalString(lv, "name"); err != nil {
			return settings, err
		}
		if loc.FallbackCode, err = optionalString(lv, "fallback"); err != nil {
			return settings, err
		}
		if loc.Default, err = optionalBool(lv, "default"); err != nil {
			return settings, err
		}
		if loc.Optional, err = optionalBool(lv, "optional"); err != nil {
			return settings, err
		}

		if loc.Default {
			defaults++
			settings.Default = loc
		}
		settings.Available = append(settings.Available, loc)
	}

	if len(settings.Available) == 0 {
		return settings, &CompileError{Field: "locales", Message: "at least one locale is required", Pos: v.Pos()}
	}
	if defaults != 1 {
		return settings, &CompileError{
			Field:   "locales",
			Message: fmt.Sprintf("exactly one default locale is required, found %d", defaults),
			Pos:     v.Pos(),
		}
	}
	for _, loc := range settings.Available {
		if loc.FallbackCode == "" {
			continue
		}
		if !slices.ContainsFunc(settings.Available, func(l ir.Locale) bool { return l.Code == loc.FallbackCode }) {
			return settings, &CompileError{
				Field:   "fallback",
				Message: fmt.Sprintf("locale %q falls back to unknown locale %q", loc.Code, loc.FallbackCode),
				Pos:     v.Pos(),
			}
		}
	}
	return settings, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// First error with a position wins
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
