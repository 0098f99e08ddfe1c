package contenttype

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/entitybridge/internal/ir"
)

// Error codes reported by Load.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	ErrCodeMissingField  = "E101" // Required attribute missing
	ErrCodeNoFields      = "E102" // Content type has no fields
	ErrCodeInvalidType   = "E103" // Unsupported field type
	ErrCodeDisplayField  = "E104" // Display field not defined
	ErrCodeDuplicateID   = "E105" // Two fields share a public id
	ErrCodeLocales       = "E110" // Locale settings invalid
	ErrCodeNoContentType = "E111" // Nothing to load
)

// LoadError represents an error that occurred while loading a schema.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Schema is the compiled content model of a space.
type Schema struct {
	ContentTypes []ir.ContentType
	Locales      ir.LocaleSettings
}

// ContentType returns the content type with the given id.
func (s *Schema) ContentType(id string) (ir.ContentType, bool) {
	for _, ct := range s.ContentTypes {
		if ct.ID == id {
			return ct, true
		}
	}
	return ir.ContentType{}, false
}

// Load compiles every CUE file in dir into a Schema. All compile errors
// are collected; the returned Schema holds whatever compiled cleanly.
func Load(dir string) (*Schema, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	return Compile(value)
}

// LoadString compiles a single CUE source. Used for inline schemas in
// scenario files and tests.
func LoadString(src string) (*Schema, []error) {
	value := cuecontext.New().CompileString(src)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}
	return Compile(value)
}

// Compile extracts content types and locales from a built CUE value.
func Compile(value cue.Value) (*Schema, []error) {
	var errs []error
	schema := &Schema{}

	ctVal := value.LookupPath(cue.ParsePath("contentType"))
	if ctVal.Exists() {
		iter, err := ctVal.Fields()
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating content types: %v", err)})
		} else {
			for iter.Next() {
				ct, err := CompileContentType(iter.Label(), iter.Value())
				if err != nil {
					errs = append(errs, convertCompileError(err, "contentType."+iter.Label()))
					continue
				}
				schema.ContentTypes = append(schema.ContentTypes, *ct)
			}
		}
	}

	localesVal := value.LookupPath(cue.ParsePath("locales"))
	if localesVal.Exists() {
		locales, err := CompileLocales(localesVal)
		if err != nil {
			errs = append(errs, convertCompileError(err, "locales"))
		} else {
			schema.Locales = locales
		}
	} else {
		errs = append(errs, &LoadError{Code: ErrCodeLocales, Message: "locales are required"})
	}

	if len(schema.ContentTypes) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoContentType, Message: "no content types found in schema"})
	}
	return schema, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func convertCompileError(err error, context string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "name":
		return ErrCodeMissingField
	case "fields":
		return ErrCodeNoFields
	case "type":
		return ErrCodeInvalidType
	case "displayField":
		return ErrCodeDisplayField
	case "apiName":
		return ErrCodeDuplicateID
	case "locales", "fallback":
		return ErrCodeLocales
	default:
		return ErrCodeGeneric
	}
}
