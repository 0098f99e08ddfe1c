package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/entitybridge/internal/contenttype"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Entities string // entity JSON to check against the schema
}

// ValidationError is one reported problem.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Entity  string `json:"entity,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid        bool              `json:"valid"`
	ContentTypes []string          `json:"content_types,omitempty"`
	Entities     int               `json:"entities,omitempty"`
	Errors       []ValidationError `json:"errors,omitempty"`
}

// Error codes for entity validation failures.
const (
	ErrCodeInvalidEntity = "E201"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Validate content types and, optionally, entities",
		Long: `Compile the CUE content types and locales in a schema directory and
report every problem found.

With --entities, each entity in the given JSON file (an object or an
array) is also checked against its content type the way publishing
checks it.

Examples:
  entitybridge validate ./schema
  entitybridge validate ./schema --entities ./entries.json --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Entities, "entities", "", "entity JSON file to validate (- for stdin)")

	return cmd
}

func runValidate(opts *ValidateOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	schema, loadErrs := contenttype.Load(schemaDir)
	if schema == nil {
		// Nothing compiled: the directory itself is the problem.
		var loadErr *contenttype.LoadError
		if errors.As(loadErrs[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
		}
		return formatter.Fail(ExitCommandError, contenttype.ErrCodeGeneric, loadErrs[0])
	}

	result := ValidationResult{}
	for _, ct := range schema.ContentTypes {
		formatter.VerboseLog("compiled content type %s (%d fields)", ct.ID, len(ct.Fields))
		result.ContentTypes = append(result.ContentTypes, ct.ID)
	}
	for _, err := range loadErrs {
		result.Errors = append(result.Errors, fromLoadError(err))
	}

	if opts.Entities != "" && len(loadErrs) == 0 {
		data, err := readInput(cmd, opts.Entities)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, fmt.Errorf("read entities: %w", err))
		}
		entities, err := decodeEntities(data)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInput, err)
		}
		result.Entities = len(entities)
		for _, e := range entities {
			formatter.VerboseLog("validating entity %s", e.Sys.ID)
			for _, verr := range splitErrors(schema.Validate(e)) {
				result.Errors = append(result.Errors, ValidationError{
					Code:    ErrCodeInvalidEntity,
					Message: verr.Error(),
					Entity:  e.Sys.ID,
				})
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	if result.Valid {
		return formatter.Success(result, fmt.Sprintf("✓ Schema valid (%d content types)", len(result.ContentTypes)))
	}
	return outputValidationErrors(formatter, result)
}

func fromLoadError(err error) ValidationError {
	var loadErr *contenttype.LoadError
	if errors.As(err, &loadErr) {
		ve := ValidationError{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			ve.Line = loadErr.Pos.Line()
		}
		return ve
	}
	return ValidationError{Code: contenttype.ErrCodeGeneric, Message: err.Error()}
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.IsJSON() {
		first := result.Errors[0]
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range result.Errors {
		switch {
		case err.Line > 0:
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		case err.Entity != "":
			fmt.Fprintf(formatter.Writer, "entity %s\n", err.Entity)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}
	return failure
}
