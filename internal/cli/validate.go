package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wakefeed/wake/internal/definitions"
	"github.com/wakefeed/wake/internal/registry"
)

// ValidationIssue is one definition problem, with source position when
// the compiler could attribute one.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Pos     string `json:"pos,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Streams    int               `json:"streams"`
	Activities int               `json:"activities"`
	Issues     []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <defs-dir>",
		Short: "Validate definitions without writing output",
		Long: `Validate CUE stream and activity definitions.

Compiles every definition in the directory, collects all problems instead
of stopping at the first, and cross-checks that each activity type only
delivers to declared stream types. Nothing is written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, defsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	defs, loadErrors := definitions.Load(defsDir, definitions.LoadModeCollectAll)

	// Directory-level failures: nothing compiled at all.
	if defs == nil && len(loadErrors) > 0 {
		issue := issueFromError(loadErrors[0])
		_ = formatter.Error(issue.Code, issue.Message, nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", issue.Code, issue.Message))
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", defs.FileCount, defsDir)
	for _, s := range defs.Streams {
		formatter.VerboseLog("Validating stream type: %s", s.Name)
	}
	for _, a := range defs.Activities {
		formatter.VerboseLog("Validating activity type: %s", a.Name)
	}

	issues := make([]ValidationIssue, 0, len(loadErrors))
	for _, err := range loadErrors {
		issues = append(issues, issueFromError(err))
	}

	// The compiler checks definitions one at a time. Registration catches
	// what it cannot: duplicate names and activity streams with no
	// declared stream type.
	if len(issues) == 0 {
		reg := registry.New()
		if err := defs.Apply(reg); err != nil {
			issues = append(issues, ValidationIssue{Code: definitions.ErrCodeGeneric, Message: err.Error()})
		} else if err := reg.Seal(); err != nil {
			issues = append(issues, ValidationIssue{Code: definitions.ErrCodeGeneric, Message: err.Error()})
		}
	}

	if len(issues) > 0 {
		return outputValidationIssues(formatter, defs, issues)
	}

	return outputValidateSuccess(formatter, defs)
}

// issueFromError converts a load error into a reportable issue.
func issueFromError(err error) ValidationIssue {
	var loadErr *definitions.LoadError
	if errors.As(err, &loadErr) {
		issue := ValidationIssue{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			issue.Pos = fmt.Sprintf("%s:%d:%d", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		return issue
	}
	return ValidationIssue{Code: definitions.ErrCodeGeneric, Message: err.Error()}
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, defs *definitions.Definitions) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{
			Valid:      true,
			Streams:    len(defs.Streams),
			Activities: len(defs.Activities),
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ All definitions valid: %d stream type(s), %d activity type(s)\n",
		len(defs.Streams), len(defs.Activities))
	return nil
}

// outputValidationIssues outputs validation failures.
func outputValidationIssues(formatter *OutputFormatter, defs *definitions.Definitions, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:      false,
			Streams:    len(defs.Streams),
			Activities: len(defs.Activities),
			Issues:     issues,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(issues)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		if issue.Pos != "" {
			fmt.Fprintln(formatter.Writer, issue.Pos)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(issues)))
}
