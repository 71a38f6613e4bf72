package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wakefeed/wake/internal/definitions"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledDefinitions holds the compiled stream and activity types.
type CompiledDefinitions struct {
	Streams    []definitions.StreamDef   `json:"streams"`
	Activities []definitions.ActivityDef `json:"activities"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <defs-dir>",
		Short: "Compile definitions to canonical JSON",
		Long: `Compile CUE stream and activity definitions to canonical JSON.

The compiler parses CUE files, checks routing references and aggregation
pivots, and emits the compiled registrations for inspection or for
embedding platforms that register types from JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, defsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	defs, loadErrors := definitions.Load(defsDir, definitions.LoadModeCollectAll)

	if defs == nil && len(loadErrors) > 0 {
		issue := issueFromError(loadErrors[0])
		return outputCompileError(formatter, issue.Code, issue.Message)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", defs.FileCount, defsDir)
	for _, s := range defs.Streams {
		formatter.VerboseLog("Compiling stream type: %s", s.Name)
	}
	for _, a := range defs.Activities {
		formatter.VerboseLog("Compiling activity type: %s", a.Name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompiledDefinitions{
		Streams:    defs.Streams,
		Activities: defs.Activities,
	}

	if opts.Output != "" {
		if err := writeCompiled(result, opts.Output); err != nil {
			return outputCompileError(formatter, definitions.ErrCodeGeneric, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompiledDefinitions, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d stream type(s), %d activity type(s)\n\n",
		len(result.Streams), len(result.Activities))

	if len(result.Streams) > 0 {
		fmt.Fprintln(formatter.Writer, "Streams:")
		for _, s := range result.Streams {
			if s.Transient {
				fmt.Fprintf(formatter.Writer, "  %s (transient)\n", s.Name)
			} else {
				fmt.Fprintf(formatter.Writer, "  %s\n", s.Name)
			}
		}
		fmt.Fprintln(formatter.Writer)
	}

	if len(result.Activities) > 0 {
		fmt.Fprintln(formatter.Writer, "Activities:")
		for _, a := range result.Activities {
			fmt.Fprintf(formatter.Writer, "  %s: %d stream(s), %d pivot(s)\n",
				a.Name, len(a.Spec.Streams), len(a.Spec.GroupBy))
		}
		fmt.Fprintln(formatter.Writer)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote compiled definitions to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			issue := issueFromError(err)
			cliErrors[i] = CLIError{
				Code:    issue.Code,
				Message: issue.Message,
			}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		var loadErr *definitions.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		issue := issueFromError(err)
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// writeCompiled writes the compilation result to a file.
func writeCompiled(result *CompiledDefinitions, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling definitions: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
