package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wakefeed/wake/internal/engine"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	Database  string
	OlderThan time.Duration
}

// PruneResult holds the prune command's payload.
type PruneResult struct {
	Deleted int64 `json:"deleted"`
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune <defs-dir>",
		Short: "Delete feed entries past a retention age",
		Long: `Delete persisted feed entries older than the given age.

A resident engine prunes on its own when the config sets activityTtl;
this command covers deployments without one, or a one-off deeper sweep.

Example:
  wake prune --db ./wake.db ./defs --older-than 720h`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().DurationVar(&opts.OlderThan, "older-than", 0, "age cutoff, e.g. 24h (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("older-than")

	return cmd
}

func runPrune(opts *PruneOptions, defsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.OlderThan <= 0 {
		_ = formatter.Error(errCodeOperation, "age cutoff must be positive", nil)
		return NewExitError(ExitCommandError, "age cutoff must be positive")
	}

	logger := commandLogger(cmd, opts.Verbose)
	eng, cleanup, err := buildEngine(defsDir, opts.Database, engine.DefaultConfig(), logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	deleted, err := eng.PruneEntries(ctx, opts.OlderThan)
	if err != nil {
		_ = formatter.Error(errCodeOperation, fmt.Sprintf("prune failed: %v", err), nil)
		return WrapExitError(ExitFailure, "prune failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(PruneResult{Deleted: deleted})
	}
	fmt.Fprintf(formatter.Writer, "✓ Deleted %d feed entry(ies) older than %s\n", deleted, opts.OlderThan)
	return nil
}
