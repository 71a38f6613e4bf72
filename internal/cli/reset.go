package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wakefeed/wake/internal/engine"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Database string
	Streams  []string
}

// ResetResult holds the reset command's payload.
type ResetResult struct {
	Streams int `json:"streams"`
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset <defs-dir>",
		Short: "Discard pending aggregation state",
		Long: `Discard pending aggregation state for the named streams.

Open windows are thrown away without flushing; entries already written to
the feed stay. The next activity on a reset stream starts a fresh window,
so use this to force a split after backfills or misconfigured deliveries.

Example:
  wake reset --db ./wake.db ./defs --streams "user:acme:alice#activity"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringSliceVar(&opts.Streams, "streams", nil, "stream IDs to reset (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("streams")

	return cmd
}

func runReset(opts *ResetOptions, defsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
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

	formatter.VerboseLog("Resetting %d stream(s)", len(opts.Streams))
	if err := eng.ResetAggregation(ctx, opts.Streams); err != nil {
		_ = formatter.Error(errCodeOperation, fmt.Sprintf("reset failed: %v", err), nil)
		return WrapExitError(ExitFailure, "reset failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(ResetResult{Streams: len(opts.Streams)})
	}
	fmt.Fprintf(formatter.Writer, "✓ Discarded pending aggregation state for %d stream(s)\n", len(opts.Streams))
	return nil
}
