package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wakefeed/wake/internal/activity"
	"github.com/wakefeed/wake/internal/engine"
)

// FeedOptions holds flags for the feed command.
type FeedOptions struct {
	*RootOptions
	Database string
	Stream   string
	As       string
	Start    string
	Limit    int
}

// FeedResult holds one page of a feed.
type FeedResult struct {
	Stream    string                `json:"stream"`
	Entries   []*activity.FeedEntry `json:"entries"`
	NextToken string                `json:"next_token,omitempty"`
}

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed <defs-dir>",
		Short: "Read one page of a stream's feed",
		Long: `Read one page of a stream's feed, newest first.

The stream ID names the owning resource and the stream type, e.g.
"user:acme:alice#activity". The read runs as the stream's owner unless
--as names another principal; the stream type's authorizer decides what
that principal may see. Page through long feeds by passing the printed
next-page token back via --start.

Example:
  wake feed --db ./wake.db ./defs --stream "user:acme:alice#activity"
  wake feed --db ./wake.db ./defs --stream "user:acme:alice#activity" --as "user:acme:bob" --limit 5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Stream, "stream", "", "stream ID to read (required)")
	cmd.Flags().StringVar(&opts.As, "as", "", "principal reading the feed (default: stream owner)")
	cmd.Flags().StringVar(&opts.Start, "start", "", "pagination token from a previous page")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum entries per page")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("stream")

	return cmd
}

func runFeed(opts *FeedOptions, defsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	principal := opts.As
	if principal == "" {
		owner, _, err := activity.ParseStreamID(opts.Stream)
		if err != nil {
			_ = formatter.Error(errCodeFeedRead, fmt.Sprintf("invalid stream ID: %v", err), nil)
			return WrapExitError(ExitCommandError, "invalid stream ID", err)
		}
		principal = owner
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

	formatter.VerboseLog("Reading %s as %s", opts.Stream, principal)
	entries, next, err := eng.Feed(ctx, principal, opts.Stream, opts.Start, opts.Limit)
	if err != nil {
		_ = formatter.Error(errCodeFeedRead, fmt.Sprintf("feed read failed: %v", err), nil)
		return WrapExitError(ExitFailure, "feed read failed", err)
	}

	if formatter.Format == "json" {
		if entries == nil {
			entries = []*activity.FeedEntry{}
		}
		return formatter.Success(FeedResult{
			Stream:    opts.Stream,
			Entries:   entries,
			NextToken: next,
		})
	}

	if len(entries) == 0 {
		fmt.Fprintf(formatter.Writer, "Feed %s is empty.\n", opts.Stream)
		return nil
	}

	fmt.Fprintf(formatter.Writer, "Feed %s (%d entries):\n", opts.Stream, len(entries))
	for _, entry := range entries {
		data, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			return fmt.Errorf("rendering entry %s: %w", entry.ID, err)
		}
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintln(formatter.Writer, string(data))
	}
	if next != "" {
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintf(formatter.Writer, "Next page: --start %q\n", next)
	}
	return nil
}
