package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wakefeed/wake/internal/activity"
)

// PostOptions holds flags for the post command.
type PostOptions struct {
	*RootOptions
	Database string
	Config   string
	SeedFile string
}

// PostResult holds the post command's payload.
type PostResult struct {
	Posted int `json:"posted"`
}

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post <defs-dir>",
		Short: "Post activity seeds from a JSON file",
		Long: `Post activity seeds and deliver them to their streams.

The seed file holds one JSON seed object or an array of them. Every seed
is validated against the registered activity types, routed, and written
into the recipients' aggregation windows before the command returns. A
seed with no published timestamp is stamped with the current time.

Example:
  wake post --db ./wake.db ./defs --seed activity.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to engine config YAML")
	cmd.Flags().StringVar(&opts.SeedFile, "seed", "", "path to JSON seed file (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("seed")

	return cmd
}

func runPost(opts *PostOptions, defsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	raw, err := os.ReadFile(opts.SeedFile)
	if err != nil {
		_ = formatter.Error(errCodeSeedFile, fmt.Sprintf("reading seed file: %v", err), nil)
		return WrapExitError(ExitCommandError, "reading seed file", err)
	}

	seeds, err := parseSeeds(raw)
	if err != nil {
		_ = formatter.Error(errCodeSeedFile, err.Error(), nil)
		return WrapExitError(ExitCommandError, "parsing seed file", err)
	}

	cfg, err := loadEngineConfig(opts.Config)
	if err != nil {
		return err
	}

	logger := commandLogger(cmd, opts.Verbose)
	eng, cleanup, err := buildEngine(defsDir, opts.Database, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	for i, seed := range seeds {
		if seed.Published.IsZero() {
			seed.Published = time.Now()
		}
		formatter.VerboseLog("Posting seed %d: %s %s", i, seed.ActivityType, seed.Verb)
		if err := eng.PostActivity(ctx, seed); err != nil {
			_ = formatter.Error(errCodeSeedRejected, fmt.Sprintf("seed %d rejected: %v", i, err), nil)
			return WrapExitError(ExitFailure, fmt.Sprintf("seed %d rejected", i), err)
		}
	}

	if err := eng.Drain(ctx); err != nil {
		return WrapExitError(ExitFailure, "delivering activities", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(PostResult{Posted: len(seeds)})
	}
	fmt.Fprintf(formatter.Writer, "✓ Posted %d activity(ies)\n", len(seeds))
	return nil
}

// parseSeeds decodes a seed file holding one seed object or an array.
func parseSeeds(data []byte) ([]*activity.Seed, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("seed file is empty")
	}

	if trimmed[0] == '[' {
		var seeds []*activity.Seed
		if err := json.Unmarshal(trimmed, &seeds); err != nil {
			return nil, fmt.Errorf("parsing seed array: %w", err)
		}
		if len(seeds) == 0 {
			return nil, fmt.Errorf("seed array is empty")
		}
		return seeds, nil
	}

	var seed activity.Seed
	if err := json.Unmarshal(trimmed, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed: %w", err)
	}
	return []*activity.Seed{&seed}, nil
}
