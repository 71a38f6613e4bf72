package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wakefeed/wake/internal/definitions"
	"github.com/wakefeed/wake/internal/engine"
	"github.com/wakefeed/wake/internal/registry"
	"github.com/wakefeed/wake/internal/store"
)

// buildEngine compiles the definition directory into a sealed registry,
// opens the database and assembles an engine over both. The returned
// cleanup closes the database. Definitions registered through the CLI
// carry no code-side producers or associations, so routing falls back to
// synthetic references ("self") and activities deliver pre-built seed
// entities as-is.
func buildEngine(defsDir, dbPath string, cfg engine.Config, logger *slog.Logger) (*engine.Engine, func(), error) {
	defs, errs := definitions.Load(defsDir, definitions.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, nil, WrapExitError(ExitCommandError, "compiling definitions", errs[0])
	}

	reg := registry.New()
	if err := defs.Apply(reg); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "registering definitions", err)
	}
	if err := reg.Seal(); err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "sealing registry", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "opening database", err)
	}

	eng := engine.New(reg, st, nil,
		engine.WithConfig(cfg),
		engine.WithLogger(logger),
	)

	cleanup := func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}
	return eng, cleanup, nil
}

// loadEngineConfig reads the optional --config file, falling back to
// defaults when the flag is unset.
func loadEngineConfig(path string) (engine.Config, error) {
	if path == "" {
		return engine.DefaultConfig(), nil
	}
	cfg, err := engine.LoadConfig(path)
	if err != nil {
		return engine.Config{}, WrapExitError(ExitCommandError, "loading config", err)
	}
	return cfg, nil
}

// commandLogger builds a logger for one-shot commands. Diagnostics go to
// stderr so stdout stays parseable; warnings and errors always surface,
// debug detail only with --verbose.
func commandLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))
}
