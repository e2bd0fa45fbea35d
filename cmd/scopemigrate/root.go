package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/scope-migrator/internal/config"
	"github.com/example/scope-migrator/internal/descriptor"
	"github.com/example/scope-migrator/internal/logging"
	"github.com/example/scope-migrator/internal/persistence/sqlite"
)

// defaultStateDatabaseName is the attach name used when --state-db is given
// for a descriptor without a state_database section.
const defaultStateDatabaseName = "scopemigrate_state"

type globalFlags struct {
	dsn            string
	descriptorPath string
	stateDB        string
	logLevel       string
	jsonMode       bool
	noColor        bool
}

// app holds the state shared by all commands of one invocation.
type app struct {
	flags  globalFlags
	cfg    config.Config
	logger *slog.Logger

	isTerminal func() bool
	confirm    func(label string) (bool, error)
}

func newApp() *app {
	return &app{
		isTerminal: stdinIsTerminal,
		confirm:    promptConfirm,
	}
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scopemigrate",
		Short: "Move a database scope between schema states",
		Long: `scopemigrate reads a scope descriptor, finds the shortest chain of
transition scripts from the scope's recorded state to a target state and
applies it, recording the new state after every script.

Examples:
  # Show where the scope stands
  scopemigrate status --descriptor billing.toml

  # Preview the path to the required state
  scopemigrate path --descriptor billing.toml

  # Migrate, refusing destructive steps
  scopemigrate migrate --descriptor billing.toml --non-destructive

  # Roll back to 1.5.0 without prompting
  scopemigrate migrate 1.5.0 --descriptor billing.toml --yes`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	cmd.PersistentFlags().StringVar(&a.flags.dsn, "dsn", "",
		"SQLite database holding the scope (env SCOPEMIGRATE_SQLITE_DSN)")
	cmd.PersistentFlags().StringVarP(&a.flags.descriptorPath, "descriptor", "d", "",
		"Scope descriptor file, .toml or .yaml (env SCOPEMIGRATE_DESCRIPTOR)")
	cmd.PersistentFlags().StringVar(&a.flags.stateDB, "state-db", "",
		"Database file for the state tracking table (env SCOPEMIGRATE_STATE_DATABASE)")
	cmd.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "",
		"Log level: debug, info, warn or error (env SCOPEMIGRATE_LOG_LEVEL)")
	cmd.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false,
		"Output in JSON format")
	cmd.PersistentFlags().BoolVar(&a.flags.noColor, "no-color", false,
		"Disable colored output")

	cmd.AddCommand(
		newStatusCmd(a),
		newPathCmd(a),
		newMigrateCmd(a),
		newHistoryCmd(a),
	)
	return cmd
}

// setup merges environment configuration with explicitly set flags.
// Priority: default < env < flag.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("dsn") {
		cfg.SQLiteDSN = a.flags.dsn
	}
	if flags.Changed("descriptor") {
		cfg.DescriptorPath = a.flags.descriptorPath
	}
	if flags.Changed("state-db") {
		cfg.StateDatabase = a.flags.stateDB
	}
	if flags.Changed("log-level") {
		level, err := logging.ParseLevel(a.flags.logLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if a.flags.noColor || a.flags.jsonMode || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	a.cfg = cfg
	a.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel, a.flags.jsonMode)
	return nil
}

// openSchema opens the database and binds the descriptor to it. The returned
// function releases both.
func (a *app) openSchema(ctx context.Context) (*descriptor.Schema, func(), error) {
	d, err := descriptor.Load(a.cfg.DescriptorPath)
	if err != nil {
		return nil, nil, err
	}
	if a.cfg.StateDatabase != "" {
		if d.StateDatabase == nil {
			d.StateDatabase = &descriptor.StateDatabase{Name: defaultStateDatabaseName}
		}
		d.StateDatabase.Path = a.cfg.StateDatabase
	}

	dbCfg := sqlite.DefaultConfig(a.cfg.SQLiteDSN)
	dbCfg.BusyTimeout = a.cfg.BusyTimeout
	session, err := sqlite.Open(ctx, dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	schema, err := descriptor.Open(logging.ContextWithLogger(ctx, a.logger), d, session, a.logger)
	if err != nil {
		session.Close()
		return nil, nil, err
	}

	release := func() {
		if err := schema.Close(); err != nil {
			a.logger.Warn("failed to close script source", "error", err)
		}
		if err := session.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
	}
	return schema, release, nil
}

func (a *app) commandContext(cmd *cobra.Command) context.Context {
	return logging.ContextWithLogger(cmd.Context(), a.logger)
}
