package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/IntakePipe/internal/cursor"
	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/lockfile"
	"github.com/BTreeMap/IntakePipe/internal/repl"
	"github.com/BTreeMap/IntakePipe/internal/state"
	"github.com/BTreeMap/IntakePipe/internal/store"
)

func main() {
	initializeLogger(os.Stderr, false)
	config := loadEnvironmentConfig()

	if err := newRootCmd(&config).Execute(); err != nil {
		slog.Error("IntakePipe failed", "error", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Environment values in cfg are the flag
// defaults; flags override them.
func newRootCmd(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "intakepipe",
		Short:         "Conversational, schema-driven application intake",
		Long:          "IntakePipe interviews an applicant one question at a time and fills a structured application document.\n\nRun without a subcommand to start or resume the active application.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initializeLogger(cmd.ErrOrStderr(), cfg.Debug)
			slog.Debug("flags parsed",
				"stateDir", cfg.StateDir,
				"schema", cfg.SchemaPath,
				"dbDSN_set", cfg.DBDSN != "",
				"store", cfg.StoreBackend,
				"provider", cfg.Provider,
				"model", cfg.Model,
				"extractTimeout", cfg.ExtractTimeout)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for IntakePipe data (overrides $INTAKE_STATE_DIR)")
	pf.StringVar(&cfg.SchemaPath, "schema", cfg.SchemaPath, "intake schema file, YAML or JSON (overrides $INTAKE_SCHEMA)")
	pf.StringVar(&cfg.DBDSN, "db-dsn", cfg.DBDSN, "postgres URL or sqlite file (overrides $INTAKE_DB_DSN or $DATABASE_URL)")
	pf.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "store backend: file, sqlite, postgres or memory (overrides $INTAKE_STORE)")
	pf.StringVar(&cfg.Provider, "provider", cfg.Provider, "LLM provider: openai, gemini or none (overrides $INTAKE_LLM_PROVIDER)")
	pf.StringVar(&cfg.Model, "model", cfg.Model, "LLM model name (overrides $INTAKE_MODEL)")
	pf.StringVar(&cfg.InstructionsPath, "instructions", cfg.InstructionsPath, "agent instructions file (overrides $INTAKE_AGENT_INSTRUCTIONS)")
	pf.DurationVar(&cfg.ExtractTimeout, "extract-timeout", cfg.ExtractTimeout, "timeout for one extraction call (overrides $INTAKE_EXTRACT_TIMEOUT)")
	pf.BoolVar(&cfg.Debug, "debug", cfg.Debug, "debug logging and LLM request dumps (overrides $INTAKE_DEBUG)")

	run := newRunCmd(cfg)
	root.RunE = run.RunE
	root.Flags().AddFlagSet(run.Flags())
	root.AddCommand(run, newNewCmd(cfg), newShowCmd(cfg), newListCmd(cfg), newSchemaCmd(cfg))
	return root
}

func newRunCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start or resume the interview",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runInterview(ctx, cmd, *cfg)
		},
	}
	cmd.Flags().BoolVar(&cfg.AlwaysNew, "new", cfg.AlwaysNew, "always start a new application (overrides $INTAKE_ALWAYS_NEW)")
	return cmd
}

func runInterview(ctx context.Context, cmd *cobra.Command, cfg Config) error {
	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Open(cfg.StoreBackend, buildStoreOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	s, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	flowOpts, err := buildFlowOptions(ctx, cfg, st)
	if err != nil {
		return err
	}
	intake := flow.NewIntakeFlow(s, flowOpts...)
	sessions, err := flow.NewSessionManager(st, intake)
	if err != nil {
		return err
	}

	var doc *state.Document
	resumed := false
	if cfg.AlwaysNew {
		doc, err = sessions.New()
	} else {
		doc, resumed, err = sessions.Resume()
	}
	if err != nil {
		return err
	}

	status := "new"
	if resumed {
		status = "resumed"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Application %s (%s). Type 'exit' to stop; progress is saved after every answer.\n", doc.ID(), status)

	loop := repl.New(intake, repl.WithInput(cmd.InOrStdin()), repl.WithOutput(cmd.OutOrStdout()))
	if err := loop.Run(ctx, doc); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("interview ended", "applicationID", doc.ID(), "complete", intake.Complete(doc))
	return nil
}

func newNewCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create a new application and make it active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lock, err := lockfile.AcquireLock(cfg.StateDir)
			if err != nil {
				return err
			}
			defer lock.Release()

			st, err := store.Open(cfg.StoreBackend, buildStoreOptions(*cfg)...)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			s, err := loadSchema(*cfg)
			if err != nil {
				return err
			}
			sessions, err := flow.NewSessionManager(st, flow.NewIntakeFlow(s))
			if err != nil {
				return err
			}
			doc, err := sessions.New()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), doc.ID())
			return nil
		},
	}
}

func newShowCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show [application-id]",
		Short: "Print an application document as JSON (default: the active one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cfg.StoreBackend, buildStoreOptions(*cfg)...)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			id := ""
			if len(args) == 1 {
				id = args[0]
			} else if id, err = st.ActiveID(); err != nil {
				return err
			}
			if id == "" {
				return errors.New("no active application; pass an application id")
			}

			doc, err := st.Load(id)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode application %s: %w", id, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newListCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored applications, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cfg.StoreBackend, buildStoreOptions(*cfg)...)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			active, err := st.ActiveID()
			if err != nil {
				return err
			}
			apps, err := st.List()
			if err != nil {
				return err
			}
			for _, app := range apps {
				marker := " "
				if app.ID == active {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s  %s\n", marker, app.ID, app.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newSchemaCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the flattened question sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSchema(*cfg)
			if err != nil {
				return err
			}
			seq := cursor.NewSequence(s)
			out := cmd.OutOrStdout()
			for i, f := range seq.Fields() {
				repeat := ""
				if sec, ok := seq.SectionAt(i); ok {
					repeat = "  [repeats: " + sec.ArrayPath + "]"
				}
				fmt.Fprintf(out, "%2d  %-8s  %s%s\n      %s\n", i, f.Type, f.Path, repeat, f.QuestionText())
			}
			return nil
		},
	}
}
