// Package main is regctl, the operator CLI for migrations, lookup seeding, organizer bootstrap and reminders.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/confreg/backend/config"
	"github.com/confreg/backend/internal/app"
	"github.com/confreg/backend/internal/lookups"
	"github.com/confreg/backend/pkg/database"
	"github.com/confreg/backend/pkg/logger"
)

var Version = "dev"

func main() {
	if err := newRootCmd(config.Load).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type loadFunc func() (*config.Config, error)

func newRootCmd(load loadFunc) *cobra.Command {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:           "regctl",
		Short:         "regctl - conference registration administration",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr at debug level")

	env := &cmdEnv{load: load, verbose: &verbose}
	rootCmd.AddCommand(migrateCmd(env))
	rootCmd.AddCommand(seedTablesCmd(env))
	rootCmd.AddCommand(promoteCmd(env))
	rootCmd.AddCommand(remindCmd(env))
	return rootCmd
}

type cmdEnv struct {
	load    loadFunc
	verbose *bool
}

func (e *cmdEnv) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := e.load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if !*e.verbose {
		return cfg, zap.NewNop(), nil
	}
	log, err := logger.New(logger.Options{Level: "debug"})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// openDB opens the configured database and applies pending migrations.
func (e *cmdEnv) openDB(ctx context.Context) (*database.DB, error) {
	cfg, log, err := e.setup()
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN(), log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func migrateCmd(env *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := env.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", db.Dialect)
			return nil
		},
	}
}

func seedTablesCmd(env *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-tables [file.yaml]",
		Short: "Load validation table values from a YAML map of table to values",
		Long: `Load validation table values from a YAML file such as:

  country: [Canada, Mexico, United States]
  dietary: [None, Vegetarian, Vegan]

Values already present are skipped, so the command can be re-run safely.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := lookups.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			db, err := env.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := lookups.NewRepository(db).Seed(cmd.Context(), tables)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d new values across %d tables\n", n, len(tables))
			return nil
		},
	}
}

func promoteCmd(env *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "promote [email]",
		Short: "Grant the organizer flag to an existing registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := env.setup()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.RegistrationRepo.Promote(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("promote %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now an organizer\n", args[0])
			return nil
		},
	}
}

func remindCmd(env *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Re-send RSVP reminders to invitees who have not responded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := env.setup()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := a.RSVP.Remind(cmd.Context())
			if err != nil {
				return fmt.Errorf("remind: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
