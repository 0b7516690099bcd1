// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/vidtube/vidtube/internal/store"
)

// migrator is the subset of *store.Migrator the migrate commands use.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// migratorFactory opens a migrator; replaced in tests.
var migratorFactory = func(url string, logger *slog.Logger) (migrator, error) {
	return store.NewMigrator(url, logger)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Apply, roll back or inspect the credential store schema.
The database URL is taken from --database-url, VIDTUBE_STORE__DATABASE_URL
or DATABASE_URL, in that order.`,
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL")

	withMigrator := func(fn func(cmd *cobra.Command, m migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			url := resolveDatabaseURL(databaseURL)
			if url == "" {
				return oops.Code("CONFIG_INVALID").Errorf("database URL is required (--database-url or VIDTUBE_STORE__DATABASE_URL)")
			}
			m, err := migratorFactory(url, slog.Default())
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := m.Close(); closeErr != nil {
					slog.Warn("error closing migrator", "error", closeErr)
				}
			}()
			return fn(cmd, m, args)
		}
	}

	var steps int
	var all bool

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			if err := m.Up(); err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "up").Wrap(err)
			}
			cmd.Println("Migrations applied")
			return nil
		}),
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			var err error
			if all {
				err = m.Down()
			} else {
				err = m.Steps(-steps)
			}
			if err != nil {
				return oops.Code("MIGRATION_FAILED").With("operation", "down").Wrap(err)
			}
			cmd.Println("Migrations rolled back")
			return nil
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			st, err := m.Status()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			dirty := ""
			if st.Dirty {
				dirty = " (dirty)"
			}
			fmt.Fprintf(out, "Version: %d%s\n", st.Version, dirty)
			for _, mig := range st.Applied {
				fmt.Fprintf(out, "  [x] %06d %s\n", mig.Version, mig.Name)
			}
			for _, mig := range st.Pending {
				fmt.Fprintf(out, "  [ ] %06d %s\n", mig.Version, mig.Name)
			}
			return nil
		}),
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long:  `Mark VERSION as the current schema version and clear the dirty flag.`,
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
			}
			if err := m.Force(version); err != nil {
				return err
			}
			cmd.Printf("Schema version forced to %d\n", version)
			return nil
		}),
	}

	cmd.AddCommand(up, down, status, force)
	return cmd
}

func resolveDatabaseURL(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if url := os.Getenv("VIDTUBE_STORE__DATABASE_URL"); url != "" {
		return url
	}
	return os.Getenv("DATABASE_URL")
}
