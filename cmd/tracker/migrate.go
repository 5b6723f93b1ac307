package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moodtrail/tracker/internal/platform/database"
	"github.com/moodtrail/tracker/internal/platform/migrations"
)

func newMigrateCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	for _, dir := range []migrations.Direction{migrations.Up, migrations.Down} {
		cmd.AddCommand(&cobra.Command{
			Use:   string(dir),
			Short: fmt.Sprintf("Apply every %s migration", dir),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				db, err := database.Open(cmd.Context(), cfg.Database)
				if err != nil {
					return err
				}
				defer db.Close()

				v, err := migrations.Migrate(db, dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
				return nil
			},
		})
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := database.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			v, dirty, err := migrations.Version(db)
			if err != nil {
				return err
			}
			out := fmt.Sprintf("schema at version %d", v)
			if dirty {
				out += " (dirty)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	})
	return cmd
}
