package main

import (
	"github.com/spf13/cobra"

	"github.com/banshee-data/paramsweep/internal/db"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate <up|down|status|to|force> [version]",
		Short: "Manage the run registry schema",
		Long: `Migrate applies, rolls back or inspects the schema of a run registry.

Examples:
  paramsweep migrate status --db runs.db
  paramsweep migrate up --db runs.db
  paramsweep migrate force 1 --db runs.db   # recover from a dirty migration`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: db.MigrateActions,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("db")
			database, err := db.OpenDB(path)
			if err != nil {
				return err
			}
			defer database.Close()
			return db.RunMigrate(database, args[0], args[1:], cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("db", "runs.db", "Registry database path")
	return cmd
}
