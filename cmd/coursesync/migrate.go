package main

import (
	"github.com/spf13/cobra"

	"github.com/heartmarshall/coursesync/internal/adapter/postgres"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return postgres.Migrate(cmd.Context(), c.cfg.Database.DSN, c.log)
		},
	}
}
