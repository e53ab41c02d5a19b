package main

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/iota-uz/dirsync/modules/directory"
	"github.com/iota-uz/dirsync/pkg/configuration"
)

const migrationsDir = "infrastructure/persistence/schema"

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply or roll back the database schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}

			conf := configuration.Use()
			defer conf.Unload()

			db, err := sql.Open("pgx", conf.Database.ConnectionString())
			if err != nil {
				return err
			}
			defer db.Close()

			goose.SetBaseFS(directory.MigrationFiles)
			if err := goose.SetDialect("postgres"); err != nil {
				return err
			}

			switch direction {
			case "up":
				return goose.UpContext(cmd.Context(), db, migrationsDir)
			case "down":
				return goose.DownContext(cmd.Context(), db, migrationsDir)
			default:
				return fmt.Errorf("unknown direction %q, want up or down", direction)
			}
		},
	}
}
