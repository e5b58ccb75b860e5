package main

import (
	"github.com/smallbiznis/cashback/internal/migration"
	"github.com/smallbiznis/cashback/internal/scheduler"
	"github.com/smallbiznis/cashback/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the scheduler loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []fx.Option{
				infra(),
				billing(),
				server.Module,
				scheduler.Loop,
			}
			if !skipMigrate {
				opts = append(opts, migration.Module)
			}

			app := fx.New(opts...)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply schema migrations on startup")
	return cmd
}
