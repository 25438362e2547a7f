package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/interestbot/core/cmd"
	coredatabase "github.com/m3rciful/interestbot/core/database"
	"github.com/m3rciful/interestbot/core/logger"
	"github.com/m3rciful/interestbot/internal/app"
	"github.com/m3rciful/interestbot/internal/store"
	"github.com/m3rciful/interestbot/internal/store/mongostore"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Prepare the configured store (SQL migrations or Mongo indexes) and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := corecmd.ResolveConfigPath(corecmd.Options{
				ConfigPath:        configPath,
				DefaultConfigPath: defaultConfigPath,
			})
			if err != nil {
				return err
			}
			cfg, err := app.LoadConfig(path)
			if err != nil {
				return err
			}
			if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			switch cfg.Storage.Driver {
			case store.DriverPostgres:
				return coredatabase.RunMigrations(cfg.Database)
			case store.DriverMongo:
				st, err := mongostore.Connect(ctx, cfg.Mongo)
				if err != nil {
					return err
				}
				return st.Close(ctx)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "storage driver %q needs no migrations\n", cfg.Storage.Driver)
				return nil
			}
		},
	}
}
