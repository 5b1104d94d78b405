package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"feedcraft/internal/app"
	"feedcraft/internal/config"
	"feedcraft/internal/store/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	app.NewLogger(cfg.Log)

	st, err := app.OpenStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close(ctx)

	if pg, ok := st.(*postgres.Client); ok {
		applied, err := pg.Migrate(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(os.Stdout, "Schema is up to date.")
			return nil
		}
		for _, v := range applied {
			fmt.Fprintf(os.Stdout, "Applied migration %05d\n", v)
		}
		return nil
	}

	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Schema ready (%s).\n", cfg.Database.Driver)
	return nil
}
