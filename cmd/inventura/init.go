package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/erazemk/inventura/internal/db"
)

func newInitCommand(rootOpts *rootOptions) *cobra.Command {
	var adminUser, adminUnit string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the schema and the first admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := rootOpts.setup(cmd)
			defer closeLog()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			database, err := db.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.EnsureSchema(database); err != nil {
				return fmt.Errorf("ensuring schema: %w", err)
			}
			password, err := bootstrapAdmin(ctx, database, adminUser, adminUnit)
			if err != nil {
				return err
			}
			if password == "" {
				return fmt.Errorf("database %s already has accounts", cfg.Database)
			}
			printInitResult(cfg.Database, adminUser, adminUnit, password)
			return nil
		},
	}
	cmd.Flags().StringVarP(&adminUser, "user", "u", "admin", "admin username")
	cmd.Flags().StringVar(&adminUnit, "unit", "hq", "admin unit")
	return cmd
}
