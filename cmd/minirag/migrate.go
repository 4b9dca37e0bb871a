package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"minirag/internal/vectorstore/postgres"
)

func migrateCMD(cfgPath *string) *cobra.Command {
	var migDir string
	var direction string
	var steps int

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Run postgres vector store migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			dsn := cfg.VectorStore.Postgres.URL
			if dsn == "" {
				return fmt.Errorf("postgres not configured (vector_store.postgres.url)")
			}
			if migDir == "" {
				migDir = cfg.VectorStore.Postgres.MigrationsDir
			}
			if err := postgres.Migrate(migDir, dsn, direction, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s applied from %s\n", direction, migDir)
			return nil
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "", "migrations source (default vector_store.postgres.migrations_dir)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return migrate
}
