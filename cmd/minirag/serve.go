package main

import (
	"github.com/spf13/cobra"

	"minirag/internal/server"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	var preload []string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(preload) > 0 {
				if _, err := a.svc.IngestDocuments(ctx, preload); err != nil {
					return err
				}
			}
			srv := server.New(a.svc, cfg.Server, server.WithGatherer(a.registry))
			return srv.Run(ctx, cfg.Server.Address)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	serve.Flags().StringSliceVar(&preload, "ingest", nil, "files or globs to ingest before serving")
	return serve
}
