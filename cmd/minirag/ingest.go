package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func ingestCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <path|glob>...",
		Short: "Chunk, embed and store .txt/.md files",
		Long: "Ingest expands ** globs and stores every .txt and .md match. " +
			"With the memory store the data lives only for this process, so use a persistent store here.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, cfg.Log.Verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.svc.IngestDocuments(cmd.Context(), args)
			out := cmd.OutOrStdout()
			for _, r := range results {
				src := ""
				if len(r.Chunks) > 0 {
					src = r.Chunks[0].Source
				}
				fmt.Fprintf(out, "%s  %s  chunks=%d\n", r.DocumentID, src, len(r.Chunks))
			}
			return err
		},
	}
}
