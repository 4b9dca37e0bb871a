package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"minirag/internal/tui"
)

func tuiCMD(cfgPath *string) *cobra.Command {
	var topK int
	return &cobra.Command{
		Use:   "tui [path|glob]...",
		Short: "Ingest files, then query them interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			header := fmt.Sprintf("store=%s reranker=%s generator=%s", cfg.VectorStore.Type, cfg.Reranker.Type, cfg.Generator.Type)
			if len(args) > 0 {
				results, err := a.svc.IngestDocuments(cmd.Context(), args)
				if err != nil {
					return fmt.Errorf("ingest failed: %w", err)
				}
				chunks := 0
				for _, r := range results {
					chunks += len(r.Chunks)
				}
				header = fmt.Sprintf("%d documents, %d chunks  %s", len(results), chunks, header)
			}

			m := tui.New(a.svc, topK, header)
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}
