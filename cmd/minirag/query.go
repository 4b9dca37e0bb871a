package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"minirag/internal/composer"
	"minirag/internal/domain"
)

var errNoQuestion = errors.New("a question is required")

func queryCMD(cfgPath *string) *cobra.Command {
	var topK int
	var preload []string
	query := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from the stored chunks",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errNoQuestion
			}
			cfg, err := loadConfig(*cfgPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg, cfg.Log.Verbose)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(preload) > 0 {
				if _, err := a.svc.IngestDocuments(cmd.Context(), preload); err != nil {
					return err
				}
			}
			res, err := a.svc.Query(cmd.Context(), question, topK)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	query.Flags().IntVarP(&topK, "top-k", "k", 0, "number of sources to cite (default reranker.top_k)")
	query.Flags().StringSliceVar(&preload, "ingest", nil, "files or globs to ingest before querying")
	return query
}

func printResult(w io.Writer, res domain.QueryResult) {
	fmt.Fprintln(w, res.Answer)
	if len(res.Citations) == 0 {
		return
	}
	cited := map[int]bool{}
	for _, n := range composer.CitedNumbers(res.Answer, len(res.Citations)) {
		cited[n] = true
	}
	fmt.Fprintln(w)
	for _, c := range res.Citations {
		mark := " "
		if cited[c.Number] {
			mark = "*"
		}
		label := strings.TrimSpace(c.Title + " " + c.Source)
		if label == "" {
			label = fmt.Sprintf("position %d", c.Position)
		}
		fmt.Fprintf(w, "%s[%d] %s: %s\n", mark, c.Number, label, snippet(c.Text, 160))
	}
	if len(res.Ungrounded) > 0 {
		fmt.Fprintf(w, "\nremoved ungrounded markers: %v\n", res.Ungrounded)
	}
	fmt.Fprintf(w, "\n%d sources, %s\n", res.RetrievedCount, res.Latency)
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
