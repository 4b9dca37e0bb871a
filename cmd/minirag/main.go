package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCMD().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCMD() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "minirag",
		Short:         "Retrieval-augmented answers with numbered citations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ./config.yaml, then ~/.config/minirag/config.yaml)")

	root.AddCommand(
		serveCMD(&cfgPath),
		ingestCMD(&cfgPath),
		queryCMD(&cfgPath),
		tuiCMD(&cfgPath),
		migrateCMD(&cfgPath),
		configCMD(&cfgPath),
	)
	return root
}
