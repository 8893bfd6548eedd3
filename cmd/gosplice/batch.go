package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datallboy/gosplice/internal/batch"
)

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch <file.json>",
		Short: "Download every entry of a batch file through the task pool",
		Long: "The file holds a JSON array of {name, url, output, start, stop}. Results are\n" +
			"written to downloaded.json and failed.json next to it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := batch.LoadEntries(args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No videos found to download!")
				return nil
			}

			appCtx, dl, err := buildApp(nil)
			if err != nil {
				return err
			}
			defer closeApp(appCtx)
			openLedger(appCtx, dl)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			appCtx.Logger.Info("Starting batch of %d with concurrency %d", len(entries), appCtx.Config.Pool.Concurrency)

			report, err := batch.NewRunner(appCtx).Run(ctx, entries)
			if err != nil {
				return err
			}

			if err := report.Write(filepath.Dir(args[0])); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d downloaded, %d failed\n", len(report.Downloaded), len(report.Failed))
			return nil
		},
	}
}
