package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/infra/config"
	"github.com/datallboy/gosplice/internal/store"
)

func newJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs [id]",
		Short: "List recorded runs, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			st, err := store.NewPersistentStore(cfg.Store.SQLitePath)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				item, err := st.GetQueueItem(args[0])
				if err != nil {
					return err
				}
				if item == nil {
					return errors.New("job not found: " + args[0])
				}
				printItem(cmd.OutOrStdout(), item)
				return nil
			}

			items, err := st.GetQueueItems()
			if err != nil {
				return err
			}
			printItems(cmd.OutOrStdout(), items)
			return nil
		},
	}
}

func printItems(w io.Writer, items []*domain.QueueItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tJOB\tSTATUS\tSEGMENTS\tTARGET\tUPDATED")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			item.ID, item.JobID, item.Status, humanize.Comma(int64(item.Segments)), item.Target, humanize.Time(item.UpdatedAt))
	}
	tw.Flush()
}

func printItem(w io.Writer, item *domain.QueueItem) {
	fmt.Fprintf(w, "ID:       %s\n", item.ID)
	fmt.Fprintf(w, "Job:      %s\n", item.JobID)
	fmt.Fprintf(w, "Source:   %s\n", item.SourceURL)
	fmt.Fprintf(w, "Target:   %s\n", item.Target)
	fmt.Fprintf(w, "Status:   %s\n", item.Status)
	fmt.Fprintf(w, "Segments: %d\n", item.Segments)
	if item.OutputPath != "" {
		fmt.Fprintf(w, "Output:   %s\n", item.OutputPath)
	}
	if item.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", item.Error)
	}
	fmt.Fprintf(w, "Created:  %s\n", humanize.Time(item.CreatedAt))
}
