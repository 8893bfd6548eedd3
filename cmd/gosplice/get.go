package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/events"
	"github.com/datallboy/gosplice/internal/validation"
)

type getOptions struct {
	output   string
	toStdout bool
	opts     domain.JobOptions
}

func newGetCmd() *cobra.Command {
	var o getOptions

	cmd := &cobra.Command{
		Use:   "get <url>",
		Short: "Download one segment series into a file or stdout",
		Long: "Download the series behind <url>. Use {{index}} in the url where the segment\n" +
			"number goes; without it the url is fetched as a single segment.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, args[0], o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.output, "output", "o", "", "output file, the extension picks the container")
	f.BoolVar(&o.toStdout, "stdout", false, "stream the result to stdout instead of a file")
	f.StringVar(&o.opts.Name, "name", "", "job name, used for the working directory")
	f.IntVar(&o.opts.Start, "start", 1, "first segment index")
	f.IntVar(&o.opts.Stop, "stop", 0, "last segment index, 0 discovers the end")
	f.StringVar(&o.opts.Format, "format", "", "container format for --stdout")
	f.StringVar(&o.opts.TmpDir, "tmp-dir", "", "parent of the working directory")
	f.BoolVar(&o.opts.Cleanup.OnSuccess, "cleanup-on-success", false, "remove the working directory after success")
	f.BoolVar(&o.opts.Cleanup.OnError, "cleanup-on-error", false, "remove the working directory after failure")
	f.BoolVar(&o.opts.Cleanup.Always, "cleanup", false, "always remove the working directory")

	return cmd
}

func runGet(cmd *cobra.Command, rawURL string, o getOptions) error {
	if err := validation.MediaURL(rawURL); err != nil {
		return err
	}

	var target domain.Target
	switch {
	case o.toStdout:
		target = domain.StreamTarget(o.opts.Format)
	case o.output != "":
		target = domain.FileTarget(o.output)
	default:
		return errors.New("either --output or --stdout is required")
	}

	// stdout carries media, keep everything else on stderr
	appCtx, dl, err := buildApp(os.Stderr)
	if err != nil {
		return err
	}
	defer closeApp(appCtx)
	openLedger(appCtx, dl)

	appCtx.Events = events.Multi{appCtx.Events, events.NewCLISink(os.Stderr, "downloading")}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := appCtx.Downloader.Run(ctx, domain.Request{SourceURL: rawURL, Target: target, Options: o.opts}, nil)
	if err != nil {
		return err
	}

	if out.Stream != nil {
		defer out.Stream.Close()
		if _, err := io.Copy(os.Stdout, out.Stream); err != nil {
			return fmt.Errorf("failed to write stream: %w", err)
		}
		return nil
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s (%s)\n", out.File.Path, humanize.Bytes(uint64(out.File.Size)))
	return nil
}
