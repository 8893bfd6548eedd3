package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/datallboy/gosplice/internal/app"
	"github.com/datallboy/gosplice/internal/engine"
	"github.com/datallboy/gosplice/internal/infra/config"
	"github.com/datallboy/gosplice/internal/infra/logger"
	"github.com/datallboy/gosplice/internal/platform"
	"github.com/datallboy/gosplice/internal/segment"
	"github.com/datallboy/gosplice/internal/store"
	"github.com/datallboy/gosplice/internal/transcode"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gosplice",
		Short:         "Download numbered media segments and package them with ffmpeg",
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default config.yaml)")

	root.AddCommand(newGetCmd(), newBatchCmd(), newServeCmd(), newJobsCmd())
	return root
}

// buildApp loads config and wires the core services. console redirects log
// echo, e.g. to stderr when stdout carries media. The raw orchestrator is
// returned next to the context so the queue can bypass the ledger wrapper.
func buildApp(console io.Writer) (*app.Context, *engine.Downloader, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}

	log := logger.New(logger.Options{
		Path:          cfg.Log.Path,
		Level:         logger.ParseLevel(cfg.Log.Level),
		IncludeStdout: cfg.Log.IncludeStdout,
		MaxSizeMB:     cfg.Log.MaxSizeMB,
		MaxBackups:    cfg.Log.MaxBackups,
	})
	if console != nil {
		log.SetConsole(console)
	}

	ffmpegPath, err := platform.ValidateDependencies(cfg.FFmpeg.Path)
	if err != nil {
		log.Close()
		return nil, nil, err
	}
	log.Debug("Using ffmpeg at %s", ffmpegPath)

	appCtx := app.NewContext(cfg, log)
	appCtx.Transcoder = transcode.NewFFmpeg(ffmpegPath, cfg.FFmpeg.Timeout, log)

	fetcher := segment.NewFetcher(segment.NewHTTPClient(cfg.Fetch.Timeout), log)
	fetcher.MaxPending = cfg.Fetch.MaxPending
	fetcher.UserAgent = cfg.Fetch.UserAgent

	dl := engine.NewDownloader(appCtx, fetcher)
	appCtx.Downloader = dl

	return appCtx, dl, nil
}

// openLedger attaches the sqlite run ledger. The CLI keeps working without it.
func openLedger(appCtx *app.Context, dl *engine.Downloader) {
	st, err := store.NewPersistentStore(appCtx.Config.Store.SQLitePath)
	if err != nil {
		appCtx.Logger.Warn("Run ledger unavailable: %v", err)
		return
	}
	appCtx.Store = st
	appCtx.Downloader = engine.NewLedger(dl, st, appCtx.Logger)
}

func closeApp(appCtx *app.Context) {
	if appCtx.Store != nil {
		if err := appCtx.Store.Close(); err != nil {
			appCtx.Logger.Warn("Could not close store: %v", err)
		}
	}
	appCtx.Logger.Close()
}
