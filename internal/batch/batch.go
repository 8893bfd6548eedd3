// Package batch runs a list of file-target jobs through the task pool and
// reports which ones made it.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/datallboy/gosplice/internal/app"
	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/infra/logger"
	"github.com/datallboy/gosplice/internal/pool"
	"github.com/datallboy/gosplice/internal/validation"
)

const (
	DownloadedFile = "downloaded.json"
	FailedFile     = "failed.json"
)

// Entry is one video in a batch file.
type Entry struct {
	Name   string `json:"name"`
	URL    string `json:"url" validate:"required,media_url"`
	Output string `json:"output" validate:"required"`
	Start  int    `json:"start,omitempty" validate:"gte=0"`
	Stop   int    `json:"stop,omitempty" validate:"gte=0"`
}

func (e Entry) Request() domain.Request {
	return domain.Request{
		SourceURL: e.URL,
		Target:    domain.FileTarget(e.Output),
		Options:   domain.JobOptions{Name: e.Name, Start: e.Start, Stop: e.Stop},
	}
}

// Record is one line of downloaded.json or failed.json.
type Record struct {
	Entry
	JobID    string `json:"job_id,omitempty"`
	Segments int    `json:"segments,omitempty"`
	Path     string `json:"path,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Error    string `json:"error,omitempty"`
}

type Report struct {
	Downloaded []Record
	Failed     []Record
}

// LoadEntries reads a JSON array of entries and validates every one of them.
func LoadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse batch file %s: %w", path, err)
	}

	for i, e := range entries {
		if err := validation.Struct(e); err != nil {
			return nil, &domain.ConfigurationError{Field: fmt.Sprintf("entries[%d]", i), Err: err}
		}
	}

	return entries, nil
}

type Runner struct {
	downloader app.Downloader
	log        *logger.Logger
	opts       pool.Options
}

func NewRunner(appCtx *app.Context) *Runner {
	return &Runner{
		downloader: appCtx.Downloader,
		log:        appCtx.Logger,
		opts: pool.Options{
			Concurrency: appCtx.Config.Pool.Concurrency,
			FailFast:    appCtx.Config.Pool.FailFast,
		},
	}
}

// Run executes every entry. In fail-fast mode the first failure is returned
// as soon as it is known and no report is produced.
func (r *Runner) Run(ctx context.Context, entries []Entry) (*Report, error) {
	work := func(ctx context.Context, e Entry) (*domain.Output, error) {
		return r.downloader.Run(ctx, e.Request(), nil)
	}

	res, err := pool.Run(ctx, entries, work, r.opts)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	if r.opts.FailFast {
		for i, out := range res.Values {
			report.Downloaded = append(report.Downloaded, fulfilled(entries[i], out))
		}
		return report, nil
	}

	for i, s := range res.Settled {
		if s.Fulfilled() {
			report.Downloaded = append(report.Downloaded, fulfilled(entries[i], s.Value))
			continue
		}
		r.log.Error("Batch entry %d (%s) failed: %v", i, entries[i].URL, s.Err)
		report.Failed = append(report.Failed, Record{Entry: entries[i], Error: s.Err.Error()})
	}

	return report, nil
}

func fulfilled(e Entry, out *domain.Output) Record {
	rec := Record{Entry: e, JobID: out.JobID, Segments: out.Segments}
	if out.File != nil {
		rec.Path = out.File.Path
		rec.Size = out.File.Size
	}
	return rec
}

// Write saves the non-empty halves of the report into dir.
func (r *Report) Write(dir string) error {
	if len(r.Downloaded) > 0 {
		if err := writeJSON(filepath.Join(dir, DownloadedFile), r.Downloaded); err != nil {
			return err
		}
	}
	if len(r.Failed) > 0 {
		if err := writeJSON(filepath.Join(dir, FailedFile), r.Failed); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
