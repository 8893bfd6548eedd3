package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/datallboy/gosplice/internal/app"
	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/events"
	"github.com/datallboy/gosplice/internal/segment"
)

// MergedName is the intermediate container produced from the manifest.
const MergedName = "merged.ts"

var errStreamAbandoned = errors.New("stream closed before completion")

// Downloader is the acquisition/packaging orchestrator. It owns a job's working
// directory for the job's whole lifetime: a second job deriving the same
// directory is rejected until the first one finishes.
type Downloader struct {
	ctx     *app.Context
	fetcher *segment.Fetcher

	mu    sync.Mutex
	inUse map[string]struct{}
}

func NewDownloader(ctx *app.Context, fetcher *segment.Fetcher) *Downloader {
	return &Downloader{
		ctx:     ctx,
		fetcher: fetcher,
		inUse:   make(map[string]struct{}),
	}
}

func (d *Downloader) claim(workDir string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, busy := d.inUse[workDir]; busy {
		return false
	}
	d.inUse[workDir] = struct{}{}
	return true
}

func (d *Downloader) release(workDir string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inUse, workDir)
}

// ValidateRequest rejects requests that cannot run. It performs no I/O.
func ValidateRequest(req domain.Request) error {
	if req.SourceURL == "" {
		return &domain.ConfigurationError{Field: "url", Err: errors.New("source url is required")}
	}

	switch req.Target.Kind {
	case domain.TargetFile:
		if req.Target.Path == "" {
			return &domain.ConfigurationError{Field: "output", Err: errors.New("output path is required")}
		}
		if filepath.Ext(req.Target.Path) == "" {
			return &domain.ConfigurationError{Field: "output", Err: domain.ErrExtensionRequired}
		}
	case domain.TargetStream:
	default:
		return &domain.ConfigurationError{Field: "target", Err: fmt.Errorf("unknown target kind %q", req.Target.Kind)}
	}

	return nil
}

// Run acquires the segment series behind req.SourceURL, merges it and routes the
// result to the requested target. For a stream target, cleanup and the final
// status are deferred until the returned stream is closed.
func (d *Downloader) Run(ctx context.Context, req domain.Request, onStatus domain.StatusFunc) (*domain.Output, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if onStatus == nil {
		onStatus = func(string, domain.JobStatus) {}
	}

	opts := d.withDefaults(req.Options)
	target := req.Target
	if target.Kind == domain.TargetStream && target.Format == "" {
		target.Format = opts.Format
	}

	jobID := DeriveJobID(opts.Name, target)
	workDir, err := filepath.Abs(filepath.Join(opts.TmpDir, jobID))
	if err != nil {
		return nil, &domain.JobError{JobID: jobID, SourceURL: req.SourceURL, Err: fmt.Errorf("failed to resolve working directory: %w", err)}
	}

	if !d.claim(workDir) {
		return nil, &domain.ConfigurationError{
			Field: "name",
			Err:   fmt.Errorf("job %s: %w", jobID, domain.ErrWorkDirInUse),
		}
	}

	// Reusing an existing directory is what makes resume work
	if err := os.MkdirAll(workDir, 0755); err != nil {
		d.release(workDir)
		return nil, &domain.JobError{JobID: jobID, SourceURL: req.SourceURL, Err: fmt.Errorf("failed to create working directory: %w", err)}
	}

	j := &job{
		id:       jobID,
		source:   req.SourceURL,
		workDir:  workDir,
		target:   target,
		opts:     opts,
		sink:     events.WithJob(d.ctx.Events, jobID),
		onStatus: onStatus,
		started:  time.Now(),
	}

	j.sink.Emit(events.Event{Type: events.JobStarted})
	onStatus(jobID, domain.StatusDownloading)

	out, err := d.acquire(ctx, j)
	if err != nil {
		return nil, d.finish(j, 0, err)
	}

	if out.Stream != nil {
		out.Stream = &trackedStream{ReadCloser: out.Stream, done: func(streamErr error) {
			_ = d.finish(j, out.Segments, streamErr)
		}}
		return out, nil
	}

	_ = d.finish(j, out.Segments, nil)
	return out, nil
}

type job struct {
	id       string
	source   string
	workDir  string
	target   domain.Target
	opts     domain.JobOptions
	sink     events.Sink
	onStatus domain.StatusFunc
	started  time.Time
}

func (d *Downloader) acquire(ctx context.Context, j *job) (*domain.Output, error) {
	spec := segment.SeriesSpec{URLTemplate: j.source, Start: j.opts.Start, Stop: j.opts.Stop}

	res, err := d.fetcher.WithSink(j.sink).Fetch(ctx, spec, j.workDir)
	if err != nil {
		return nil, err
	}
	if res.TotalCount < 1 {
		return nil, &domain.NoSegmentsFoundError{SourceURL: j.source}
	}

	d.ctx.Logger.Info("[%s] Downloaded %d segments, merging", j.id, res.TotalCount)
	j.onStatus(j.id, domain.StatusProcessing)

	progress := func(stage string, at time.Duration) {
		j.sink.Emit(events.Event{Type: events.MergeProgress, Stage: stage, OutTime: at})
	}

	merged := filepath.Join(j.workDir, MergedName)
	if err := d.ctx.Transcoder.Merge(ctx, res.ManifestPath, merged, progress); err != nil {
		return nil, err
	}

	out := &domain.Output{JobID: j.id, Segments: res.TotalCount}

	if j.target.Kind == domain.TargetStream {
		stream, err := d.ctx.Transcoder.Stream(ctx, merged, j.target.Format)
		if err != nil {
			return nil, err
		}
		out.Stream = stream
		return out, nil
	}

	finalPath, err := filepath.Abs(j.target.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path: %w", err)
	}

	// ffmpeg writes inside the working directory; the result moves out only when complete
	staged := filepath.Join(j.workDir, "output"+filepath.Ext(finalPath))
	if err := d.ctx.Transcoder.Package(ctx, merged, staged, progress); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := moveFile(staged, finalPath); err != nil {
		return nil, fmt.Errorf("failed to move output into place: %w", err)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return nil, err
	}

	out.File = &domain.FileOutput{Path: finalPath, Size: info.Size()}
	return out, nil
}

// finish runs cleanup, reports the outcome and wraps err with the job context.
func (d *Downloader) finish(j *job, segments int, err error) error {
	d.cleanup(j.workDir, j.opts.Cleanup, err != nil)
	d.release(j.workDir)

	elapsed := time.Since(j.started)
	if err != nil {
		j.sink.Emit(events.Event{Type: events.JobFailed, Err: err.Error(), Elapsed: elapsed})
		j.onStatus(j.id, domain.StatusFailed)
		return &domain.JobError{JobID: j.id, SourceURL: j.source, Err: err}
	}

	j.sink.Emit(events.Event{Type: events.JobDone, Segments: segments, Elapsed: elapsed})
	j.onStatus(j.id, domain.StatusCompleted)
	return nil
}

// cleanup applies every applicable flag, most specific first and Always last.
func (d *Downloader) cleanup(workDir string, policy domain.CleanupPolicy, failed bool) {
	var errs *multierror.Error

	if policy.OnSuccess && !failed {
		errs = multierror.Append(errs, removeWorkDir(workDir))
	}
	if policy.OnError && failed {
		errs = multierror.Append(errs, removeWorkDir(workDir))
	}
	if policy.Always {
		errs = multierror.Append(errs, removeWorkDir(workDir))
	}

	if err := errs.ErrorOrNil(); err != nil {
		d.ctx.Logger.Warn("Could not clean up %s: %v", workDir, err)
	}
}

func (d *Downloader) withDefaults(opts domain.JobOptions) domain.JobOptions {
	cfg := d.ctx.Config
	if opts.TmpDir == "" {
		opts.TmpDir = cfg.TmpDir
	}
	if opts.Format == "" {
		opts.Format = cfg.FFmpeg.DefaultFormat
	}
	if opts.Cleanup == (domain.CleanupPolicy{}) {
		opts.Cleanup = cfg.Cleanup
	}
	return opts
}

// trackedStream reports the job outcome once, when the consumer closes it.
type trackedStream struct {
	io.ReadCloser
	done func(error)

	mu      sync.Mutex
	eof     bool
	readErr error
	once    sync.Once
}

func (s *trackedStream) Read(p []byte) (int, error) {
	n, err := s.ReadCloser.Read(p)
	if err != nil {
		s.mu.Lock()
		if err == io.EOF {
			s.eof = true
		} else if s.readErr == nil {
			s.readErr = err
		}
		s.mu.Unlock()
	}
	return n, err
}

func (s *trackedStream) Close() error {
	err := s.ReadCloser.Close()

	s.once.Do(func() {
		s.mu.Lock()
		outcome := s.readErr
		if outcome == nil && !s.eof {
			outcome = errStreamAbandoned
		}
		s.mu.Unlock()

		s.done(outcome)
	})

	return err
}
