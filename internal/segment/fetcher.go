package segment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/events"
	"github.com/datallboy/gosplice/internal/infra/logger"
)

// Result describes a completed acquisition. TotalCount counts every index written
// to the manifest, reused files included.
type Result struct {
	ManifestPath string
	TotalCount   int
	Indices      []int
}

// Fetcher downloads a segment series sequentially. The request for index n+1 goes
// out as soon as the headers for n arrive; body writes drain in the background
// and are awaited once the series ends.
type Fetcher struct {
	Client *http.Client
	Logger *logger.Logger
	Sink   events.Sink

	// MaxPending caps concurrent body writes. 0 means no cap.
	MaxPending int
	UserAgent  string
}

func NewFetcher(client *http.Client, log *logger.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		Client: client,
		Logger: log,
		Sink:   events.Noop{},
	}
}

// WithSink returns a shallow copy that reports to sink.
func (f *Fetcher) WithSink(sink events.Sink) *Fetcher {
	cp := *f
	cp.Sink = sink
	return &cp
}

// Fetch acquires spec into workDir and writes the concat manifest there.
//
// A series ends without error when the index passes an explicit Stop, when the
// origin answers with a status >= 300, or, for open-ended series only, when the
// response is declared as text or JSON. The content type rule is a heuristic for
// origins that serve an error page instead of a 404.
func (f *Fetcher) Fetch(ctx context.Context, spec SeriesSpec, workDir string) (*Result, error) {
	spec = spec.Normalize()
	if spec.Start < 1 {
		return nil, &domain.ConfigurationError{Field: "start", Err: fmt.Errorf("must be at least 1, got %d", spec.Start)}
	}
	if spec.Stop < 0 {
		return nil, &domain.ConfigurationError{Field: "stop", Err: fmt.Errorf("must not be negative, got %d", spec.Stop)}
	}

	m, err := createManifest(filepath.Join(workDir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest: %w", err)
	}
	defer m.Close()

	writer := newFileWriter()
	defer writer.DiscardAll()

	var (
		pending errgroup.Group
		mu      sync.Mutex
		errs    *multierror.Error
		aborted atomic.Bool
	)
	if f.MaxPending > 0 {
		pending.SetLimit(f.MaxPending)
	}

	fail := func(err error) {
		mu.Lock()
		errs = multierror.Append(errs, err)
		mu.Unlock()
		aborted.Store(true)
	}

	res := &Result{ManifestPath: m.path}

	for index := spec.Start; !spec.pastStop(index) && !aborted.Load(); index++ {
		finalPath := filepath.Join(workDir, SegmentName(index))

		if isRegularFile(finalPath) {
			if err := m.Add(index); err != nil {
				fail(fmt.Errorf("failed to write manifest: %w", err))
				break
			}
			res.Indices = append(res.Indices, index)
			f.emit(events.Event{Type: events.SegmentSkipped, Index: index})
			continue
		}

		url := spec.URL(index)
		f.emit(events.Event{Type: events.SegmentStarted, Index: index})

		resp, err := f.get(ctx, url)
		if err != nil {
			fail(&domain.SegmentTransportError{Index: index, URL: url, Err: err})
			break
		}

		if reason := terminalReason(resp, spec); reason != "" {
			f.Logger.Debug("Series ends at index %d: %s", index, reason)
			drain(resp.Body)
			break
		}

		partPath := finalPath + partSuffix
		if err := writer.Create(partPath); err != nil {
			resp.Body.Close()
			fail(&domain.SegmentTransportError{Index: index, URL: url, Err: err})
			break
		}

		if err := m.Add(index); err != nil {
			resp.Body.Close()
			writer.Discard(partPath)
			fail(fmt.Errorf("failed to write manifest: %w", err))
			break
		}
		res.Indices = append(res.Indices, index)

		pending.Go(func() error {
			defer resp.Body.Close()

			n, err := writer.Copy(partPath, resp.Body)
			if err == nil {
				err = writer.Finalize(partPath, finalPath)
			}
			if err != nil {
				writer.Discard(partPath)
				fail(&domain.SegmentTransportError{Index: index, URL: url, Err: err})
				return nil
			}

			f.emit(events.Event{Type: events.SegmentDone, Index: index, Bytes: n})
			return nil
		})
	}

	// Every write that started is settled before we report anything
	_ = pending.Wait()

	if err := m.Close(); err != nil {
		fail(fmt.Errorf("failed to close manifest: %w", err))
	}

	if err := errs.ErrorOrNil(); err != nil {
		if len(errs.Errors) == 1 {
			return nil, errs.Errors[0]
		}
		return nil, err
	}

	res.TotalCount = len(res.Indices)
	return res, nil
}

func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	return f.Client.Do(req)
}

func (f *Fetcher) emit(e events.Event) {
	if f.Sink != nil {
		f.Sink.Emit(e)
	}
}

// terminalReason reports why resp ends the series, or "" when it is a segment.
func terminalReason(resp *http.Response, spec SeriesSpec) string {
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}

	if spec.Stop == 0 {
		ct := strings.ToLower(resp.Header.Get("Content-Type"))
		if strings.Contains(ct, "text") || strings.Contains(ct, "application/json") {
			return fmt.Sprintf("content type %q", ct)
		}
	}

	return ""
}

// drain lets the connection be reused. Error pages are small; anything larger is cut off.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	body.Close()
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
