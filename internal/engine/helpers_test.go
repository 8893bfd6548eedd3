package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datallboy/gosplice/internal/app"
	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/infra/config"
	"github.com/datallboy/gosplice/internal/infra/logger"
	"github.com/datallboy/gosplice/internal/segment"
	"github.com/datallboy/gosplice/internal/transcode"
)

var manifestEntry = regexp.MustCompile(`^file '(.+)'$`)

// fakeTranscoder concatenates manifest entries byte for byte and copies for the
// packaging stage, which is enough to observe ordering end to end.
type fakeTranscoder struct {
	mu         sync.Mutex
	calls      []string
	mergeErr   error
	packageErr error
}

func (f *fakeTranscoder) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTranscoder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTranscoder) Merge(_ context.Context, manifestPath, outPath string, progress transcode.ProgressFunc) error {
	f.record("merge")
	if f.mergeErr != nil {
		return f.mergeErr
	}

	list, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}

	var merged bytes.Buffer
	for _, line := range strings.Split(strings.TrimSpace(string(list)), "\n") {
		m := manifestEntry.FindStringSubmatch(line)
		if m == nil {
			return fmt.Errorf("bad manifest line %q", line)
		}
		data, err := os.ReadFile(filepath.Join(filepath.Dir(manifestPath), m[1]))
		if err != nil {
			return err
		}
		merged.Write(data)
	}

	if progress != nil {
		progress(transcode.StageMerge, time.Second)
	}
	return os.WriteFile(outPath, merged.Bytes(), 0644)
}

func (f *fakeTranscoder) Package(_ context.Context, inPath, outPath string, _ transcode.ProgressFunc) error {
	f.record("package:" + filepath.Ext(outPath))
	if f.packageErr != nil {
		return f.packageErr
	}
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, data, 0644)
}

func (f *fakeTranscoder) Stream(_ context.Context, inPath, format string) (io.ReadCloser, error) {
	f.record("stream:" + format)
	data, err := os.ReadFile(inPath)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// segmentOrigin serves /seg-<n>.ts for n <= last and counts every request.
// With a gate, the request for index holdAt waits until the gate is closed.
type segmentOrigin struct {
	last   int
	holdAt int
	gate   chan struct{}
	hits   atomic.Int32
}

func (o *segmentOrigin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.hits.Add(1)
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/seg-"), ".ts"))
	if err == nil && o.gate != nil && n == o.holdAt {
		<-o.gate
	}
	if err != nil || n > o.last {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "video/mp2t")
	fmt.Fprintf(w, "segment-%d;", n)
}

type harness struct {
	app    *app.Context
	tc     *fakeTranscoder
	origin *segmentOrigin
	srv    *httptest.Server
	dl     *Downloader
	tmpDir string
}

func newHarness(t *testing.T, last int) *harness {
	t.Helper()
	return newOriginHarness(t, &segmentOrigin{last: last})
}

// newHeldHarness returns a harness whose origin stalls on index holdAt, plus the
// func that lets it through. The release also runs at cleanup so the server can close.
func newHeldHarness(t *testing.T, last, holdAt int) (*harness, func()) {
	t.Helper()

	origin := &segmentOrigin{last: last, holdAt: holdAt, gate: make(chan struct{})}
	h := newOriginHarness(t, origin)

	release := sync.OnceFunc(func() { close(origin.gate) })
	t.Cleanup(release)
	return h, release
}

func newOriginHarness(t *testing.T, origin *segmentOrigin) *harness {
	t.Helper()

	srv := httptest.NewServer(origin)
	t.Cleanup(srv.Close)

	tmpDir := filepath.Join(t.TempDir(), "tmp")
	cfg := &config.Config{
		TmpDir: tmpDir,
		FFmpeg: config.FFmpegConfig{DefaultFormat: "mp4"},
		Pool:   config.PoolConfig{Concurrency: 2},
	}

	tc := &fakeTranscoder{}
	a := app.NewContext(cfg, logger.NewNop())
	a.Transcoder = tc

	dl := NewDownloader(a, segment.NewFetcher(srv.Client(), logger.NewNop()))
	a.Downloader = dl

	return &harness{app: a, tc: tc, origin: origin, srv: srv, dl: dl, tmpDir: tmpDir}
}

func (h *harness) template() string {
	return h.srv.URL + "/seg-{{index}}.ts"
}

// statusLog records every status transition a run reports.
type statusLog struct {
	mu       sync.Mutex
	jobID    string
	statuses []domain.JobStatus
}

func (s *statusLog) observe(jobID string, status domain.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobID = jobID
	s.statuses = append(s.statuses, status)
}

func (s *statusLog) get() []domain.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.JobStatus(nil), s.statuses...)
}

func writeSegment(t *testing.T, dir string, n int, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, segment.SegmentName(n)), []byte(body), 0644))
}
