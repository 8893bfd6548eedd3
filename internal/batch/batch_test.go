package batch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/gosplice/internal/app"
	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/infra/config"
	"github.com/datallboy/gosplice/internal/infra/logger"
)

type fakeDownloader struct {
	mu   sync.Mutex
	fail map[string]bool
	reqs []domain.Request
}

func (d *fakeDownloader) Run(_ context.Context, req domain.Request, _ domain.StatusFunc) (*domain.Output, error) {
	d.mu.Lock()
	d.reqs = append(d.reqs, req)
	d.mu.Unlock()

	if d.fail[req.SourceURL] {
		return nil, &domain.JobError{JobID: req.Options.Name, SourceURL: req.SourceURL, Err: errors.New("no segments found")}
	}
	return &domain.Output{
		JobID:    req.Options.Name,
		Segments: 12,
		File:     &domain.FileOutput{Path: req.Target.Path, Size: 2048},
	}, nil
}

func newRunner(dl app.Downloader, failFast bool) *Runner {
	a := app.NewContext(&config.Config{Pool: config.PoolConfig{Concurrency: 2, FailFast: failFast}}, logger.NewNop())
	a.Downloader = dl
	return NewRunner(a)
}

var entries = []Entry{
	{Name: "ep-1", URL: "https://cdn/ep1/{{index}}.ts", Output: "/out/ep-1.mp4"},
	{Name: "ep-2", URL: "https://cdn/ep2/{{index}}.ts", Output: "/out/ep-2.mp4", Stop: 30},
	{Name: "ep-3", URL: "https://cdn/ep3/{{index}}.ts", Output: "/out/ep-3.mp4", Start: 2},
}

func TestRunCollectsEveryOutcome(t *testing.T) {
	dl := &fakeDownloader{fail: map[string]bool{entries[1].URL: true}}
	report, err := newRunner(dl, false).Run(context.Background(), entries)
	require.NoError(t, err)

	require.Len(t, report.Downloaded, 2)
	assert.Equal(t, "ep-1", report.Downloaded[0].JobID)
	assert.Equal(t, "/out/ep-1.mp4", report.Downloaded[0].Path)
	assert.EqualValues(t, 2048, report.Downloaded[0].Size)
	assert.Equal(t, "ep-3", report.Downloaded[1].Name)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, "ep-2", report.Failed[0].Name)
	assert.Contains(t, report.Failed[0].Error, "task 1")
	assert.Contains(t, report.Failed[0].Error, "no segments found")

	assert.Len(t, dl.reqs, 3)
}

func TestRunFailFast(t *testing.T) {
	dl := &fakeDownloader{fail: map[string]bool{entries[1].URL: true}}
	report, err := newRunner(dl, true).Run(context.Background(), entries)
	assert.Nil(t, report)

	var taskErr *domain.PoolTaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, 1, taskErr.Index)
}

func TestRunFailFastAllSucceed(t *testing.T) {
	report, err := newRunner(&fakeDownloader{}, true).Run(context.Background(), entries)
	require.NoError(t, err)
	assert.Len(t, report.Downloaded, 3)
	assert.Empty(t, report.Failed)
}

func TestEntryRequest(t *testing.T) {
	req := entries[1].Request()
	assert.Equal(t, entries[1].URL, req.SourceURL)
	assert.Equal(t, domain.FileTarget("/out/ep-2.mp4"), req.Target)
	assert.Equal(t, 30, req.Options.Stop)
	assert.Equal(t, "ep-2", req.Options.Name)
}

func TestReportWrite(t *testing.T) {
	dir := t.TempDir()

	report := &Report{Downloaded: []Record{{Entry: entries[0], JobID: "ep-1", Segments: 12}}}
	require.NoError(t, report.Write(dir))

	data, err := os.ReadFile(filepath.Join(dir, DownloadedFile))
	require.NoError(t, err)
	var got []Record
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "ep-1", got[0].JobID)

	assert.NoFileExists(t, filepath.Join(dir, FailedFile))
}

func TestLoadEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.json")
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	got, err := LoadEntries(path)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestLoadEntriesRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"url":"https://cdn/{{index}}.ts","output":"a.mp4"},{"url":"file:///etc/passwd","output":"b.mp4"}]`), 0644))
	_, err := LoadEntries(bad)
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "entries[1]", cfgErr.Field)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{not json`), 0644))
	_, err = LoadEntries(broken)
	assert.Error(t, err)

	_, err = LoadEntries(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
