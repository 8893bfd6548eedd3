package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/gosplice/internal/app"
	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/infra/config"
	"github.com/datallboy/gosplice/internal/infra/logger"
)

type memStore struct {
	mu    sync.Mutex
	items map[string]domain.QueueItem
}

func newMemStore(items ...domain.QueueItem) *memStore {
	s := &memStore{items: make(map[string]domain.QueueItem)}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

func (s *memStore) SaveQueueItem(item *domain.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = *item
	return nil
}

func (s *memStore) GetQueueItem(id string) (*domain.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *memStore) GetQueueItems() ([]*domain.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.QueueItem, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, &item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) GetActiveQueueItems() ([]*domain.QueueItem, error) {
	all, _ := s.GetQueueItems()
	var out []*domain.QueueItem
	for _, item := range all {
		if !item.Finished() {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

// scriptedDownloader fails any request whose url is in fail and succeeds otherwise.
type scriptedDownloader struct {
	mu   sync.Mutex
	fail map[string]bool
	runs []string
}

func (d *scriptedDownloader) Run(_ context.Context, req domain.Request, onStatus domain.StatusFunc) (*domain.Output, error) {
	d.mu.Lock()
	d.runs = append(d.runs, req.SourceURL)
	fail := d.fail[req.SourceURL]
	d.mu.Unlock()

	jobID := DeriveJobID(req.Options.Name, req.Target)
	onStatus(jobID, domain.StatusDownloading)
	if fail {
		onStatus(jobID, domain.StatusFailed)
		return nil, &domain.JobError{JobID: jobID, SourceURL: req.SourceURL, Err: &domain.NoSegmentsFoundError{SourceURL: req.SourceURL}}
	}
	onStatus(jobID, domain.StatusProcessing)
	onStatus(jobID, domain.StatusCompleted)
	return &domain.Output{JobID: jobID, Segments: 4, File: &domain.FileOutput{Path: req.Target.Path, Size: 10}}, nil
}

func newTestManager(t *testing.T, store *memStore, dl app.Downloader, loadExisting bool) *QueueManager {
	t.Helper()
	a := app.NewContext(&config.Config{Pool: config.PoolConfig{Concurrency: 2}}, logger.NewNop())
	a.Store = store
	a.Downloader = dl
	return NewQueueManager(a, loadExisting)
}

func TestQueueManagerRunsJobs(t *testing.T) {
	store := newMemStore()
	dl := &scriptedDownloader{fail: map[string]bool{"https://bad/{{index}}.ts": true}}
	m := newTestManager(t, store, dl, false)

	good, err := m.Add(domain.Request{SourceURL: "https://good/{{index}}.ts", Target: domain.FileTarget("/out/good.mp4")})
	require.NoError(t, err)
	bad, err := m.Add(domain.Request{SourceURL: "https://bad/{{index}}.ts", Target: domain.FileTarget("/out/bad.mp4")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, good.Status)
	assert.NotEqual(t, good.ID, bad.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	require.Eventually(t, func() bool {
		g, _ := m.GetItem(good.ID)
		b, _ := m.GetItem(bad.ID)
		// terminal statuses arrive before the outcome is recorded
		return g.OutputPath != "" && b.Error != ""
	}, 2*time.Second, 10*time.Millisecond)

	g, ok := m.GetItem(good.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusCompleted, g.Status)
	assert.Equal(t, "good", g.JobID)
	assert.Equal(t, 4, g.Segments)
	assert.Equal(t, "/out/good.mp4", g.OutputPath)
	assert.Empty(t, g.Error)

	b, ok := m.GetItem(bad.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, b.Status)
	assert.Equal(t, "bad", b.JobID)
	assert.Contains(t, b.Error, "no segments found")

	items, err := m.GetAllItems()
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestQueueManagerPicksUpLateJobs(t *testing.T) {
	m := newTestManager(t, newMemStore(), &scriptedDownloader{}, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	item, err := m.Add(domain.Request{SourceURL: "https://late/{{index}}.ts", Target: domain.FileTarget("/out/late.mp4")})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := m.GetItem(item.ID)
		return got.Status == domain.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestQueueManagerRejectsInvalidRequests(t *testing.T) {
	store := newMemStore()
	m := newTestManager(t, store, &scriptedDownloader{}, false)

	_, err := m.Add(domain.Request{SourceURL: "https://x/{{index}}.ts", Target: domain.StreamTarget("mp4")})
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = m.Add(domain.Request{SourceURL: "https://x/{{index}}.ts", Target: domain.FileTarget("/out/noext")})
	assert.True(t, errors.Is(err, domain.ErrExtensionRequired))

	items, err := m.GetAllItems()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestQueueManagerRequeuesUnfinishedItems(t *testing.T) {
	store := newMemStore(
		domain.QueueItem{ID: "a", Request: domain.Request{SourceURL: "https://a/{{index}}.ts", Target: domain.FileTarget("/out/a.mp4")}, Status: domain.StatusDownloading},
		domain.QueueItem{ID: "b", Request: domain.Request{SourceURL: "https://b/{{index}}.ts", Target: domain.FileTarget("/out/b.mp4")}, Status: domain.StatusCompleted},
	)
	dl := &scriptedDownloader{}
	m := newTestManager(t, store, dl, true)

	a, ok := m.GetItem("a")
	require.True(t, ok)
	assert.Equal(t, domain.StatusQueued, a.Status)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	require.Eventually(t, func() bool {
		got, _ := m.GetItem("a")
		return got.Status == domain.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	dl.mu.Lock()
	defer dl.mu.Unlock()
	assert.Equal(t, []string{"https://a/{{index}}.ts"}, dl.runs)
}

func TestGetItemUnknown(t *testing.T) {
	m := newTestManager(t, newMemStore(), &scriptedDownloader{}, false)
	_, ok := m.GetItem("missing")
	assert.False(t, ok)
}
