package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/datallboy/gosplice/internal/app"
	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/infra/logger"
	"github.com/datallboy/gosplice/internal/pool"
)

// QueueManager accepts file-target jobs from the API, persists them in the run
// ledger and drains them through the task pool.
type QueueManager struct {
	mu          sync.RWMutex
	downloader  app.Downloader
	store       app.Store
	log         *logger.Logger
	concurrency int

	queue  []*domain.QueueItem
	active map[string]*domain.QueueItem

	newJobChan chan struct{}
}

// NewQueueManager builds a manager. With loadExisting, unfinished items from the
// ledger are queued again; interrupted ones restart from their working directory.
func NewQueueManager(appCtx *app.Context, loadExisting bool) *QueueManager {
	m := &QueueManager{
		downloader:  appCtx.Downloader,
		store:       appCtx.Store,
		log:         appCtx.Logger,
		concurrency: appCtx.Config.Pool.Concurrency,
		active:      make(map[string]*domain.QueueItem),
		newJobChan:  make(chan struct{}, 1),
	}

	if loadExisting {
		pending, err := m.store.GetActiveQueueItems()
		if err != nil {
			m.log.Warn("Could not load pending jobs: %v", err)
		}
		for _, item := range pending {
			item.Status = domain.StatusQueued
			m.queue = append(m.queue, item)
		}
	}

	return m
}

// Add validates req, records it and wakes the Start loop.
func (m *QueueManager) Add(req domain.Request) (*domain.QueueItem, error) {
	if req.Target.Kind != domain.TargetFile {
		return nil, &domain.ConfigurationError{Field: "target", Err: errors.New("only file targets can be queued")}
	}
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &domain.QueueItem{
		ID:        ksuid.New().String(),
		Request:   req,
		Status:    domain.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.SaveQueueItem(item); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.queue = append(m.queue, item)
	snapshot := *item
	m.mu.Unlock()

	select {
	case m.newJobChan <- struct{}{}:
	default:
		// Signal already pending, no need to block
	}

	return &snapshot, nil
}

// Start runs queued jobs until ctx is done. Each batch of waiting jobs goes through
// the pool in collect-all mode, so one failed job never holds back the others.
func (m *QueueManager) Start(ctx context.Context) {
	for {
		batch := m.takeQueued()

		if len(batch) == 0 {
			select {
			case <-m.newJobChan:
				continue
			case <-ctx.Done():
				return
			}
		}

		m.log.Info("Dispatching %d queued job(s)", len(batch))
		if _, err := pool.AllSettled(ctx, batch, m.process, m.concurrency); err != nil {
			m.log.Error("Queue dispatch failed: %v", err)
			return
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func (m *QueueManager) process(ctx context.Context, item *domain.QueueItem) (*domain.Output, error) {
	out, err := m.downloader.Run(ctx, item.Request, func(jobID string, status domain.JobStatus) {
		m.updateStatus(item, jobID, status)
	})
	m.finalizeJob(item, out, err)
	return out, err
}

func (m *QueueManager) takeQueued() []*domain.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := m.queue
	m.queue = nil
	for _, item := range batch {
		m.active[item.ID] = item
	}
	return batch
}

// GetItem returns a copy of the item from the live queue, falling back to the ledger.
func (m *QueueManager) GetItem(id string) (domain.QueueItem, bool) {
	m.mu.RLock()
	if item, ok := m.active[id]; ok {
		cp := *item
		m.mu.RUnlock()
		return cp, true
	}
	for _, item := range m.queue {
		if item.ID == id {
			cp := *item
			m.mu.RUnlock()
			return cp, true
		}
	}
	m.mu.RUnlock()

	item, err := m.store.GetQueueItem(id)
	if err == nil && item != nil {
		return *item, true
	}

	return domain.QueueItem{}, false
}

// GetAllItems lists the ledger, oldest first.
func (m *QueueManager) GetAllItems() ([]domain.QueueItem, error) {
	items, err := m.store.GetQueueItems()
	if err != nil {
		return nil, err
	}

	out := make([]domain.QueueItem, len(items))
	for i, item := range items {
		out[i] = *item
	}
	return out, nil
}

// updateStatus changes the status and saves to DB immediately
func (m *QueueManager) updateStatus(item *domain.QueueItem, jobID string, status domain.JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item.JobID = jobID
	item.Status = status
	item.UpdatedAt = time.Now().UTC()
	if err := m.store.SaveQueueItem(item); err != nil {
		m.log.Warn("Could not persist status of %s: %v", item.ID, err)
	}
}

func (m *QueueManager) finalizeJob(item *domain.QueueItem, out *domain.Output, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	recordOutcome(item, out, err)

	// Persist the final outcome
	if err := m.store.SaveQueueItem(item); err != nil {
		m.log.Warn("Could not persist outcome of %s: %v", item.ID, err)
	}

	delete(m.active, item.ID)
}

// recordOutcome copies a finished run's result onto its ledger item.
func recordOutcome(item *domain.QueueItem, out *domain.Output, err error) {
	if err != nil {
		item.Status = domain.StatusFailed
		if errors.Is(err, context.Canceled) {
			item.Error = "cancelled"
		} else {
			item.Error = err.Error()
		}

		var jobErr *domain.JobError
		if errors.As(err, &jobErr) {
			item.JobID = jobErr.JobID
		}
	} else {
		item.Status = domain.StatusCompleted
		item.Error = ""
		item.JobID = out.JobID
		item.Segments = out.Segments
		if out.File != nil {
			item.OutputPath = out.File.Path
		}
	}
	item.UpdatedAt = time.Now().UTC()
}
