package engine

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/datallboy/gosplice/internal/app"
	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/infra/logger"
)

// Ledger records runs that do not go through the QueueManager (CLI, batch and
// streaming requests) in the store. Store failures are logged, never returned.
type Ledger struct {
	next  app.Downloader
	store app.Store
	log   *logger.Logger
}

func NewLedger(next app.Downloader, store app.Store, log *logger.Logger) *Ledger {
	return &Ledger{next: next, store: store, log: log}
}

func (l *Ledger) Run(ctx context.Context, req domain.Request, onStatus domain.StatusFunc) (*domain.Output, error) {
	now := time.Now().UTC()
	item := &domain.QueueItem{
		ID:        ksuid.New().String(),
		Request:   req,
		Status:    domain.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.save(item)

	// a stream reports its last status from the consumer's Close
	var mu sync.Mutex
	observe := func(jobID string, status domain.JobStatus) {
		mu.Lock()
		item.JobID = jobID
		item.Status = status
		item.UpdatedAt = time.Now().UTC()
		l.save(item)
		mu.Unlock()

		if onStatus != nil {
			onStatus(jobID, status)
		}
	}

	out, err := l.next.Run(ctx, req, observe)

	mu.Lock()
	defer mu.Unlock()

	switch {
	case err != nil:
		recordOutcome(item, nil, err)
	case out.Stream != nil:
		item.Segments = out.Segments
	default:
		recordOutcome(item, out, nil)
	}
	l.save(item)

	return out, err
}

func (l *Ledger) save(item *domain.QueueItem) {
	if err := l.store.SaveQueueItem(item); err != nil {
		l.log.Warn("Could not record run %s: %v", item.ID, err)
	}
}
