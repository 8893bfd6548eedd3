package app

import (
	"context"
	"io"

	"github.com/datallboy/gosplice/internal/domain"
	"github.com/datallboy/gosplice/internal/events"
	"github.com/datallboy/gosplice/internal/infra/config"
	"github.com/datallboy/gosplice/internal/infra/logger"
	"github.com/datallboy/gosplice/internal/transcode"
)

// Transcoder is the external merge/repackage collaborator. The engine only relies
// on this two-stage contract, never on how the work is done.
type Transcoder interface {
	Merge(ctx context.Context, manifestPath, outPath string, progress transcode.ProgressFunc) error
	Package(ctx context.Context, inPath, outPath string, progress transcode.ProgressFunc) error
	Stream(ctx context.Context, inPath, format string) (io.ReadCloser, error)
}

type Downloader interface {
	// Run executes one job end to end. onStatus may be nil.
	Run(ctx context.Context, req domain.Request, onStatus domain.StatusFunc) (*domain.Output, error)
}

// Store is the run ledger.
type Store interface {
	SaveQueueItem(item *domain.QueueItem) error
	GetQueueItem(id string) (*domain.QueueItem, error)
	GetQueueItems() ([]*domain.QueueItem, error)
	GetActiveQueueItems() ([]*domain.QueueItem, error)
	Close() error
}

// Context holds the core environment and shared resources for gosplice.
type Context struct {
	Config *config.Config
	Logger *logger.Logger
	Events events.Sink

	Transcoder Transcoder
	Downloader Downloader
	Store      Store
}

// NewContext initializes the base environment. Events default to the log.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
		Events: events.LogSink{Logger: log},
	}
}
