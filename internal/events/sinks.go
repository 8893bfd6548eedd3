package events

import (
	"sync"

	"github.com/datallboy/gosplice/internal/infra/logger"
)

// ChanSink writes events to a channel and drops them when the reader falls behind.
type ChanSink struct {
	ch chan<- Event
}

func NewChanSink(ch chan<- Event) *ChanSink { return &ChanSink{ch: ch} }

func (s *ChanSink) Emit(e Event) {
	if s == nil {
		return
	}
	select {
	case s.ch <- e:
	default:
	}
}

// LogSink turns events into log lines. Per-segment noise goes to Debug.
type LogSink struct {
	Logger *logger.Logger
}

func (s LogSink) Emit(e Event) {
	switch e.Type {
	case JobStarted:
		s.Logger.Info("[%s] Starting acquisition", e.JobID)
	case SegmentStarted:
		s.Logger.Debug("[%s] Segment %d requested", e.JobID, e.Index)
	case SegmentSkipped:
		s.Logger.Debug("[%s] Segment %d already on disk", e.JobID, e.Index)
	case SegmentDone:
		s.Logger.Debug("[%s] Segment %d written (%d bytes)", e.JobID, e.Index, e.Bytes)
	case MergeProgress:
		s.Logger.Debug("[%s] %s at %s", e.JobID, e.Stage, e.OutTime)
	case JobDone:
		s.Logger.Info("[%s] Done: %d segments in %s", e.JobID, e.Segments, e.Elapsed)
	case JobFailed:
		s.Logger.Error("[%s] Failed after %s: %s", e.JobID, e.Elapsed, e.Err)
	}
}

// Hub broadcasts events to any number of subscribers, e.g. websocket clients.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	buffer int
}

func NewHub(buffer int) *Hub {
	return &Hub{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe returns a receive channel and a func that detaches and closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Emit(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			// slow subscriber, drop
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
