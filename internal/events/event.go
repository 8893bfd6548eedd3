package events

import "time"

// Type names an observable step of a job. Events are presentation-only; nothing in
// the pipeline depends on a sink receiving them.
type Type string

const (
	JobStarted     Type = "job_started"
	SegmentStarted Type = "segment_started"
	SegmentDone    Type = "segment_done"
	SegmentSkipped Type = "segment_skipped" // already on disk from an earlier run
	MergeProgress  Type = "merge_progress"
	JobDone        Type = "job_done"
	JobFailed      Type = "job_failed"
)

type Event struct {
	Type  Type   `json:"type"`
	JobID string `json:"job_id,omitempty"`

	Index    int           `json:"index,omitempty"`
	Bytes    int64         `json:"bytes,omitempty"`
	Stage    string        `json:"stage,omitempty"`
	OutTime  time.Duration `json:"out_time,omitempty"`
	Segments int           `json:"segments,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
	Err      string        `json:"error,omitempty"`

	At time.Time `json:"at"`
}

// Sink receives events. Emit must not block the caller for long.
type Sink interface {
	Emit(Event)
}

type Noop struct{}

func (Noop) Emit(Event) {}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

type jobSink struct {
	next  Sink
	jobID string
}

// WithJob stamps every event with jobID and a timestamp before forwarding it.
func WithJob(next Sink, jobID string) Sink {
	if next == nil {
		next = Noop{}
	}
	return &jobSink{next: next, jobID: jobID}
}

func (s *jobSink) Emit(e Event) {
	if e.JobID == "" {
		e.JobID = s.jobID
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.next.Emit(e)
}
