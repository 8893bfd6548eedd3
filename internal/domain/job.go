package domain

import (
	"io"
	"time"
)

type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusDownloading JobStatus = "downloading"
	StatusProcessing  JobStatus = "processing" // merge + repackage
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

type TargetKind string

const (
	TargetFile   TargetKind = "file"
	TargetStream TargetKind = "stream"
)

// Target is where the packaged artifact goes: a file on disk or a live stream in Format.
type Target struct {
	Kind   TargetKind `json:"kind"`
	Path   string     `json:"path,omitempty"`
	Format string     `json:"format,omitempty"`
}

func FileTarget(path string) Target { return Target{Kind: TargetFile, Path: path} }

func StreamTarget(format string) Target { return Target{Kind: TargetStream, Format: format} }

func (t Target) String() string {
	if t.Kind == TargetStream {
		return "stream:" + t.Format
	}
	return t.Path
}

// CleanupPolicy flags are independent. Every applicable flag runs; Always runs last.
type CleanupPolicy struct {
	OnSuccess bool `json:"on_success" mapstructure:"on_success" yaml:"on_success"`
	OnError   bool `json:"on_error" mapstructure:"on_error" yaml:"on_error"`
	Always    bool `json:"always" mapstructure:"always" yaml:"always"`
}

type JobOptions struct {
	Name    string        `json:"name,omitempty"`
	Start   int           `json:"start,omitempty"`
	Stop    int           `json:"stop,omitempty"` // 0 = discover the end
	Format  string        `json:"format,omitempty"`
	TmpDir  string        `json:"tmp_dir,omitempty"`
	Cleanup CleanupPolicy `json:"cleanup"`
}

// Request is one acquisition/packaging job as submitted by a caller.
type Request struct {
	SourceURL string     `json:"url"`
	Target    Target     `json:"target"`
	Options   JobOptions `json:"options"`
}

// StatusFunc observes job status transitions.
type StatusFunc func(jobID string, status JobStatus)

// QueueItem is a request tracked through the run ledger.
type QueueItem struct {
	ID string `json:"id"`
	Request

	JobID      string    `json:"job_id,omitempty"`
	Status     JobStatus `json:"status"`
	Segments   int       `json:"segments"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (q *QueueItem) Finished() bool {
	return q.Status == StatusCompleted || q.Status == StatusFailed
}

type FileOutput struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Output is the routed artifact. Exactly one of File and Stream is set.
type Output struct {
	JobID    string
	Segments int
	File     *FileOutput
	Stream   io.ReadCloser
}
