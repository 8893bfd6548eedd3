package domain

import (
	"errors"
	"fmt"
)

// ErrExtensionRequired is returned when a file target has no extension to infer the container from.
var ErrExtensionRequired = errors.New(`please provide an output file path with an extension, for example "output.mp4"`)

// ErrWorkDirInUse is returned when another running job already owns the working directory.
var ErrWorkDirInUse = errors.New("working directory is in use by another job")

// ConfigurationError reports invalid caller input. Nothing has been written when it is returned.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NoSegmentsFoundError means the series terminated before a single segment was confirmed.
type NoSegmentsFoundError struct {
	SourceURL string
}

func (e *NoSegmentsFoundError) Error() string {
	return fmt.Sprintf("no segments found at %s: provide a valid segment url", e.SourceURL)
}

// SegmentTransportError is a network or disk failure while acquiring one index.
type SegmentTransportError struct {
	Index int
	URL   string
	Err   error
}

func (e *SegmentTransportError) Error() string {
	return fmt.Sprintf("segment %d (%s): %v", e.Index, e.URL, e.Err)
}

func (e *SegmentTransportError) Unwrap() error { return e.Err }

// MergeTranscodeError carries the tail of ffmpeg's diagnostics for the failed stage.
type MergeTranscodeError struct {
	Stage  string
	Err    error
	Output string
}

func (e *MergeTranscodeError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s failed: %v\nOutput: %s", e.Stage, e.Err, e.Output)
}

func (e *MergeTranscodeError) Unwrap() error { return e.Err }

// PoolTaskError ties a task failure to the position of its input item.
type PoolTaskError struct {
	Index int
	Err   error
}

func (e *PoolTaskError) Error() string {
	return fmt.Sprintf("task %d: %v", e.Index, e.Err)
}

func (e *PoolTaskError) Unwrap() error { return e.Err }

// JobError wraps any acquisition or packaging failure with the job it belongs to.
type JobError struct {
	JobID     string
	SourceURL string
	Err       error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s (%s): %v", e.JobID, e.SourceURL, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }
