package events

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
)

// CLISink renders a single job's progress on a terminal. The segment count is
// unknown until the series ends, so the bar runs as a spinner with a counter.
type CLISink struct {
	w     io.Writer
	bar   *progressbar.ProgressBar
	bytes atomic.Int64
	mu    sync.Mutex
}

func NewCLISink(w io.Writer, description string) *CLISink {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &CLISink{w: w, bar: bar}
}

func (s *CLISink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case SegmentDone:
		total := s.bytes.Add(e.Bytes)
		s.bar.Describe(fmt.Sprintf("downloading %s", humanize.Bytes(uint64(total))))
		_ = s.bar.Add(1)
	case SegmentSkipped:
		_ = s.bar.Add(1)
	case MergeProgress:
		s.bar.Describe(fmt.Sprintf("%s %s", e.Stage, e.OutTime.Truncate(1e9)))
	case JobDone:
		_ = s.bar.Finish()
		fmt.Fprintf(s.w, "Done! %s segments (%s) in %s\n",
			humanize.Comma(int64(e.Segments)), humanize.Bytes(uint64(s.bytes.Load())), e.Elapsed.Truncate(1e6))
	case JobFailed:
		_ = s.bar.Finish()
		fmt.Fprintf(s.w, "Failed: %s\n", e.Err)
	}
}
