package segment

import (
	"strconv"
	"strings"
)

const (
	// Placeholder is replaced by the segment index in a URL template.
	Placeholder = "{{index}}"

	ManifestName = "segments.txt"
	segmentExt   = ".ts"
	partSuffix   = ".part"
)

// SeriesSpec addresses a numbered run of segments. Stop == 0 leaves the end open
// so the fetcher discovers it from the origin's responses.
type SeriesSpec struct {
	URLTemplate string
	Start       int
	Stop        int
}

func (s SeriesSpec) Templated() bool {
	return strings.Contains(s.URLTemplate, Placeholder)
}

// Normalize defaults Start to 1 and pins an untemplated URL to index 1, so the
// series is one attempt when Start is 1 and empty otherwise.
func (s SeriesSpec) Normalize() SeriesSpec {
	if s.Start == 0 {
		s.Start = 1
	}
	if !s.Templated() {
		s.Stop = 1
	}
	return s
}

func (s SeriesSpec) URL(index int) string {
	return strings.ReplaceAll(s.URLTemplate, Placeholder, strconv.Itoa(index))
}

func (s SeriesSpec) pastStop(index int) bool {
	return s.Stop > 0 && index > s.Stop
}

// SegmentName is the on-disk and manifest name for an index.
func SegmentName(index int) string {
	return strconv.Itoa(index) + segmentExt
}
