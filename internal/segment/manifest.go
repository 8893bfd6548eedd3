package segment

import (
	"fmt"
	"os"
)

// manifest is an ffmpeg concat list. Entries are appended in index order as the
// fetcher confirms them, independent of when their bodies finish writing.
type manifest struct {
	path   string
	f      *os.File
	closed bool
}

// createManifest truncates any list left by an earlier run.
func createManifest(path string) (*manifest, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &manifest{path: path, f: f}, nil
}

func (m *manifest) Add(index int) error {
	_, err := fmt.Fprintf(m.f, "file '%s'\n", SegmentName(index))
	return err
}

func (m *manifest) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.f.Sync(); err != nil {
		m.f.Close()
		return err
	}
	return m.f.Close()
}
