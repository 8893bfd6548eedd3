package segment

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// fileWriter owns the open .part handles of a fetch so that a failed or aborted
// run can close and remove every partial segment.
type fileWriter struct {
	mu      sync.Mutex
	handles map[string]*os.File
}

func newFileWriter() *fileWriter {
	return &fileWriter{
		handles: make(map[string]*os.File),
	}
}

func (fw *fileWriter) Create(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("could not open segment file: %w", err)
	}

	fw.mu.Lock()
	fw.handles[path] = f
	fw.mu.Unlock()
	return nil
}

func (fw *fileWriter) Copy(path string, r io.Reader) (int64, error) {
	fw.mu.Lock()
	f, ok := fw.handles[path]
	fw.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("no open handle for %s", path)
	}

	return io.Copy(f, r)
}

// Finalize closes the .part file and renames it to its final name.
func (fw *fileWriter) Finalize(partPath, finalPath string) error {
	if err := fw.close(partPath); err != nil {
		return err
	}
	return os.Rename(partPath, finalPath)
}

// Discard closes and removes a partial file. A missing file is fine.
func (fw *fileWriter) Discard(path string) {
	_ = fw.close(path)
	_ = os.Remove(path)
}

func (fw *fileWriter) close(path string) error {
	fw.mu.Lock()
	f, ok := fw.handles[path]
	// Remove from our map so we don't try to use a closed handle later
	delete(fw.handles, path)
	fw.mu.Unlock()

	if !ok {
		return nil
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DiscardAll removes anything still open. Only leftovers of an aborted run remain here.
func (fw *fileWriter) DiscardAll() {
	fw.mu.Lock()
	paths := make([]string, 0, len(fw.handles))
	for path := range fw.handles {
		paths = append(paths, path)
	}
	fw.mu.Unlock()

	for _, path := range paths {
		fw.Discard(path)
	}
}
