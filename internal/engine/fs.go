package engine

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/datallboy/gosplice/internal/domain"
)

var (
	camelBoundary = regexp.MustCompile(`([\p{Ll}0-9])(\p{Lu})`)
	unsafeRun     = regexp.MustCompile(`[^a-z0-9_]+`)
)

// DeriveJobID picks the job id: explicit name, then the output file's basename up
// to its first dot, then a random uuid.
func DeriveJobID(name string, target domain.Target) string {
	id := normalizeJobID(name)

	if id == "" && target.Kind == domain.TargetFile {
		base := filepath.Base(target.Path)
		if i := strings.Index(base, "."); i >= 0 {
			base = base[:i]
		}
		id = normalizeJobID(base)
	}

	if id == "" {
		id = uuid.NewString()
	}
	return id
}

// normalizeJobID lowercases and hyphenates so the id is safe in paths and URLs.
// Anything outside [a-z0-9_] collapses into a hyphen, so a name with no ASCII
// letters or digits normalizes to empty.
func normalizeJobID(s string) string {
	s = camelBoundary.ReplaceAllString(s, "$1-$2")
	s = strings.ToLower(s)
	s = unsafeRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// removeWorkDir deletes a working directory. Already gone is fine.
func removeWorkDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// moveCrossDevice handles moving files between different mount points/filesystems
func moveCrossDevice(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	tempDest := filepath.Join(filepath.Dir(destPath), "."+filepath.Base(destPath)+".tmp")

	dst, err := os.Create(tempDest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}

	// Explicitly close before renaming and deleting the source
	src.Close()
	if err := dst.Close(); err != nil {
		os.Remove(tempDest)
		return err
	}

	if err := os.Rename(tempDest, destPath); err != nil {
		os.Remove(tempDest)
		return err
	}

	// Remove the original file only after copy success
	return os.Remove(sourcePath)
}

// moveFile renames, falling back to a copy when source and dest are on different devices.
func moveFile(source, dest string) error {
	err := os.Rename(source, dest)
	if err == nil {
		return nil
	}

	return moveCrossDevice(source, dest)
}
