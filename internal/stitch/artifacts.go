package stitch

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// artifacts tracks the segment files created by a single request. Only
// paths handed out by next are ever removed.
type artifacts struct {
	dir   string
	paths []string
	log   *slog.Logger
}

func newArtifacts(dir string, log *slog.Logger) *artifacts {
	return &artifacts{dir: dir, log: log}
}

// next reserves a unique path and records it for cleanup before any file
// exists, so partially written output is still removed.
func (a *artifacts) next() string {
	path := filepath.Join(a.dir, uuid.NewString()+".wav")
	a.paths = append(a.paths, path)
	return path
}

// cleanup removes every recorded path that exists. Failures are logged and
// do not stop the remaining removals.
func (a *artifacts) cleanup() {
	for _, path := range a.paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.log.Warn("failed to remove segment artifact", slog.String("path", path), slogError(err))
		}
	}
	a.paths = nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
