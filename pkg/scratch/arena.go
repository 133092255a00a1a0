// Package scratch manages per-job temporary directories. Every generation
// job gets its own arena, so concurrent consolidated and nominee runs can
// never collide on temp filenames.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Gobusters/ectologger"
)

// Arena is a job-scoped temporary directory. All intermediate artifacts of a
// run (downloaded originals, converted TIFFs, DBF files, the assembled ZIP)
// live inside it, and Cleanup removes them in one sweep.
type Arena struct {
	dir    string
	logger ectologger.Logger
}

// NewArena allocates a fresh directory under root (os.TempDir when empty).
func NewArena(root, prefix string, logger ectologger.Logger) (*Arena, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("scratch: prepare root %s: %w", root, err)
	}

	dir, err := os.MkdirTemp(root, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("scratch: allocate arena: %w", err)
	}

	return &Arena{
		dir:    dir,
		logger: logger,
	}, nil
}

// Dir returns the arena's directory path.
func (a *Arena) Dir() string {
	return a.dir
}

// Path returns the path for a named file inside the arena.
func (a *Arena) Path(name string) string {
	return filepath.Join(a.dir, name)
}

// Cleanup removes the arena and everything in it. Best-effort: failures are
// logged, never fatal.
func (a *Arena) Cleanup() {
	if err := os.RemoveAll(a.dir); err != nil {
		a.logger.WithError(err).Errorf("Failed to clean scratch arena %s", a.dir)
	}
}
