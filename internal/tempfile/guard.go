// Package tempfile scopes the lifetime of request-local temporary files.
//
// A Guard is created when a request starts; every file written through it is
// removed exactly once when Release is called, which the owner defers so that
// success, error and panic paths all clean up.
package tempfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Guard owns a set of temporary files.
type Guard struct {
	dir string

	mu       sync.Mutex
	paths    []string
	released bool
	once     sync.Once
	err      error
}

// ErrReleased is returned when writing through a guard that was already released.
var ErrReleased = errors.New("tempfile: guard released")

// NewGuard creates a guard writing into dir. The directory is created if missing.
func NewGuard(dir string) (*Guard, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	return &Guard{dir: dir}, nil
}

// Write copies r into a new file named "<prefix>_<uuid><ext>" and tracks it.
// A partially written file is still tracked, so Release removes it.
func (g *Guard) Write(prefix, ext string, r io.Reader) (string, int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return "", 0, ErrReleased
	}

	name := fmt.Sprintf("%s_%s%s", prefix, uuid.NewString(), ext)
	path := filepath.Join(g.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("creating temp file: %w", err)
	}
	g.paths = append(g.paths, path)

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", n, fmt.Errorf("writing temp file: %w", err)
	}
	return path, n, nil
}

// Paths returns the files currently tracked.
func (g *Guard) Paths() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.paths...)
}

// Release removes every tracked file. Only the first call does work; later
// calls return the same result. Files that are already gone are not errors.
func (g *Guard) Release() error {
	g.once.Do(func() {
		g.mu.Lock()
		paths := g.paths
		g.paths = nil
		g.released = true
		g.mu.Unlock()

		var result *multierror.Error
		for _, p := range paths {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				result = multierror.Append(result, fmt.Errorf("removing %s: %w", p, err))
			}
		}
		g.err = result.ErrorOrNil()
	})
	return g.err
}
