package lock

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName is the lock file created in the backup root when no lock path is
// configured.
const FileName = ".mybak.lock"

type Lock struct {
	file *flock.Flock
}

// Path returns the lock file for a backup root.
func Path(configured, root string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(root, FileName)
}

// Acquire takes an advisory lock so two runs never work on the same backup
// root at once. It fails immediately instead of waiting.
func Acquire(path string) (*Lock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another backup run is already active (lock: %s)", path)
	}
	return &Lock{file: lock}, nil
}

// Release frees the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Unlock()
}
