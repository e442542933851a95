package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

type Local struct {
	fs afero.Fs
}

func NewLocal(fs afero.Fs) *Local {
	return &Local{fs: fs}
}

// NewOSLocal returns a repository backed by the host filesystem.
func NewOSLocal() *Local {
	return NewLocal(afero.NewOsFs())
}

func (l *Local) MkdirAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	return nil
}

// List returns the regular file names in dir. A missing directory has no
// history and yields an empty list.
func (l *Local) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (l *Local) Stat(ctx context.Context, dir, name string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	info, err := l.fs.Stat(filepath.Join(dir, name))
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Name: name, Size: info.Size(), Modified: info.ModTime()}, nil
}

func (l *Local) Create(ctx context.Context, dir, name string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.fs.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
}

func (l *Local) Open(ctx context.Context, dir, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.fs.Open(filepath.Join(dir, name))
}

// Rename moves from to to inside dir. On a single filesystem this is the
// atomic commit point of a backup.
func (l *Local) Rename(ctx context.Context, dir, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.fs.Rename(filepath.Join(dir, from), filepath.Join(dir, to))
}

func (l *Local) Remove(ctx context.Context, dir, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.fs.Remove(filepath.Join(dir, name))
}
