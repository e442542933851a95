package storage

import (
	"context"
	"io"
	"time"
)

type ObjectInfo struct {
	Name     string
	Size     int64
	Modified time.Time
}

// Repository is the backup root as seen by the pipelines. The directory
// listing is the only index of backup history, so everything that reads or
// mutates artifacts goes through here.
type Repository interface {
	MkdirAll(ctx context.Context, dir string) error
	List(ctx context.Context, dir string) ([]string, error)
	Stat(ctx context.Context, dir, name string) (ObjectInfo, error)
	Create(ctx context.Context, dir, name string) (io.WriteCloser, error)
	Open(ctx context.Context, dir, name string) (io.ReadCloser, error)
	Rename(ctx context.Context, dir, from, to string) error
	Remove(ctx context.Context, dir, name string) error
}

// Mirror keeps an off-site copy of committed artifacts. It never takes part
// in lineage decisions.
type Mirror interface {
	Upload(ctx context.Context, kind, name string, reader io.Reader, size int64) error
	Delete(ctx context.Context, kind, name string) error
}
