package compress

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/klauspost/compress/zstd"
)

// Options tune the zstd encoder. Zero values mean the library defaults.
type Options struct {
	Threads int
	Level   int
}

func (o Options) encoderOptions() []zstd.EOption {
	threads := o.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	opts := []zstd.EOption{zstd.WithEncoderConcurrency(threads)}
	if o.Level > 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(o.Level)))
	}
	return opts
}

// NewWriter wraps w in a zstd encoder. The stream is a standard zstd frame
// readable by the zstd command line tool.
func NewWriter(w io.Writer, opts Options) (io.WriteCloser, error) {
	enc, err := zstd.NewWriter(w, opts.encoderOptions()...)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return enc, nil
}

// Zstd compresses whole files; it is the log pipeline's archiver.
type Zstd struct {
	Options Options
}

func (z Zstd) Archive(ctx context.Context, dst io.Writer, src io.Reader) error {
	enc, err := NewWriter(dst, z.Options)
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, contextReader{ctx: ctx, r: src}); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
