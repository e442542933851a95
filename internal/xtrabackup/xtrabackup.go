// Package xtrabackup drives a streaming physical backup through
// xtrabackup or mariabackup and captures the checkpoint it reports.
package xtrabackup

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rowjay/mybak/internal/compress"
	"github.com/rowjay/mybak/internal/util"
)

// Request describes one backup invocation.
type Request struct {
	Executor   string
	ConfigFile string
	// IncrementalLSN is the checkpoint to chain from; empty for a full backup.
	IncrementalLSN string
	Parallel       int
	TargetDir      string
	// Output receives the compressed xbstream.
	Output io.Writer
}

// Result carries the checkpoint watermark. An empty watermark means the
// backup cannot be trusted, whatever the exit status was.
type Result struct {
	Watermark string
}

func (r Result) OK() bool { return r.Watermark != "" }

// Runner is the backup collaborator of the data pipeline.
type Runner interface {
	Backup(ctx context.Context, req Request) (Result, error)
}

// Args builds the executor arguments for req.
func Args(req Request) []string {
	args := []string{
		"--defaults-file=" + req.ConfigFile,
		"--backup",
		"--stream=xbstream",
	}
	if req.Parallel > 0 {
		args = append(args, "--parallel="+strconv.Itoa(req.Parallel))
	}
	if req.TargetDir != "" {
		args = append(args, "--target-dir="+req.TargetDir)
	}
	if req.IncrementalLSN != "" {
		args = append(args, "--incremental-lsn="+req.IncrementalLSN)
	}
	return args
}

// ParseWatermark extracts the single-quoted LSN from a line carrying marker.
func ParseWatermark(line, marker string) (string, bool) {
	if marker == "" || !strings.Contains(line, marker) {
		return "", false
	}
	parts := strings.Split(line, "'")
	if len(parts) < 3 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Exec runs the executor as a child process. The xbstream on stdout is
// compressed with zstd into Request.Output while the log on stderr is read
// line by line for the checkpoint marker.
type Exec struct {
	Marker   string
	Compress compress.Options
	Env      []string
	Log      zerolog.Logger
}

func (e Exec) Backup(ctx context.Context, req Request) (Result, error) {
	if req.Output == nil {
		return Result{}, errors.New("xtrabackup: no output")
	}
	g, gctx := errgroup.WithContext(ctx)
	runCtx, kill := context.WithCancel(gctx)
	defer kill()

	cmd := util.Command(runCtx, req.Executor, Args(req), e.Env)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, err
	}
	enc, err := compress.NewWriter(req.Output, e.Compress)
	if err != nil {
		return Result{}, err
	}
	if err := cmd.Start(); err != nil {
		_ = enc.Close()
		return Result{}, fmt.Errorf("start %s: %w", req.Executor, err)
	}

	// A reader that gives up kills the child and keeps draining its pipe so
	// neither the child nor anything it spawned blocks on a full pipe.
	tool := filepath.Base(req.Executor)
	var watermark string
	g.Go(func() error {
		if _, err := io.Copy(enc, stdout); err != nil {
			kill()
			_, _ = io.Copy(io.Discard, stdout)
			return fmt.Errorf("write backup stream: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			e.Log.Info().Str("tool", tool).Msg(line)
			if wm, ok := ParseWatermark(line, e.Marker); ok {
				watermark = wm
			}
		}
		if err := scanner.Err(); err != nil {
			kill()
			_, _ = io.Copy(io.Discard, stderr)
			return fmt.Errorf("read %s log: %w", tool, err)
		}
		return nil
	})

	streamErr := g.Wait()
	waitErr := cmd.Wait()
	closeErr := enc.Close()

	res := Result{Watermark: watermark}
	switch {
	case streamErr != nil:
		return res, fmt.Errorf("%s stream: %w", tool, streamErr)
	case ctx.Err() != nil:
		return res, fmt.Errorf("%s: %w", tool, ctx.Err())
	case waitErr != nil:
		return res, fmt.Errorf("%s exited: %w", tool, waitErr)
	case closeErr != nil:
		return res, fmt.Errorf("%s compress: %w", tool, closeErr)
	}
	return res, nil
}
