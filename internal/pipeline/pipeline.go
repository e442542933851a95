// Package pipeline runs one backup pass over a backup root: prune expired
// artifacts, derive the next artifact from lineage, invoke the collaborator
// and commit the result by renaming it to its final name.
package pipeline

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/rowjay/mybak/internal/lineage"
	"github.com/rowjay/mybak/internal/storage"
	"github.com/rowjay/mybak/internal/util"
)

// ErrCollaborator marks a backup or compression step that produced no usable
// artifact.
var ErrCollaborator = errors.New("backup collaborator failed")

// Status values logged for every external step.
const (
	StatusExecute = "EXECUTE"
	StatusSuccess = "SUCCESS"
	StatusFailure = "FAILURE"
)

// Options are shared by both pipelines. Today is injected so lineage
// decisions are reproducible.
type Options struct {
	Root           string
	KeepWeeks      int
	DryRun         bool
	Today          time.Time
	MirrorAttempts int
	MirrorBackoff  time.Duration
}

type Deps struct {
	Repo   storage.Repository
	Mirror storage.Mirror
	Log    zerolog.Logger
}

// Report summarizes a pipeline run.
type Report struct {
	Kind       string
	Type       lineage.BackupType
	DryRun     bool
	Pruned     []string
	Artifacts  []string
	Superseded string
}

type base struct {
	Deps
	opts Options
}

// prepare ensures the kind's directory exists, prunes expired artifacts and
// returns the fresh history. A dry run only reports what retention would do.
func (b *base) prepare(ctx context.Context, kind lineage.Kind, report *Report) (string, []string, error) {
	dir := kind.Dir(b.opts.Root)
	if !b.opts.DryRun {
		if err := b.Repo.MkdirAll(ctx, dir); err != nil {
			return dir, nil, err
		}
	}
	history, err := lineage.History(ctx, b.Repo, kind, dir)
	if err != nil {
		return dir, nil, err
	}

	cutoff := lineage.RetentionCutoff(b.opts.Today, b.opts.KeepWeeks)
	if b.opts.DryRun {
		for _, name := range lineage.Expired(history, cutoff) {
			b.Log.Info().Str("kind", kind.Name()).Str("artifact", name).Str("cutoff", cutoff).Msg("dry run: retention would remove")
		}
		return dir, history, nil
	}

	removed, err := lineage.PruneExpired(ctx, b.Repo, dir, history, cutoff, false)
	for _, name := range removed {
		b.Log.Info().Str("kind", kind.Name()).Str("artifact", name).Str("cutoff", cutoff).Msg("removed expired artifact")
		b.mirrorDelete(ctx, kind, name)
	}
	report.Pruned = removed
	if err != nil {
		b.Log.Warn().Err(err).Str("kind", kind.Name()).Msg("retention sweep incomplete")
	}
	if len(removed) == 0 {
		return dir, history, nil
	}
	history, err = lineage.History(ctx, b.Repo, kind, dir)
	return dir, history, err
}

// commit renames tmp to name inside dir; a failed rename removes tmp so no
// partial artifact is left behind.
func (b *base) commit(ctx context.Context, dir, tmp, name string) error {
	if err := b.Repo.Rename(ctx, dir, tmp, name); err != nil {
		b.discard(ctx, dir, tmp)
		return err
	}
	return nil
}

func (b *base) discard(ctx context.Context, dir, tmp string) {
	if err := b.Repo.Remove(ctx, dir, tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		b.Log.Warn().Err(err).Str("path", tmp).Msg("failed to remove temporary artifact")
	}
}

func (b *base) logCommitted(ctx context.Context, kind lineage.Kind, dir, name string) {
	event := b.Log.Info().Str("status", StatusSuccess).Str("kind", kind.Name()).Str("artifact", name)
	if info, err := b.Repo.Stat(ctx, dir, name); err == nil {
		event = event.Str("size", humanize.Bytes(uint64(info.Size)))
	}
	event.Msg("artifact committed")
}

func (b *base) mirrorUpload(ctx context.Context, kind lineage.Kind, dir, name string) {
	if b.Mirror == nil {
		return
	}
	err := util.Retry(ctx, b.opts.MirrorAttempts, b.opts.MirrorBackoff, func() error {
		info, err := b.Repo.Stat(ctx, dir, name)
		if err != nil {
			return err
		}
		reader, err := b.Repo.Open(ctx, dir, name)
		if err != nil {
			return err
		}
		defer reader.Close()
		return b.Mirror.Upload(ctx, kind.Name(), name, reader, info.Size)
	})
	if err != nil {
		b.Log.Warn().Err(err).Str("kind", kind.Name()).Str("artifact", name).Msg("mirror upload failed")
		return
	}
	b.Log.Debug().Str("kind", kind.Name()).Str("artifact", name).Msg("mirrored")
}

func (b *base) mirrorDelete(ctx context.Context, kind lineage.Kind, name string) {
	if b.Mirror == nil {
		return
	}
	if err := b.Mirror.Delete(ctx, kind.Name(), name); err != nil {
		b.Log.Warn().Err(err).Str("kind", kind.Name()).Str("artifact", name).Msg("mirror delete failed")
	}
}
