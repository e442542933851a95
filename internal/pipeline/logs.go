package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rowjay/mybak/internal/lineage"
)

// Archiver compresses one binlog file.
type Archiver interface {
	Archive(ctx context.Context, dst io.Writer, src io.Reader) error
}

// LogPipeline archives the binlog files written since the last run.
type LogPipeline struct {
	base
	archiver Archiver
	logDir   string
	basename string
}

// NewLogs builds a log pipeline for the binlogs named by logBin, the
// server's log_bin_basename.
func NewLogs(deps Deps, opts Options, archiver Archiver, logBin string) *LogPipeline {
	logDir, basename := filepath.Split(logBin)
	if logDir == "" {
		logDir = "."
	}
	return &LogPipeline{base: base{Deps: deps, opts: opts}, archiver: archiver, logDir: logDir, basename: basename}
}

func tempLogName(file string) string {
	return "tmp_" + file + lineage.Logs.Ext()
}

// Run archives every selected binlog in order. A failed file is reported and
// skipped; files archived before it stay committed.
func (p *LogPipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{Kind: lineage.Logs.Name(), Type: lineage.Log, DryRun: p.opts.DryRun}
	dir, history, err := p.prepare(ctx, lineage.Logs, report)
	if err != nil {
		return report, err
	}

	names, err := p.Repo.List(ctx, p.logDir)
	if err != nil {
		return report, fmt.Errorf("list binlogs in %s: %w", p.logDir, err)
	}
	candidates := lineage.Binlogs(names, p.basename)
	tip, hasTip := lineage.LastLogTip(history)
	selected := lineage.SelectLogs(candidates, tip, hasTip)
	p.Log.Info().Str("kind", lineage.Logs.Name()).Str("tip", tip).Int("candidates", len(candidates)).Int("selected", len(selected)).Msg("binlogs found")

	today := lineage.Day(p.opts.Today)
	var errs []error
	for _, file := range selected {
		name, err := lineage.Logs.Format(lineage.Artifact{Date: today, Type: lineage.Log, LogName: file})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p.Log.Info().
			Str("status", StatusExecute).
			Str("kind", lineage.Logs.Name()).
			Str("source", filepath.Join(p.logDir, file)).
			Str("output", filepath.Join(dir, name)).
			Msg("archiving binlog")
		if p.opts.DryRun {
			continue
		}

		if err := p.archive(ctx, dir, file, name); err != nil {
			p.Log.Error().Err(err).Str("status", StatusFailure).Str("kind", lineage.Logs.Name()).Str("source", file).Msg("binlog archive failed")
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrCollaborator, file, err))
			continue
		}
		report.Artifacts = append(report.Artifacts, name)
		p.logCommitted(ctx, lineage.Logs, dir, name)
		p.mirrorUpload(ctx, lineage.Logs, dir, name)

		if hasTip && file == lineage.TipLogName(tip) {
			p.retireTip(ctx, dir, tip+lineage.Logs.Ext(), name, report)
		}
	}
	return report, errors.Join(errs...)
}

func (p *LogPipeline) archive(ctx context.Context, dir, file, name string) error {
	src, err := p.Repo.Open(ctx, p.logDir, file)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := tempLogName(file)
	dst, err := p.Repo.Create(ctx, dir, tmp)
	if err != nil {
		return err
	}
	archiveErr := p.archiver.Archive(ctx, dst, src)
	closeErr := dst.Close()
	if err := errors.Join(archiveErr, closeErr); err != nil {
		p.discard(ctx, dir, tmp)
		return err
	}
	return p.commit(ctx, dir, tmp, name)
}

// retireTip removes the previous tip artifact once its binlog has been
// archived again. When both share a name the rename already replaced it.
func (p *LogPipeline) retireTip(ctx context.Context, dir, previous, current string, report *Report) {
	if previous == current {
		return
	}
	if err := p.Repo.Remove(ctx, dir, previous); err != nil {
		p.Log.Warn().Err(err).Str("artifact", previous).Msg("failed to remove superseded tip")
		return
	}
	report.Superseded = previous
	p.Log.Info().Str("kind", lineage.Logs.Name()).Str("artifact", previous).Str("superseded_by", current).Msg("removed superseded tip")
	p.mirrorDelete(ctx, lineage.Logs, previous)
}
