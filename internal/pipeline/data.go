package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rowjay/mybak/internal/lineage"
	"github.com/rowjay/mybak/internal/util"
	"github.com/rowjay/mybak/internal/xtrabackup"
)

// TempDataName is where the backup stream is written before commit. It has
// two underscore fields, so it never matches the data history filter.
var TempDataName = "tmp_backup" + lineage.Data.Ext()

// DataPipeline takes the weekly full or daily incremental backup.
type DataPipeline struct {
	base
	runner  xtrabackup.Runner
	request xtrabackup.Request
	weekday int
}

// NewData builds a data pipeline. request carries the executor settings;
// its IncrementalLSN and Output are filled per run.
func NewData(deps Deps, opts Options, runner xtrabackup.Runner, request xtrabackup.Request, weekday int) *DataPipeline {
	return &DataPipeline{base: base{Deps: deps, opts: opts}, runner: runner, request: request, weekday: weekday}
}

func (p *DataPipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{Kind: lineage.Data.Name(), DryRun: p.opts.DryRun}
	dir, history, err := p.prepare(ctx, lineage.Data, report)
	if err != nil {
		return report, err
	}

	anchor, ok := lineage.LastFullAnchor(history)
	typ := lineage.NextDataBackupType(p.opts.Today, p.weekday, anchor, ok)
	report.Type = typ

	from := "0"
	req := p.request
	req.IncrementalLSN = ""
	if typ == lineage.Incremental {
		if !ok {
			return report, fmt.Errorf("%w (today %s)", lineage.ErrNoFullAnchor, lineage.Day(p.opts.Today))
		}
		from, err = lineage.FromLSN(anchor)
		if err != nil {
			return report, fmt.Errorf("%w: %v", lineage.ErrNoFullAnchor, err)
		}
		req.IncrementalLSN = from
	}

	p.Log.Info().
		Str("status", StatusExecute).
		Str("kind", lineage.Data.Name()).
		Str("type", typ.String()).
		Str("anchor", anchor).
		Str("command", util.CommandLine(req.Executor, xtrabackup.Args(req))).
		Str("output", TempDataName).
		Msg("starting backup")
	if p.opts.DryRun {
		return report, nil
	}

	out, err := p.Repo.Create(ctx, dir, TempDataName)
	if err != nil {
		return report, fmt.Errorf("create %s: %w", TempDataName, err)
	}
	req.Output = out
	res, runErr := p.runner.Backup(ctx, req)
	closeErr := out.Close()

	if cause := backupFailure(res, runErr, closeErr); cause != nil {
		p.discard(ctx, dir, TempDataName)
		p.Log.Error().Err(cause).Str("status", StatusFailure).Str("kind", lineage.Data.Name()).Str("output", TempDataName).Msg("backup failed")
		return report, fmt.Errorf("%w: %v", ErrCollaborator, cause)
	}

	name, err := lineage.Data.Format(lineage.Artifact{
		Date:    lineage.Day(p.opts.Today),
		Type:    typ,
		FromLSN: from,
		ToLSN:   res.Watermark,
	})
	if err != nil {
		p.discard(ctx, dir, TempDataName)
		return report, fmt.Errorf("%w: %v", ErrCollaborator, err)
	}
	if err := p.commit(ctx, dir, TempDataName, name); err != nil {
		return report, fmt.Errorf("commit %s: %w", name, err)
	}
	report.Artifacts = append(report.Artifacts, name)
	p.logCommitted(ctx, lineage.Data, dir, name)
	p.mirrorUpload(ctx, lineage.Data, dir, name)
	return report, nil
}

func backupFailure(res xtrabackup.Result, runErr, closeErr error) error {
	switch {
	case runErr != nil:
		return runErr
	case closeErr != nil:
		return closeErr
	case !res.OK():
		return errors.New("checkpoint marker not found in backup output")
	}
	return nil
}
