// Package app wires configuration, storage and collaborators into a mybak run.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rowjay/mybak/internal/compress"
	"github.com/rowjay/mybak/internal/config"
	"github.com/rowjay/mybak/internal/db"
	"github.com/rowjay/mybak/internal/lineage"
	"github.com/rowjay/mybak/internal/lock"
	"github.com/rowjay/mybak/internal/notify"
	"github.com/rowjay/mybak/internal/pipeline"
	"github.com/rowjay/mybak/internal/storage"
	"github.com/rowjay/mybak/internal/xtrabackup"
)

type App struct {
	Cfg      *config.Config
	Repo     storage.Repository
	Mirror   storage.Mirror
	Runner   xtrabackup.Runner
	Archiver pipeline.Archiver
	Log      zerolog.Logger
	Notifier notify.Notifier
	Now      func() time.Time
}

// New builds an App with the real collaborators: xtrabackup as a child
// process and in-process zstd for binlogs.
func New(cfg *config.Config, repo storage.Repository, mirror storage.Mirror, log zerolog.Logger, notifier notify.Notifier) *App {
	opts := compressOptions(cfg.Backup)
	return &App{
		Cfg:      cfg,
		Repo:     repo,
		Mirror:   mirror,
		Runner:   xtrabackup.Exec{Marker: cfg.Backup.CheckpointMarker, Compress: opts, Log: log},
		Archiver: compress.Zstd{Options: opts},
		Log:      log,
		Notifier: notifier,
		Now:      time.Now,
	}
}

func compressOptions(cfg config.BackupConfig) compress.Options {
	return compress.Options{Threads: cfg.CompressThreads, Level: cfg.CompressLevel}
}

// RunResult collects the reports of the pipelines a run executed.
type RunResult struct {
	RunID   string
	Reports []*pipeline.Report
}

func (r *RunResult) artifacts() []string {
	var out []string
	for _, rep := range r.Reports {
		out = append(out, rep.Artifacts...)
	}
	return out
}

func (r *RunResult) pruned() []string {
	var out []string
	for _, rep := range r.Reports {
		out = append(out, rep.Pruned...)
	}
	return out
}

// Run executes the data pipeline and then the log pipeline, as selected by
// the mode. A failed data pass ends the run before logs are touched.
func (a *App) Run(ctx context.Context) (*RunResult, error) {
	start := a.now()
	result := &RunResult{RunID: uuid.NewString()}
	log := a.Log.With().Str("run_id", result.RunID).Logger()
	var opErr error
	defer func() {
		a.notify(result, start, opErr)
	}()

	if !a.Cfg.Global.DryRun {
		guard, err := lock.Acquire(lock.Path(a.Cfg.Global.LockFile, a.Cfg.Backup.Dir))
		if err != nil {
			opErr = err
			return result, err
		}
		defer guard.Release()
	}

	deps := pipeline.Deps{Repo: a.Repo, Mirror: a.Mirror, Log: log}
	opts := a.options(start)
	log.Info().Str("mode", a.Cfg.Backup.Mode).Str("root", a.Cfg.Backup.Dir).Bool("dry_run", opts.DryRun).Msg("run started")

	if a.Cfg.Backup.RunsData() {
		req := xtrabackup.Request{
			Executor:   a.Cfg.Backup.Executor,
			ConfigFile: a.Cfg.Backup.MyCnf,
			Parallel:   a.Cfg.Backup.Parallel,
			TargetDir:  a.Cfg.Backup.TargetDir,
		}
		report, err := pipeline.NewData(deps, opts, a.Runner, req, a.Cfg.Backup.Weekday).Run(ctx)
		result.Reports = append(result.Reports, report)
		if err != nil {
			opErr = fmt.Errorf("data backup: %w", err)
			return result, opErr
		}
	}
	if a.Cfg.Backup.RunsLogs() && a.Cfg.Backup.LogBin == "" {
		if !opts.DryRun {
			opErr = fmt.Errorf("log backup: log_bin_basename is not set")
			return result, opErr
		}
		log.Info().Msg("dry run: log_bin_basename unresolved, skipping log backup")
	} else if a.Cfg.Backup.RunsLogs() {
		report, err := pipeline.NewLogs(deps, opts, a.Archiver, a.Cfg.Backup.LogBin).Run(ctx)
		result.Reports = append(result.Reports, report)
		if err != nil {
			opErr = fmt.Errorf("log backup: %w", err)
			return result, opErr
		}
	}
	log.Info().Strs("artifacts", result.artifacts()).Dur("elapsed", a.now().Sub(start)).Msg("run completed")
	return result, nil
}

func (a *App) options(today time.Time) pipeline.Options {
	return pipeline.Options{
		Root:           a.Cfg.Backup.Dir,
		KeepWeeks:      a.Cfg.Backup.KeepWeeks,
		DryRun:         a.Cfg.Global.DryRun,
		Today:          today,
		MirrorAttempts: a.Cfg.Mirror.RetryCount,
		MirrorBackoff:  a.Cfg.Mirror.RetryBackoff,
	}
}

func (a *App) notify(result *RunResult, start time.Time, opErr error) {
	if a.Notifier == nil {
		return
	}
	end := a.now()
	event := notify.Event{
		RunID:     result.RunID,
		Mode:      a.Cfg.Backup.Mode,
		Status:    notify.StatusFromErr(opErr),
		Message:   fmt.Sprintf("mybak %s backup of %s", a.Cfg.Backup.Mode, a.Cfg.Backup.Dir),
		Root:      a.Cfg.Backup.Dir,
		DryRun:    a.Cfg.Global.DryRun,
		Artifacts: result.artifacts(),
		Pruned:    result.pruned(),
		StartedAt: start,
		EndedAt:   end,
		Duration:  end.Sub(start).String(),
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}
	if err := a.Notifier.Notify(context.Background(), event); err != nil {
		a.Log.Warn().Err(err).Msg("notification failed")
	}
}

func (a *App) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

// Entry is one artifact of a history listing.
type Entry struct {
	Kind     string
	Name     string
	Artifact lineage.Artifact
	Size     int64
	Modified time.Time
}

// Listing is the lineage state of a backup root.
type Listing struct {
	Entries      []Entry
	NextDataType lineage.BackupType
	Anchor       string
	LogTip       string
}

// List reads both histories and derives what the next run would do.
func (a *App) List(ctx context.Context) (*Listing, error) {
	listing := &Listing{}
	var dataHistory []string
	for _, kind := range []lineage.Kind{lineage.Data, lineage.Logs} {
		dir := kind.Dir(a.Cfg.Backup.Dir)
		history, err := lineage.History(ctx, a.Repo, kind, dir)
		if err != nil {
			return nil, err
		}
		for _, name := range history {
			parsed, err := kind.Parse(name)
			if err != nil {
				a.Log.Debug().Err(err).Str("artifact", name).Msg("skipping unparsable artifact")
				continue
			}
			entry := Entry{Kind: kind.Name(), Name: name, Artifact: parsed}
			if info, err := a.Repo.Stat(ctx, dir, name); err == nil {
				entry.Size = info.Size
				entry.Modified = info.Modified
			}
			listing.Entries = append(listing.Entries, entry)
		}
		switch kind {
		case lineage.Data:
			dataHistory = history
		case lineage.Logs:
			listing.LogTip, _ = lineage.LastLogTip(history)
		}
	}
	anchor, ok := lineage.LastFullAnchor(dataHistory)
	listing.Anchor = anchor
	listing.NextDataType = lineage.NextDataBackupType(a.now(), a.Cfg.Backup.Weekday, anchor, ok)
	return listing, nil
}

// ResolveLogBin fills backup.log_bin from the server's log_bin_basename when
// it is unset and a DSN is configured. A dry run never connects; the log pass
// is then skipped.
func ResolveLogBin(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.Backup.LogBin != "" || cfg.Database.DSN == "" {
		return nil
	}
	if mode, ok := config.NormalizeMode(cfg.Backup.Mode); !ok || mode == config.ModeData {
		return nil
	}
	if cfg.Global.DryRun {
		log.Info().Msg("dry run: would discover log_bin_basename from the server")
		return nil
	}
	basename, err := db.DiscoverLogBin(ctx, cfg.Database.DSN, cfg.Database.ConnectionTimeout)
	if err != nil {
		return fmt.Errorf("discover log_bin_basename: %w", err)
	}
	log.Info().Str("log_bin", basename).Msg("discovered binlog basename")
	cfg.Backup.LogBin = basename
	return nil
}
