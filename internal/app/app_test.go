package app

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/mybak/internal/config"
	"github.com/rowjay/mybak/internal/lineage"
	"github.com/rowjay/mybak/internal/notify"
	"github.com/rowjay/mybak/internal/pipeline"
	"github.com/rowjay/mybak/internal/storage"
	"github.com/rowjay/mybak/internal/xtrabackup"
)

type stubRunner struct {
	watermark string
	calls     int
}

func (s *stubRunner) Backup(_ context.Context, req xtrabackup.Request) (xtrabackup.Result, error) {
	s.calls++
	_, _ = io.WriteString(req.Output, "stream")
	return xtrabackup.Result{Watermark: s.watermark}, nil
}

type stubArchiver struct{}

func (stubArchiver) Archive(_ context.Context, dst io.Writer, src io.Reader) error {
	_, err := io.Copy(dst, src)
	return err
}

type recorder struct {
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) error {
	r.events = append(r.events, e)
	return nil
}

func testApp(t *testing.T, mode string, runner *stubRunner) (*App, afero.Fs, *recorder) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/backups", 0o750))
	require.NoError(t, fs.MkdirAll("/var/lib/mysql", 0o750))
	require.NoError(t, afero.WriteFile(fs, "/var/lib/mysql/binlog.000007", []byte("events"), 0o600))

	cfg := &config.Config{
		Global: config.GlobalConfig{LockFile: filepath.Join(t.TempDir(), "mybak.lock")},
		Backup: config.BackupConfig{
			Mode:      mode,
			Dir:       "/backups",
			KeepWeeks: 2,
			Weekday:   6,
			MyCnf:     "/etc/my.cnf",
			Executor:  "xtrabackup",
			LogBin:    "/var/lib/mysql/binlog",
		},
		Mirror: config.MirrorConfig{RetryCount: 1},
	}
	rec := &recorder{}
	a := &App{
		Cfg:      cfg,
		Repo:     storage.NewLocal(fs),
		Runner:   runner,
		Archiver: stubArchiver{},
		Log:      zerolog.Nop(),
		Notifier: rec,
		// Saturday.
		Now: func() time.Time { return time.Date(2024, 3, 16, 1, 0, 0, 0, time.UTC) },
	}
	return a, fs, rec
}

func TestRunBothModes(t *testing.T) {
	a, fs, rec := testApp(t, config.ModeBoth, &stubRunner{watermark: "4242"})

	result, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Reports, 2)
	assert.NotEmpty(t, result.RunID)

	ok, _ := afero.Exists(fs, "/backups/data/20240316_FULL_0_4242.xb.zst")
	assert.True(t, ok)
	ok, _ = afero.Exists(fs, "/backups/logs/20240316_LOGS_binlog.000007.zst")
	assert.True(t, ok)

	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.StatusSuccess, rec.events[0].Status)
	assert.Equal(t, result.RunID, rec.events[0].RunID)
	assert.Equal(t, []string{"20240316_FULL_0_4242.xb.zst", "20240316_LOGS_binlog.000007.zst"}, rec.events[0].Artifacts)
}

func TestRunDataFailureSkipsLogs(t *testing.T) {
	a, fs, rec := testApp(t, config.ModeBoth, &stubRunner{})

	result, err := a.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrCollaborator))
	assert.Len(t, result.Reports, 1)

	ok, _ := afero.DirExists(fs, "/backups/logs")
	assert.False(t, ok)
	require.Len(t, rec.events, 1)
	assert.Equal(t, notify.StatusFailed, rec.events[0].Status)
	assert.NotEmpty(t, rec.events[0].Error)
}

func TestRunLogsOnly(t *testing.T) {
	runner := &stubRunner{watermark: "1"}
	a, _, _ := testApp(t, config.ModeLogs, runner)

	result, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Reports, 1)
	assert.Equal(t, "logs", result.Reports[0].Kind)
	assert.Zero(t, runner.calls)
}

func TestRunHoldsLock(t *testing.T) {
	a, _, _ := testApp(t, config.ModeData, &stubRunner{watermark: "1"})
	second, _, _ := testApp(t, config.ModeData, &stubRunner{watermark: "1"})
	second.Cfg.Global.LockFile = a.Cfg.Global.LockFile

	blocking := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}
	a.Runner = blocking
	done := make(chan error, 1)
	go func() {
		_, err := a.Run(context.Background())
		done <- err
	}()
	<-blocking.started

	_, err := second.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already active")

	close(blocking.release)
	require.NoError(t, <-done)
}

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) Backup(_ context.Context, req xtrabackup.Request) (xtrabackup.Result, error) {
	close(b.started)
	<-b.release
	return xtrabackup.Result{Watermark: "9"}, nil
}

func TestList(t *testing.T) {
	a, fs, _ := testApp(t, config.ModeBoth, &stubRunner{})
	for _, name := range []string{
		"/backups/data/20240309_FULL_0_100.xb.zst",
		"/backups/data/20240310_INCR_100_140.xb.zst",
		"/backups/data/tmp_backup.xb.zst",
		"/backups/logs/20240310_LOGS_binlog.000006.zst",
	} {
		require.NoError(t, afero.WriteFile(fs, name, []byte("x"), 0o600))
	}

	listing, err := a.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listing.Entries, 3)
	assert.Equal(t, "data", listing.Entries[0].Kind)
	assert.Equal(t, lineage.Full, listing.Entries[0].Artifact.Type)
	assert.Equal(t, "100", listing.Entries[1].Artifact.FromLSN)
	assert.Equal(t, "binlog.000006", listing.Entries[2].Artifact.LogName)
	assert.Equal(t, "20240309_FULL_0_100", listing.Anchor)
	assert.Equal(t, "20240310_LOGS_binlog.000006", listing.LogTip)
	// Saturday 16th with weekday 6: the 9th anchor is last week's.
	assert.Equal(t, lineage.Full, listing.NextDataType)
}

func TestResolveLogBinSkipsWhenSet(t *testing.T) {
	cfg := &config.Config{Backup: config.BackupConfig{Mode: "logs", LogBin: "/var/lib/mysql/binlog"}, Database: config.DatabaseConfig{DSN: "u:p@tcp(db:3306)/"}}
	require.NoError(t, ResolveLogBin(context.Background(), cfg, zerolog.Nop()))
	assert.Equal(t, "/var/lib/mysql/binlog", cfg.Backup.LogBin)

	cfg = &config.Config{Backup: config.BackupConfig{Mode: "data"}, Database: config.DatabaseConfig{DSN: "u:p@tcp(db:3306)/"}}
	require.NoError(t, ResolveLogBin(context.Background(), cfg, zerolog.Nop()))
	assert.Empty(t, cfg.Backup.LogBin)
}

func TestResolveLogBinDryRunDoesNotConnect(t *testing.T) {
	cfg := &config.Config{
		Global:   config.GlobalConfig{DryRun: true},
		Backup:   config.BackupConfig{Mode: "both"},
		Database: config.DatabaseConfig{DSN: "u:p@tcp(127.0.0.1:1)/", ConnectionTimeout: time.Second},
	}
	require.NoError(t, ResolveLogBin(context.Background(), cfg, zerolog.Nop()))
	assert.Empty(t, cfg.Backup.LogBin)
}

func TestRunDryRunWithoutLogBinSkipsLogs(t *testing.T) {
	a, fs, _ := testApp(t, config.ModeBoth, &stubRunner{watermark: "1"})
	a.Cfg.Global.DryRun = true
	a.Cfg.Backup.LogBin = ""

	result, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Reports, 1)
	assert.Equal(t, "data", result.Reports[0].Kind)
	ok, _ := afero.DirExists(fs, "/backups/logs")
	assert.False(t, ok)
}
