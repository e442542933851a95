package config

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	ModeData = "data"
	ModeLogs = "logs"
	ModeBoth = "both"
)

// DefaultCheckpointMarker is the xtrabackup/mariabackup log text preceding
// the quoted checkpoint LSN of a finished backup.
const DefaultCheckpointMarker = "The latest check point (for incremental)"

// ValidationError reports an offending configuration value by its flag name.
type ValidationError struct {
	Flag   string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid --%s=%v: %s", e.Flag, e.Value, e.Reason)
}

// NormalizeMode accepts data/logs/both and the numeric 0/1/2 aliases.
func NormalizeMode(mode string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeData, "0":
		return ModeData, true
	case ModeLogs, "1":
		return ModeLogs, true
	case ModeBoth, "2":
		return ModeBoth, true
	default:
		return "", false
	}
}

func (b BackupConfig) RunsData() bool { return b.Mode == ModeData || b.Mode == ModeBoth }

func (b BackupConfig) RunsLogs() bool { return b.Mode == ModeLogs || b.Mode == ModeBoth }

// Validator checks a configuration before any pipeline runs.
type Validator struct {
	Fs       afero.Fs
	LookPath func(string) (string, error)
}

func NewValidator() Validator {
	return Validator{Fs: afero.NewOsFs(), LookPath: exec.LookPath}
}

// Validate normalizes the mode in place and returns the first invalid value.
// An empty log_bin is accepted when a DSN is set; the caller resolves it and
// checks the result with ValidateLogBin.
func (v Validator) Validate(cfg *Config) error {
	mode, ok := NormalizeMode(cfg.Backup.Mode)
	if !ok {
		return &ValidationError{Flag: "mode", Value: cfg.Backup.Mode, Reason: "expected data, logs or both"}
	}
	cfg.Backup.Mode = mode

	if err := v.validateDir(cfg.Backup.Dir); err != nil {
		return err
	}
	if cfg.Backup.KeepWeeks < 1 {
		return &ValidationError{Flag: "keep", Value: cfg.Backup.KeepWeeks, Reason: "must be at least 1 week"}
	}

	if cfg.Backup.RunsData() {
		if err := ValidateWeekday(cfg.Backup.Weekday); err != nil {
			return err
		}
		if ok, _ := afero.Exists(v.Fs, cfg.Backup.MyCnf); !ok {
			return &ValidationError{Flag: "my-cnf", Value: cfg.Backup.MyCnf, Reason: "file does not exist"}
		}
		if !cfg.Global.AllowMissingTools {
			if _, err := v.ResolveExecutable(cfg.Backup.Executor); err != nil {
				return &ValidationError{Flag: "executor", Value: cfg.Backup.Executor, Reason: err.Error()}
			}
		}
		if cfg.Backup.CheckpointMarker == "" {
			return &ValidationError{Flag: "checkpoint-marker", Value: "", Reason: "marker text is required"}
		}
	}

	if cfg.Backup.RunsLogs() {
		if cfg.Backup.LogBin == "" {
			if cfg.Database.DSN == "" {
				return &ValidationError{Flag: "log-bin", Value: "", Reason: "log_bin_basename is required (or --dsn to discover it)"}
			}
			return nil
		}
		return v.ValidateLogBin(cfg.Backup.LogBin)
	}
	return nil
}

// ValidateListing checks what the list command reads: the backup root and
// the full backup weekday.
func (v Validator) ValidateListing(cfg *Config) error {
	if err := v.validateDir(cfg.Backup.Dir); err != nil {
		return err
	}
	return ValidateWeekday(cfg.Backup.Weekday)
}

func (v Validator) validateDir(dir string) error {
	if dir == "" {
		return &ValidationError{Flag: "dir", Value: dir, Reason: "backup directory is required"}
	}
	if ok, err := afero.DirExists(v.Fs, dir); err != nil || !ok {
		return &ValidationError{Flag: "dir", Value: dir, Reason: "directory does not exist"}
	}
	return nil
}

func ValidateWeekday(weekday int) error {
	if weekday < 1 || weekday > 7 {
		return &ValidationError{Flag: "weekday", Value: weekday, Reason: "expected 1 (Monday) to 7 (Sunday)"}
	}
	return nil
}

// ValidateLogBin checks a binlog basename: no underscore in the file part
// and an existing directory.
func (v Validator) ValidateLogBin(logBin string) error {
	if logBin == "" {
		return &ValidationError{Flag: "log-bin", Value: logBin, Reason: "log_bin_basename is required"}
	}
	logDir, basename := filepath.Split(logBin)
	if basename == "" {
		return &ValidationError{Flag: "log-bin", Value: logBin, Reason: "missing binlog basename"}
	}
	if strings.Contains(basename, "_") {
		return &ValidationError{Flag: "log-bin", Value: logBin, Reason: "binlog basename must not contain underscores"}
	}
	if logDir == "" {
		logDir = "."
	}
	if ok, err := afero.DirExists(v.Fs, logDir); err != nil || !ok {
		return &ValidationError{Flag: "log-bin", Value: logBin, Reason: "binlog directory does not exist"}
	}
	return nil
}

// ResolveExecutable accepts a command on PATH or an existing file path.
func (v Validator) ResolveExecutable(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("executor is empty")
	}
	if v.LookPath != nil {
		if resolved, err := v.LookPath(name); err == nil {
			return resolved, nil
		}
	}
	if info, err := v.Fs.Stat(name); err == nil && !info.IsDir() {
		return name, nil
	}
	return "", fmt.Errorf("command %s is missing", name)
}
