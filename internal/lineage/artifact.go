// Package lineage recovers backup chain state from a directory listing.
//
// Artifact file names are the only persisted record of a backup: date, type
// and chain position are encoded in underscore-separated fields, and every
// decision (next backup type, incremental base, retention, log resume point)
// is derived from those names plus the current date.
package lineage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DateFormat is the fixed-width date prefix of every artifact name.
const DateFormat = "20060102"

type BackupType int

const (
	Full BackupType = iota + 1
	Incremental
	Log
)

// On-disk labels. They match the names produced by earlier releases of the
// tool so that existing backup roots keep their lineage.
const (
	LabelFull        = "FULL"
	LabelIncremental = "INCR"
	LabelLog         = "LOGS"
)

var ErrInvalidName = errors.New("invalid artifact name")

func (t BackupType) String() string {
	switch t {
	case Full:
		return "FULL"
	case Incremental:
		return "INCREMENTAL"
	case Log:
		return "LOG"
	default:
		return fmt.Sprintf("BackupType(%d)", int(t))
	}
}

// Label returns the token written into file names.
func (t BackupType) Label() string {
	switch t {
	case Full:
		return LabelFull
	case Incremental:
		return LabelIncremental
	case Log:
		return LabelLog
	default:
		return ""
	}
}

func parseLabel(label string) (BackupType, bool) {
	switch label {
	case LabelFull:
		return Full, true
	case LabelIncremental:
		return Incremental, true
	case LabelLog:
		return Log, true
	default:
		return 0, false
	}
}

// Artifact is the decoded form of an artifact file name.
type Artifact struct {
	Date    string
	Type    BackupType
	FromLSN string
	ToLSN   string
	LogName string
}

// Day formats t as an artifact date prefix.
func Day(t time.Time) string {
	return t.Format(DateFormat)
}

// Kind describes one family of artifacts: where they live, how they are
// named and which directory entries belong to their history.
type Kind interface {
	Name() string
	Dir(root string) string
	Ext() string
	Match(name string) bool
	Format(a Artifact) (string, error)
	Parse(name string) (Artifact, error)
}

var (
	Data Kind = dataKind{}
	Logs Kind = logKind{}
)

// Stem strips the kind's extension from name.
func Stem(kind Kind, name string) string {
	return strings.TrimSuffix(name, kind.Ext())
}

// DatePrefix returns the leading date field of an artifact name or stem.
func DatePrefix(name string) string {
	date, _, _ := strings.Cut(name, "_")
	return date
}

type dataKind struct{}

func (dataKind) Name() string { return "data" }

func (dataKind) Dir(root string) string { return filepath.Join(root, "data") }

func (dataKind) Ext() string { return ".xb.zst" }

func (k dataKind) Match(name string) bool {
	return matchFields(name, k.Ext(), 4)
}

func (k dataKind) Format(a Artifact) (string, error) {
	if a.Type != Full && a.Type != Incremental {
		return "", fmt.Errorf("%w: %s is not a data backup type", ErrInvalidName, a.Type)
	}
	if err := checkDate(a.Date); err != nil {
		return "", err
	}
	if err := checkField("from lsn", a.FromLSN); err != nil {
		return "", err
	}
	if err := checkField("to lsn", a.ToLSN); err != nil {
		return "", err
	}
	return strings.Join([]string{a.Date, a.Type.Label(), a.FromLSN, a.ToLSN}, "_") + k.Ext(), nil
}

func (k dataKind) Parse(name string) (Artifact, error) {
	if !k.Match(name) {
		return Artifact{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	parts := strings.Split(Stem(k, name), "_")
	typ, ok := parseLabel(parts[1])
	if !ok || typ == Log {
		return Artifact{}, fmt.Errorf("%w: unknown data type %q in %q", ErrInvalidName, parts[1], name)
	}
	a := Artifact{Date: parts[0], Type: typ, FromLSN: parts[2], ToLSN: parts[3]}
	if err := checkDate(a.Date); err != nil {
		return Artifact{}, err
	}
	if a.FromLSN == "" || a.ToLSN == "" {
		return Artifact{}, fmt.Errorf("%w: empty lsn in %q", ErrInvalidName, name)
	}
	return a, nil
}

type logKind struct{}

func (logKind) Name() string { return "logs" }

func (logKind) Dir(root string) string { return filepath.Join(root, "logs") }

func (logKind) Ext() string { return ".zst" }

func (k logKind) Match(name string) bool {
	return matchFields(name, k.Ext(), 3)
}

func (k logKind) Format(a Artifact) (string, error) {
	if a.Type != Log {
		return "", fmt.Errorf("%w: %s is not a log backup type", ErrInvalidName, a.Type)
	}
	if err := checkDate(a.Date); err != nil {
		return "", err
	}
	if err := checkField("log name", a.LogName); err != nil {
		return "", err
	}
	return strings.Join([]string{a.Date, a.Type.Label(), a.LogName}, "_") + k.Ext(), nil
}

func (k logKind) Parse(name string) (Artifact, error) {
	if !k.Match(name) {
		return Artifact{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	parts := strings.Split(Stem(k, name), "_")
	if typ, ok := parseLabel(parts[1]); !ok || typ != Log {
		return Artifact{}, fmt.Errorf("%w: unknown log type %q in %q", ErrInvalidName, parts[1], name)
	}
	a := Artifact{Date: parts[0], Type: Log, LogName: parts[2]}
	if err := checkDate(a.Date); err != nil {
		return Artifact{}, err
	}
	if a.LogName == "" {
		return Artifact{}, fmt.Errorf("%w: empty log name in %q", ErrInvalidName, name)
	}
	return a, nil
}

func matchFields(name, ext string, fields int) bool {
	return strings.HasSuffix(name, ext) && len(strings.Split(name, "_")) == fields
}

func checkDate(date string) error {
	if len(date) != len(DateFormat) {
		return fmt.Errorf("%w: bad date %q", ErrInvalidName, date)
	}
	if _, err := time.Parse(DateFormat, date); err != nil {
		return fmt.Errorf("%w: bad date %q", ErrInvalidName, date)
	}
	return nil
}

func checkField(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidName, field)
	}
	if strings.Contains(value, "_") {
		return fmt.Errorf("%w: %s %q contains an underscore", ErrInvalidName, field, value)
	}
	return nil
}
