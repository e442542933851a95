package lineage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrNoFullAnchor means an incremental backup was requested with no full
// backup to chain from.
var ErrNoFullAnchor = errors.New("lineage: incremental backup without a full anchor")

// Lister returns the entry names of a directory.
type Lister interface {
	List(ctx context.Context, dir string) ([]string, error)
}

// Remover deletes a single entry of a directory.
type Remover interface {
	Remove(ctx context.Context, dir, name string) error
}

// History returns the artifacts of kind found in dir, sorted ascending.
// Sort order is chronological: the date prefix is fixed width and LSNs and
// binlog sequence numbers grow monotonically.
func History(ctx context.Context, lister Lister, kind Kind, dir string) ([]string, error) {
	names, err := lister.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s history: %w", kind.Name(), err)
	}
	history := []string{}
	for _, name := range names {
		if kind.Match(name) {
			history = append(history, name)
		}
	}
	sort.Strings(history)
	return history, nil
}

// RetentionCutoff returns the oldest date prefix that is still retained.
func RetentionCutoff(today time.Time, keepWeeks int) string {
	return Day(today.AddDate(0, 0, -7*keepWeeks))
}

// Expired returns the artifacts dated strictly before cutoff, oldest first.
// The scan stops at the first retained artifact.
func Expired(history []string, cutoff string) []string {
	sorted := append([]string(nil), history...)
	sort.Strings(sorted)
	var expired []string
	for _, name := range sorted {
		if DatePrefix(name) >= cutoff {
			break
		}
		expired = append(expired, name)
	}
	return expired
}

// PruneExpired removes the expired artifacts of history in ascending order
// and returns the names it removed. On dry run nothing is removed and the
// names that would have been removed are returned. Removal stops at the first
// failure so artifacts are never removed out of order.
func PruneExpired(ctx context.Context, remover Remover, dir string, history []string, cutoff string, dryRun bool) ([]string, error) {
	expired := Expired(history, cutoff)
	if dryRun {
		return expired, nil
	}
	removed := make([]string, 0, len(expired))
	for _, name := range expired {
		if err := remover.Remove(ctx, dir, name); err != nil {
			return removed, fmt.Errorf("remove expired %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

// LastFullAnchor returns the most recent FULL data artifact, extension
// stripped.
func LastFullAnchor(history []string) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		a, err := Data.Parse(history[i])
		if err != nil {
			continue
		}
		if a.Type == Full {
			return Stem(Data, history[i]), true
		}
	}
	return "", false
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int(t.Weekday())
}

// FullBoundary returns the most recent occurrence of weekday (1=Monday,
// 7=Sunday) on or before today.
func FullBoundary(today time.Time, weekday int) time.Time {
	days := (ISOWeekday(today) - weekday + 7) % 7
	return today.AddDate(0, 0, -days)
}

// NextDataBackupType decides between FULL and INCREMENTAL. A full backup is
// due when there is no full anchor or the anchor predates this week's
// boundary; a full taken on the boundary date itself counts as done.
func NextDataBackupType(today time.Time, weekday int, anchor string, ok bool) BackupType {
	if !ok {
		return Full
	}
	if DatePrefix(anchor) < Day(FullBoundary(today, weekday)) {
		return Full
	}
	return Incremental
}

// FromLSN returns the checkpoint an incremental backup chains from: the
// to-LSN field of the full anchor.
func FromLSN(anchor string) (string, error) {
	a, err := Data.Parse(anchor + Data.Ext())
	if err != nil {
		return "", err
	}
	if a.Type != Full {
		return "", fmt.Errorf("%w: anchor %s is %s", ErrInvalidName, anchor, a.Type)
	}
	return a.ToLSN, nil
}

// LastLogTip returns the most recent log artifact, extension stripped.
func LastLogTip(history []string) (string, bool) {
	if len(history) == 0 {
		return "", false
	}
	return Stem(Logs, history[len(history)-1]), true
}

// TipLogName returns the original binlog file name embedded in a log tip.
func TipLogName(tip string) string {
	parts := strings.Split(tip, "_")
	return parts[len(parts)-1]
}

// SelectLogs picks the binlog files to archive. Without a tip only the most
// recent candidate is taken; otherwise every candidate at or after the tip's
// file, so a tip that kept growing is archived again.
func SelectLogs(candidates []string, tip string, ok bool) []string {
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	if !ok {
		if len(sorted) == 0 {
			return nil
		}
		return sorted[len(sorted)-1:]
	}
	low := TipLogName(tip)
	var selected []string
	for _, name := range sorted {
		if name >= low {
			selected = append(selected, name)
		}
	}
	return selected
}
