package lineage

import (
	"regexp"
	"sort"
)

// BinlogPattern matches binlog files of basename with a six digit sequence.
func BinlogPattern(basename string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(basename) + `\.\d{6}$`)
}

// Binlogs filters names down to the binlog files of basename, sorted
// ascending. The index file and anything else in the log directory is
// ignored.
func Binlogs(names []string, basename string) []string {
	re := BinlogPattern(basename)
	var logs []string
	for _, name := range names {
		if re.MatchString(name) {
			logs = append(logs, name)
		}
	}
	sort.Strings(logs)
	return logs
}
