package repair

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// positionRe matches the "<file>(<line>, <column>)" prefix of a diagnostic line.
var positionRe = regexp.MustCompile(`^(.+?)\((\d+), ?(\d+)\)`)

// Location is a compiler diagnostic position inside the staging file.
type Location struct {
	Line   int
	Column int
	// Diagnostic is the log from the matched line to the end.
	Diagnostic string
}

// Locate scans log from the end for the last line positioned inside staging.
func Locate(log, staging string) (Location, bool) {
	lines := strings.Split(log, "\n")
	offsets := make([]int, len(lines))
	off := 0
	for i, l := range lines {
		offsets[i] = off
		off += len(l) + 1
	}

	for i := len(lines) - 1; i >= 0; i-- {
		m := positionRe.FindStringSubmatch(strings.TrimRight(lines[i], "\r"))
		if m == nil || !samePath(m[1], staging) {
			continue
		}
		line, err1 := strconv.Atoi(m[2])
		col, err2 := strconv.Atoi(m[3])
		if err1 != nil || err2 != nil {
			continue
		}
		diag := strings.TrimRight(strings.ReplaceAll(log[offsets[i]:], "\r", ""), "\n")
		return Location{Line: line, Column: col, Diagnostic: diag}, true
	}
	return Location{}, false
}

// samePath compares a path printed by the compiler with the staging path.
// The compiler prints absolute paths, the staging path may be relative.
func samePath(printed, staging string) bool {
	printed = filepath.Clean(printed)
	staging = filepath.Clean(staging)
	if printed == staging {
		return true
	}
	if abs, err := filepath.Abs(staging); err == nil && abs == printed {
		return true
	}
	return !filepath.IsAbs(staging) && strings.HasSuffix(printed, string(filepath.Separator)+staging)
}
