package naming

import (
	"path"
	"strings"
	"unicode"
)

// UnmatchedGroup is the reserved bucket for filenames no grouping rule fits.
const UnmatchedGroup = "UNMATCHED"

// GroupKey derives a group name from a bare filename for prefix-based
// classification. The rules are tried in order and the first match wins:
//
//  1. everything before the first underscore
//  2. everything before the first hyphen
//  3. everything before the first space
//  4. a leading run of digits, at least 2 characters
//  5. a leading run of uppercase letters and digits (at least 2 characters)
//     that is followed by lowercase letters, spaces, or dots
//  6. the first 8 characters of a leading alphanumeric run
//
// Filenames matching nothing land in UnmatchedGroup. This is a best-effort
// heuristic over vendor filenames, not a guarantee.
func GroupKey(filename string) string {
	name := strings.TrimSuffix(filename, path.Ext(filename))
	name = strings.TrimSpace(name)
	if name == "" {
		return UnmatchedGroup
	}

	for _, sep := range []string{"_", "-", " "} {
		if i := strings.Index(name, sep); i > 0 {
			return name[:i]
		}
	}

	if run := leadingRun(name, unicode.IsDigit); len(run) >= 2 {
		return run
	}

	if run := leadingUpperDigitRun(name); run != "" {
		return run
	}

	if run := leadingRun(name, isAlnum); run != "" {
		if len(run) > 8 {
			run = run[:8]
		}
		return run
	}

	return UnmatchedGroup
}

// leadingUpperDigitRun extracts a run of uppercase letters and digits from
// the start of name, but only when the run is at least 2 characters and the
// character after it is lowercase, a space, or a dot. "ABC123view" yields
// "ABC123"; "Abc" yields nothing (run too short).
func leadingUpperDigitRun(name string) string {
	runes := []rune(name)
	i := 0
	for i < len(runes) && (unicode.IsUpper(runes[i]) || unicode.IsDigit(runes[i])) {
		i++
	}
	if i < 2 || i >= len(runes) {
		return ""
	}
	next := runes[i]
	if unicode.IsLower(next) || next == ' ' || next == '.' {
		return string(runes[:i])
	}
	return ""
}

func leadingRun(name string, accept func(rune) bool) string {
	for i, r := range name {
		if !accept(r) {
			return name[:i]
		}
	}
	return name
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
