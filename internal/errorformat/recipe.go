// Package errorformat streams raw checker stdout into block.Block records,
// using a small built-in registry of Vim-errorformat-style recipes.
package errorformat

import "regexp"

// Recipe is a parsing pattern associated with one checker tool.
//
// Anchor matches a line that starts a new block; it must define named
// capture groups "file", "line", "col" (col optional), and "message".
// "end_line"/"end_col" groups are optional. Continuation, if non-nil,
// matches a line that belongs to the currently open block instead of
// starting a new one (e.g. an indented mypy note).
type Recipe struct {
	Name         string
	Anchor       *regexp.Regexp
	Continuation *regexp.Regexp
}

// Registry maps tool name to its Recipe.
type Registry map[string]Recipe

var ruffPattern = regexp.MustCompile(`^(?P<file>[^\s:][^:]*):(?P<line>\d+):(?P<col>\d+): (?P<message>.*)$`)

var mypyAnchor = regexp.MustCompile(`^(?P<file>[^\s:][^:]*):(?P<line>\d+):(?P<col>\d+): (?P<type>error|warning|note): (?P<message>.*)$`)
var mypyContinuation = regexp.MustCompile(`^\s+\S.*$`)

var pytestAnchor = regexp.MustCompile(`^(?P<file>[^\s:][^:]*\.py):(?P<line>\d+): (?P<message>.*)$`)

// DefaultRegistry returns the built-in tool registry. It covers at least
// ruff, mypy, flake8, pylint, and pytest.
func DefaultRegistry() Registry {
	return Registry{
		"ruff": {
			Name:   "ruff",
			Anchor: ruffPattern,
		},
		"flake8": {
			Name:   "flake8",
			Anchor: ruffPattern,
		},
		"pylint": {
			Name:   "pylint",
			Anchor: ruffPattern,
		},
		"mypy": {
			Name:         "mypy",
			Anchor:       mypyAnchor,
			Continuation: mypyContinuation,
		},
		"pytest": {
			Name:   "pytest",
			Anchor: pytestAnchor,
		},
	}
}

// namedGroup returns the value of a named capture group from m, the result
// of Anchor.FindStringSubmatch, or "" if the group didn't participate.
func namedGroup(re *regexp.Regexp, m []string, name string) string {
	for i, n := range re.SubexpNames() {
		if n == name && i < len(m) {
			return m[i]
		}
	}
	return ""
}
