// Package match selects include rules for remote tree paths and maps
// accepted paths to their local destinations.
package match

import (
	"github.com/bmatcuk/doublestar/v4"
)

// NoRule is the RuleIndex of entries accepted without any configured rule.
const NoRule = -1

// ValidPattern reports whether pattern parses as a glob.
func ValidPattern(pattern string) bool {
	return doublestar.ValidatePattern(pattern)
}

// Rule pairs an include glob with a destination directory and the optional
// rename and transform configuration applied to the files it matches.
type Rule struct {
	// Pattern is a glob matched case-sensitively against the full remote
	// path: `*` matches within one segment, `**` across segments, with
	// brace alternation and character classes.
	Pattern string

	// BasePath is the destination directory, relative to the project
	// root, prepended to every path this rule maps.
	BasePath string

	// Renames maps rule-relative source paths to replacements. A key
	// ending in "/" renames a whole folder prefix; any other key renames
	// exactly one file.
	Renames map[string]string

	// Transforms names registered transforms to run on matched files,
	// after the source-global ones.
	Transforms []string
}

// Entry records one accepted remote path and the rule that accepted it.
// Entries are immutable once created.
type Entry struct {
	RemotePath string
	RuleIndex  int
	BasePath   string
}

// Match returns an entry for the first rule whose pattern matches the
// remote path, trying rules in order. With an empty rule list every path is
// accepted with RuleIndex set to NoRule and an empty BasePath, which the
// caller fills from the source default. Patterns that fail to parse never
// match.
func Match(remotePath string, rules []Rule) (Entry, bool) {
	if len(rules) == 0 {
		return Entry{RemotePath: remotePath, RuleIndex: NoRule}, true
	}
	for i, r := range rules {
		ok, err := doublestar.Match(r.Pattern, remotePath)
		if err != nil || !ok {
			continue
		}
		return Entry{RemotePath: remotePath, RuleIndex: i, BasePath: r.BasePath}, true
	}
	return Entry{}, false
}
