package match

import (
	"path"
	"strings"
)

// TargetPath computes the local destination for a matched entry. The rule
// must be the one at e.RuleIndex, or nil when the entry matched without
// rules, in which case the remote path is kept as-is under the base path.
//
// The mapping runs in two stages: strip the pattern's literal prefix to get
// a rule-relative path (falling back to the basename when nothing remains),
// then apply rename rules. Joining always uses forward slashes; the result
// is identical on every host OS. The function is pure, so the link resolver
// can recompute it for any file in a batch and get the same answer.
func TargetPath(e Entry, r *Rule) string {
	if r == nil {
		return path.Join(e.BasePath, e.RemotePath)
	}
	rel := strings.TrimPrefix(e.RemotePath, literalPrefix(r.Pattern))
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		rel = path.Base(e.RemotePath)
	}
	rel = applyRenames(rel, r.Renames)
	return path.Join(e.BasePath, rel)
}

// literalPrefix returns everything in the pattern before its first glob
// metacharacter. "docs/api/**/*.md" yields "docs/api/"; a pattern with no
// wildcards is its own prefix, which is what makes the basename fallback in
// TargetPath reachable for exact-file patterns.
func literalPrefix(pattern string) string {
	i := strings.IndexAny(pattern, "*?[{")
	if i < 0 {
		return pattern
	}
	return pattern[:i]
}

// applyRenames rewrites rel using at most one rename rule: an exact-file
// match replaces the whole path, otherwise the longest matching folder key
// replaces just that prefix. Applying a single rule keeps the mapping
// idempotent; renames never cascade into each other.
func applyRenames(rel string, renames map[string]string) string {
	if len(renames) == 0 {
		return rel
	}
	if target, ok := renames[rel]; ok {
		return target
	}
	best := ""
	for key := range renames {
		if !strings.HasSuffix(key, "/") {
			continue
		}
		if strings.HasPrefix(rel, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return rel
	}
	return path.Join(strings.TrimSuffix(renames[best], "/"), rel[len(best):])
}
