// Package links rewrites cross-document markdown links after a whole batch
// has been imported. Resolution needs the complete source-to-destination
// map before any link can be rewritten, so a Resolver is built once per
// batch from the finished file list and then applied to each document.
package links

import (
	"path"
	"regexp"
	"strings"
)

// File is one imported document: where it came from and where it landed.
type File struct {
	SourcePath string
	TargetPath string
	RuleIndex  int
	BasePath   string
}

// MapRule rewrites a link path before or after the batch lookup. A rule
// matches either a literal substring or a compiled pattern; pattern rules
// replace with a capture-group template or a function. When limits the
// rule to files for which the predicate holds.
type MapRule struct {
	Global      bool
	Literal     string
	Pattern     *regexp.Regexp
	Replace     string
	ReplaceFunc func(string) string
	When        func(File) bool
}

func (r MapRule) applies(p string, f File) bool {
	if r.When != nil && !r.When(f) {
		return false
	}
	if r.Pattern != nil {
		return r.Pattern.MatchString(p)
	}
	return r.Literal != "" && strings.Contains(p, r.Literal)
}

func (r MapRule) apply(p string) string {
	if r.Pattern != nil {
		if r.ReplaceFunc != nil {
			return r.Pattern.ReplaceAllStringFunc(p, r.ReplaceFunc)
		}
		return r.Pattern.ReplaceAllString(p, r.Replace)
	}
	return strings.ReplaceAll(p, r.Literal, r.Replace)
}

// Handler is a last-resort rewrite hook: Match decides whether the handler
// owns the (normalized, pre-lookup) path, Rewrite produces the final URL.
type Handler struct {
	Match   func(p string) bool
	Rewrite func(p string, f File) string
}

// Resolver holds the immutable batch index plus the configured rewrite
// rules. It is safe for concurrent use once built.
type Resolver struct {
	index         map[string]string
	rules         []MapRule
	handlers      []Handler
	stripPrefixes []string
}

// NewResolver indexes the batch. Every file is keyed both by its exact
// source path and by the source path with its extension stripped, so links
// written with or without the markup extension both resolve. On key
// collisions the first file wins.
func NewResolver(files []File, rules []MapRule, handlers []Handler, stripPrefixes []string) *Resolver {
	index := make(map[string]string, 2*len(files))
	for _, f := range files {
		if _, ok := index[f.SourcePath]; !ok {
			index[f.SourcePath] = f.TargetPath
		}
		bare := stripExt(f.SourcePath)
		if _, ok := index[bare]; !ok {
			index[bare] = f.TargetPath
		}
	}
	return &Resolver{
		index:         index,
		rules:         rules,
		handlers:      handlers,
		stripPrefixes: stripPrefixes,
	}
}

var (
	linkRegex     = regexp.MustCompile(`(!?)\[([^\]]*)\]\(\s*([^)\s]*)(\s+"[^"]*")?\s*\)`)
	externalRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
)

// RewriteDoc resolves every markdown link in content against the batch.
// Image references are left alone, they belong to the asset pipeline.
func (r *Resolver) RewriteDoc(f File, content string) string {
	return linkRegex.ReplaceAllStringFunc(content, func(m string) string {
		sub := linkRegex.FindStringSubmatch(m)
		if sub[1] == "!" {
			return m
		}
		resolved := r.Resolve(sub[3], f)
		if resolved == sub[3] {
			return m
		}
		return "[" + sub[2] + "](" + resolved + sub[4] + ")"
	})
}

// Resolve rewrites one link target found in file f. External and
// anchor-only targets come back byte-identical; everything else resolves
// through, in order: the batch index, non-global map rules, handlers, and
// finally a best-effort extension strip.
func (r *Resolver) Resolve(href string, f File) string {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "//") || externalRegex.MatchString(href) {
		return href
	}

	target := href
	anchor := ""
	if i := strings.Index(href, "#"); i >= 0 {
		target, anchor = href[:i], href[i:]
	}

	// Relative targets resolve against the document's source directory,
	// not its destination. That is what keeps links working when files
	// are remapped to different target folders. Absolute targets pass
	// through untouched so that resolving a document a second time is a
	// no-op: site URLs produced by an earlier run are absolute and
	// extensionless and must come back byte-identical.
	hadSlash := strings.HasSuffix(target, "/") && target != "/"
	normalized := target
	if !strings.HasPrefix(target, "/") {
		normalized = path.Clean(path.Join(path.Dir(f.SourcePath), target))
	}

	pre := normalized
	for _, rule := range r.rules {
		if rule.Global && rule.applies(pre, f) {
			pre = rule.apply(pre)
		}
	}

	dest, ok := r.lookup(pre)
	if !ok && hadSlash {
		retry := pre + "/index"
		if strings.HasSuffix(pre, "/") {
			retry = pre + "index"
		}
		dest, ok = r.lookup(retry)
	}
	if ok {
		return r.siteURL(dest) + anchor
	}

	for _, rule := range r.rules {
		if !rule.Global && rule.applies(pre, f) {
			return rule.apply(pre) + anchor
		}
	}

	for _, h := range r.handlers {
		if h.Match(pre) {
			return h.Rewrite(pre, f) + anchor
		}
	}

	// Best effort: the reference stays relative as authored, minus the
	// markup extension a rendered site would choke on. The browser does
	// the directory resolution this time.
	return stripExt(target) + anchor
}

// lookup consults the batch index, retrying absolute paths without their
// leading slash since index keys are repo-relative.
func (r *Resolver) lookup(p string) (string, bool) {
	if d, ok := r.index[p]; ok {
		return d, true
	}
	if after, ok := strings.CutPrefix(p, "/"); ok {
		if d, ok := r.index[after]; ok {
			return d, true
		}
	}
	return "", false
}

func stripExt(p string) string {
	base := path.Base(p)
	ext := path.Ext(base)
	if ext == "" || ext == base {
		return p
	}
	return strings.TrimSuffix(p, ext)
}
