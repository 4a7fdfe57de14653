package links

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lowerCaser = cases.Lower(language.Und)

// siteURL converts a destination file path into the site-relative URL the
// rendered page is served at: structural prefixes removed, extension
// dropped, a trailing index segment collapsed into its directory, each
// segment slug-normalized, and leading plus trailing slashes ensured.
func (r *Resolver) siteURL(dest string) string {
	p := dest
	for _, prefix := range r.stripPrefixes {
		prefix = strings.TrimSuffix(prefix, "/")
		if prefix == "" {
			continue
		}
		if p == prefix {
			p = ""
			break
		}
		if after, ok := strings.CutPrefix(p, prefix+"/"); ok {
			p = after
			break
		}
	}

	p = stripExt(p)
	segments := strings.Split(p, "/")
	if n := len(segments); n > 0 && segments[n-1] == "index" {
		segments = segments[:n-1]
	}

	out := make([]string, 0, len(segments))
	for _, s := range segments {
		if s == "" {
			continue
		}
		out = append(out, Slugify(s))
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/") + "/"
}

// Slugify normalizes one URL path segment: lowercased, spaces and
// underscores turned into hyphens, hyphen runs collapsed, and anything
// that is not a letter, digit, dot, or hyphen dropped.
func Slugify(segment string) string {
	s := lowerCaser.String(segment)
	var b strings.Builder
	b.Grow(len(s))
	hyphen := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '_' || r == '-':
			if !hyphen && b.Len() > 0 {
				b.WriteByte('-')
				hyphen = true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.':
			b.WriteRune(r)
			hyphen = false
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
