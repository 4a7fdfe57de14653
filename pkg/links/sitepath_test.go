package links

import "testing"

func TestSiteURL(t *testing.T) {
	r := NewResolver(nil, nil, nil, []string{"content"})

	tests := map[string]struct {
		dest string
		want string
	}{
		"plain":                 {"content/docs/guide/b.md", "/docs/guide/b/"},
		"index collapses":       {"content/docs/index.md", "/docs/"},
		"root index":            {"content/index.md", "/"},
		"no prefix match":       {"static/docs/a.md", "/static/docs/a/"},
		"prefix needs boundary": {"contentful/a.md", "/contentful/a/"},
		"uppercase segment":     {"content/docs/Getting Started.md", "/docs/getting-started/"},
		"underscored":           {"content/docs/api_reference.md", "/docs/api-reference/"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := r.siteURL(tc.dest); got != tc.want {
				t.Errorf("siteURL(%q) = %q, want %q", tc.dest, got, tc.want)
			}
		})
	}
}

func TestSiteURLMultiplePrefixes(t *testing.T) {
	r := NewResolver(nil, nil, nil, []string{"content/en", "content"})

	if got := r.siteURL("content/en/docs/a.md"); got != "/docs/a/" {
		t.Errorf("longest configured prefix not used: %q", got)
	}
	if got := r.siteURL("content/fr/docs/a.md"); got != "/fr/docs/a/" {
		t.Errorf("fallback prefix not used: %q", got)
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"lowercase":        {"README", "readme"},
		"spaces":           {"Getting Started", "getting-started"},
		"underscores":      {"api_reference", "api-reference"},
		"mixed runs":       {"a _ b", "a-b"},
		"punctuation":      {"what's new?", "whats-new"},
		"dots kept":        {"v1.2", "v1.2"},
		"unicode letters":  {"Überblick", "überblick"},
		"leading space":    {"  intro", "intro"},
		"trailing hyphen":  {"intro-", "intro"},
		"already a slug":   {"getting-started", "getting-started"},
		"digits untouched": {"2024-review", "2024-review"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := Slugify(tc.in); got != tc.want {
				t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
