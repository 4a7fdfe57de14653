package match

import (
	"testing"
)

func TestMatch(t *testing.T) {
	rules := []Rule{
		{Pattern: "docs/api/**/*.md", BasePath: "content/api"},
		{Pattern: "docs/**/*.md", BasePath: "content/docs"},
		{Pattern: "*.md", BasePath: "content"},
	}

	tests := map[string]struct {
		path      string
		wantIndex int
		wantOK    bool
	}{
		"first rule wins over overlapping second": {
			path:      "docs/api/v1/users.md",
			wantIndex: 0,
			wantOK:    true,
		},
		"falls through to broader rule": {
			path:      "docs/guide/intro.md",
			wantIndex: 1,
			wantOK:    true,
		},
		"root-level file matches single-segment glob": {
			path:      "README.md",
			wantIndex: 2,
			wantOK:    true,
		},
		"single star does not cross segments": {
			path:      "src/lib/util.md",
			wantOK:    false,
			wantIndex: 0,
		},
		"non-markdown excluded": {
			path:   "docs/guide/diagram.png",
			wantOK: false,
		},
		"case sensitive": {
			path:   "Docs/guide/intro.md",
			wantOK: false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, ok := Match(tc.path, rules)
			if ok != tc.wantOK {
				t.Fatalf("Match(%q) ok = %v, want %v", tc.path, ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if got.RuleIndex != tc.wantIndex {
				t.Errorf("Match(%q) rule index = %d, want %d", tc.path, got.RuleIndex, tc.wantIndex)
			}
			if got.RemotePath != tc.path {
				t.Errorf("Match(%q) remote path = %q, want %q", tc.path, got.RemotePath, tc.path)
			}
			if got.BasePath != rules[tc.wantIndex].BasePath {
				t.Errorf("Match(%q) base path = %q, want %q", tc.path, got.BasePath, rules[tc.wantIndex].BasePath)
			}
		})
	}
}

func TestMatchGlobFeatures(t *testing.T) {
	tests := map[string]struct {
		pattern string
		path    string
		want    bool
	}{
		"brace alternation": {
			pattern: "docs/{guide,reference}/*.md",
			path:    "docs/reference/cli.md",
			want:    true,
		},
		"brace alternation miss": {
			pattern: "docs/{guide,reference}/*.md",
			path:    "docs/internal/cli.md",
			want:    false,
		},
		"character class": {
			pattern: "docs/ch[0-9].md",
			path:    "docs/ch3.md",
			want:    true,
		},
		"character class miss": {
			pattern: "docs/ch[0-9].md",
			path:    "docs/chx.md",
			want:    false,
		},
		"double star matches zero directories": {
			pattern: "docs/**/*.md",
			path:    "docs/intro.md",
			want:    true,
		},
		"double star matches deep nesting": {
			pattern: "docs/**/*.md",
			path:    "docs/a/b/c/d.md",
			want:    true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, got := Match(tc.path, []Rule{{Pattern: tc.pattern}})
			if got != tc.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tc.path, tc.pattern, got, tc.want)
			}
		})
	}
}

func TestMatchNoRules(t *testing.T) {
	got, ok := Match("anything/at/all.txt", nil)
	if !ok {
		t.Fatal("Match with no rules should accept every path")
	}
	if got.RuleIndex != NoRule {
		t.Errorf("rule index = %d, want NoRule (%d)", got.RuleIndex, NoRule)
	}
	if got.RemotePath != "anything/at/all.txt" {
		t.Errorf("remote path = %q, want original", got.RemotePath)
	}
}

func TestMatchInvalidPattern(t *testing.T) {
	rules := []Rule{
		{Pattern: "docs/[", BasePath: "broken"},
		{Pattern: "docs/*.md", BasePath: "content"},
	}

	got, ok := Match("docs/intro.md", rules)
	if !ok {
		t.Fatal("valid later rule should still match")
	}
	if got.RuleIndex != 1 {
		t.Errorf("rule index = %d, want 1 (invalid pattern skipped)", got.RuleIndex)
	}
}
