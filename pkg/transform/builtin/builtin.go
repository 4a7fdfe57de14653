// Package builtin registers the transforms docpull ships with. Importing
// it for side effects makes them available by name in include rules.
package builtin

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/docpull/docpull/pkg/transform"
)

func init() {
	transform.Register("frontmatter", ensureFrontmatter)
	transform.Register("strip-html-comments", stripHTMLComments)
}

// ensureFrontmatter guarantees the document opens with a YAML frontmatter
// block carrying a title, deriving one from the first heading or, failing
// that, the source file name. Documents that already have a title pass
// through untouched.
func ensureFrontmatter(tc transform.Context, content string) (string, error) {
	data, body, err := transform.ParseFrontmatter(content)
	if err != nil {
		return "", err
	}

	if data != nil {
		if _, ok := data["title"]; ok {
			return content, nil
		}
		data["title"] = titleFor(body, tc.SourcePath)
		out, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("encoding frontmatter: %w", err)
		}
		return "---\n" + string(out) + "---\n" + body, nil
	}

	out, err := yaml.Marshal(map[string]any{"title": titleFor(content, tc.SourcePath)})
	if err != nil {
		return "", fmt.Errorf("encoding frontmatter: %w", err)
	}
	return "---\n" + string(out) + "---\n\n" + content, nil
}

func titleFor(body, sourcePath string) string {
	for _, line := range strings.Split(body, "\n") {
		if t, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	stem := strings.TrimSuffix(path.Base(sourcePath), path.Ext(sourcePath))
	stem = strings.ReplaceAll(stem, "-", " ")
	return strings.ReplaceAll(stem, "_", " ")
}

var htmlCommentRegex = regexp.MustCompile(`(?s)<!--.*?-->`)

// stripHTMLComments drops HTML comment blocks, which upstream trees tend to
// use for authoring notes that should not reach the published site.
func stripHTMLComments(_ transform.Context, content string) (string, error) {
	return htmlCommentRegex.ReplaceAllString(content, ""), nil
}
