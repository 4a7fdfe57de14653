package transform

import (
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"
)

// SplitFrontmatter separates a document into the YAML between its leading
// `---` delimiters and the body after the closing one. ok is false when the
// document does not open with a frontmatter block.
func SplitFrontmatter(content string) (meta, body string, ok bool) {
	rest, found := strings.CutPrefix(content, "---\n")
	if !found {
		return "", content, false
	}
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", content, false
	}
	meta = rest[:end+1]

	tail := rest[end+len("\n---"):]
	if nl := strings.IndexByte(tail, '\n'); nl >= 0 {
		tail = tail[nl+1:]
	} else {
		tail = ""
	}
	return meta, tail, true
}

// ParseFrontmatter returns the document's frontmatter as a generic map plus
// the body after it. Documents without a block return a nil map and the
// content untouched.
func ParseFrontmatter(content string) (map[string]any, string, error) {
	meta, body, ok := SplitFrontmatter(content)
	if !ok {
		return nil, content, nil
	}
	var data map[string]any
	if err := yaml.Unmarshal([]byte(meta), &data); err != nil {
		return nil, content, fmt.Errorf("parsing frontmatter: %w", err)
	}
	return data, body, nil
}
