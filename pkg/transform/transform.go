// Package transform applies ordered content rewrites to imported
// documents.
package transform

import (
	"fmt"
	"log/slog"
)

// Context carries the identifiers a transform can key its behavior on.
type Context struct {
	// ID is the document's stable store id.
	ID string
	// SourcePath is the document's original remote path.
	SourcePath string
	// RuleIndex is the include rule that matched the document, -1 when the
	// source had no rules.
	RuleIndex int
	// BasePath is the matched rule's destination directory.
	BasePath string
}

// Func rewrites document content. A non-nil error makes the pipeline skip
// this transform's output; it never fails the document.
type Func func(tc Context, content string) (string, error)

// Apply runs the named transforms in order: source-global ones first, then
// the matched rule's. A transform that errors is logged and skipped,
// leaving the content as it was before that transform; the rest of the
// chain still runs.
func Apply(tc Context, content string, global, scoped []string, logger *slog.Logger) string {
	names := make([]string, 0, len(global)+len(scoped))
	names = append(names, global...)
	names = append(names, scoped...)

	for _, name := range names {
		fn, ok := Get(name)
		if !ok {
			logger.Warn("unknown transform, skipping", "transform", name, "path", tc.SourcePath)
			continue
		}
		out, err := fn(tc, content)
		if err != nil {
			logger.Warn("transform failed, skipping", "transform", name, "path", tc.SourcePath, "error", err)
			continue
		}
		content = out
	}
	return content
}

// Validate reports the first transform name that is not registered.
// Configuration referencing unknown transforms is rejected before any
// network work starts.
func Validate(names []string) error {
	for _, name := range names {
		if _, ok := Get(name); !ok {
			return fmt.Errorf("unknown transform %q (registered: %v)", name, Registered())
		}
	}
	return nil
}
