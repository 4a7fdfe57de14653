package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/docpull/docpull/pkg/config"
	"github.com/docpull/docpull/pkg/match"
	"github.com/docpull/docpull/pkg/project"
	"github.com/docpull/docpull/pkg/remote"
)

// Clean re-lists a source's live tree and removes local files under its
// base paths that no remote path maps to anymore. When discovery fails the
// expected set degrades to empty, which would mark everything local as an
// orphan; wiping in that state requires force.
func (e *Engine) Clean(ctx context.Context, id string, force bool) (int, error) {
	sc, ok := e.Config.Sources[id]
	if !ok {
		return 0, fmt.Errorf("source %q is not configured", id)
	}

	rules := sc.MatchRules()
	var work []match.Entry
	entries, err := e.listLive(ctx, sc)
	if err != nil {
		if ctx.Err() != nil {
			return 0, err
		}
		e.Logger.Error("listing failed, treating every local file as an orphan", "source", id, "error", err)
	} else {
		work = matchEntries(entries, rules, sc.BasePath)
	}

	return e.removeOrphans(ctx, sc, work, rules, force)
}

func (e *Engine) listLive(ctx context.Context, sc config.SourceConfig) ([]remote.TreeEntry, error) {
	provider, src, err := e.providerFor(sc)
	if err != nil {
		return nil, err
	}
	commit, err := provider.ResolveRef(ctx, src, sc.Ref)
	if err != nil {
		return nil, err
	}
	return provider.ListTree(ctx, src, commit.SHA)
}

// removeOrphans deletes local files absent from the expected set computed
// off the given live listing. Deletions are serialized with a pause so the
// surrounding file watcher sees them one at a time; one failed deletion
// does not stop the rest. An empty expected set against a non-empty local
// tree is refused unless forced.
func (e *Engine) removeOrphans(ctx context.Context, sc config.SourceConfig, entries []match.Entry, rules []match.Rule, force bool) (int, error) {
	expected := make(map[string]bool, len(entries))
	for _, m := range entries {
		var rule *match.Rule
		if m.RuleIndex != match.NoRule {
			rule = &rules[m.RuleIndex]
		}
		expected[match.TargetPath(m, rule)] = true
	}

	local, err := e.localFiles(sc, rules)
	if err != nil {
		return 0, err
	}

	var orphans []string
	for _, p := range local {
		if !expected[p] {
			orphans = append(orphans, p)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	if len(expected) == 0 && !force {
		e.Logger.Error("refusing to delete: expected set is empty, every local file looks orphaned",
			"local", len(local))
		return 0, nil
	}

	sort.Strings(orphans)
	deleted := 0
	for i, p := range orphans {
		if i > 0 {
			select {
			case <-ctx.Done():
				return deleted, ctx.Err()
			case <-time.After(e.DeleteDelay):
			}
		}

		abs, err := project.Resolve(e.Root, p)
		if err != nil {
			e.Logger.Warn("skipping orphan outside the project root", "path", p)
			continue
		}
		if err := os.Remove(abs); err != nil {
			e.Logger.Warn("deleting orphan failed", "path", p, "error", err)
			continue
		}
		e.forgetTarget(p)
		e.Logger.Info("deleted orphan", "path", p)
		deleted++
	}
	return deleted, nil
}

// forgetTarget drops the store record and cache tags belonging to a
// deleted target path, via the reverse index persist maintains.
func (e *Engine) forgetTarget(targetPath string) {
	id, ok := e.Meta.Get("target:" + targetPath)
	if !ok {
		return
	}
	if err := e.Store.Delete(id); err != nil {
		e.Logger.Warn("deleting store record failed", "id", id, "error", err)
	}
	for _, key := range []string{"target:" + targetPath, "etag:" + id, "lastmod:" + id} {
		if err := e.Meta.Delete(key); err != nil {
			e.Logger.Warn("dropping metadata failed", "key", key, "error", err)
		}
	}
}

// localFiles walks every base path the source writes under and returns the
// files found, as slash-separated paths relative to the project root.
func (e *Engine) localFiles(sc config.SourceConfig, rules []match.Rule) ([]string, error) {
	dirs := make(map[string]bool)
	if len(rules) == 0 && sc.BasePath != "" {
		dirs[sc.BasePath] = true
	}
	for _, r := range rules {
		dirs[r.BasePath] = true
	}

	seen := make(map[string]bool)
	for dir := range dirs {
		abs, err := project.Resolve(e.Root, dir)
		if err != nil {
			return nil, fmt.Errorf("base path %s: %w", dir, err)
		}
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(e.Root, p)
			if err != nil {
				return err
			}
			seen[filepath.ToSlash(rel)] = true
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("walking %s: %w", dir, err)
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}
