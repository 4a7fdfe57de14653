// Package sync drives imports end to end: discover the remote tree, match
// and map paths, fetch with revalidation, localize assets, run transforms,
// resolve links over the whole batch, persist, and reconcile orphans.
package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docpull/docpull/pkg/assets"
	"github.com/docpull/docpull/pkg/config"
	"github.com/docpull/docpull/pkg/docstore"
	"github.com/docpull/docpull/pkg/fetch"
	"github.com/docpull/docpull/pkg/links"
	"github.com/docpull/docpull/pkg/match"
	"github.com/docpull/docpull/pkg/project"
	"github.com/docpull/docpull/pkg/remote"
	"github.com/docpull/docpull/pkg/transform"
)

const (
	// DefaultConcurrency bounds per-file work within one source.
	DefaultConcurrency = 8
	// DefaultDeleteDelay is the pause between orphan deletions, kept small
	// but nonzero so file watchers see removals one at a time.
	DefaultDeleteDelay = 50 * time.Millisecond
)

// Engine imports configured sources into the project tree.
type Engine struct {
	Config *config.Config
	Store  docstore.Store
	Meta   *docstore.Meta
	Logger *slog.Logger

	// Root is the absolute project root every destination path must stay
	// within.
	Root string

	// Token authenticates hosted-repository requests. Optional.
	Token string

	Concurrency int
	DeleteDelay time.Duration

	now func() time.Time
}

// New returns an Engine with default limits.
func New(cfg *config.Config, root string, store docstore.Store, meta *docstore.Meta, logger *slog.Logger) *Engine {
	return &Engine{
		Config:      cfg,
		Store:       store,
		Meta:        meta,
		Logger:      logger,
		Root:        root,
		Concurrency: DefaultConcurrency,
		DeleteDelay: DefaultDeleteDelay,
		now:         time.Now,
	}
}

// Result summarizes one source's sync.
type Result struct {
	SourceID  string
	Name      string
	Commit    string
	Matched   int
	Imported  int
	Unchanged int
	Failed    int
	Deleted   int
}

// fileResult is the per-file outcome collected before link resolution.
type fileResult struct {
	file     links.File
	content  string
	stableID string
	absPath  string
	err      error
}

// SyncAll imports every configured source in name order. A failing source
// is logged and does not stop the others; cancellation does.
func (e *Engine) SyncAll(ctx context.Context) ([]*Result, error) {
	var (
		results []*Result
		errs    []error
	)
	for _, id := range e.sourceIDs() {
		res, err := e.SyncSource(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return results, err
			}
			e.Logger.Error("source sync failed", "source", id, "error", err)
			errs = append(errs, fmt.Errorf("source %q: %w", id, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// SyncSource imports one source. Discovery is exactly two provider calls,
// one ref resolution and one recursive listing, regardless of tree depth.
// Per-file failures are counted and logged; only configuration problems,
// discovery failures, and cancellation abort the source.
func (e *Engine) SyncSource(ctx context.Context, id string) (*Result, error) {
	sc, ok := e.Config.Sources[id]
	if !ok {
		return nil, fmt.Errorf("source %q is not configured", id)
	}

	provider, src, err := e.providerFor(sc)
	if err != nil {
		return nil, err
	}
	pipeline, err := e.assetPipeline(provider, sc)
	if err != nil {
		return nil, err
	}

	commit, err := provider.ResolveRef(ctx, src, sc.Ref)
	if err != nil {
		return nil, fmt.Errorf("resolving ref for %s: %w", e.Config.SourceName(id), err)
	}
	entries, err := provider.ListTree(ctx, src, commit.SHA)
	if err != nil {
		return nil, fmt.Errorf("listing tree for %s: %w", e.Config.SourceName(id), err)
	}

	rules := sc.MatchRules()
	work := matchEntries(entries, rules, sc.BasePath)
	e.Logger.Info("importing", "source", id, "commit", shortSHA(commit.SHA), "files", len(work))

	files := make([]fileResult, len(work))
	fetcher := fetch.New(provider, e.Meta, e.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Concurrency)
	for i, m := range work {
		g.Go(func() error {
			fr, err := e.processFile(gctx, fetcher, pipeline, src, commit.SHA, id, sc, rules, m)
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				e.Logger.Error("file failed", "source", id, "path", m.RemotePath, "error", err)
				files[i] = fileResult{err: err}
				return nil
			}
			files[i] = *fr
			return nil
		})
	}
	// Link resolution needs every file's final destination, so nothing
	// past this point may start until the whole batch has finished.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := make([]links.File, 0, len(files))
	for i := range files {
		if files[i].err == nil {
			batch = append(batch, files[i].file)
		}
	}
	resolver := links.NewResolver(batch, e.linkRules(sc), nil, e.Config.Project.StripPrefixes)

	res := &Result{SourceID: id, Name: e.Config.SourceName(id), Commit: commit.SHA, Matched: len(work)}
	for i := range files {
		if files[i].err != nil {
			res.Failed++
			continue
		}
		final := resolver.RewriteDoc(files[i].file, files[i].content)
		changed, err := e.persist(&files[i], final)
		if err != nil {
			e.Logger.Error("persisting failed", "source", id, "path", files[i].file.TargetPath, "error", err)
			res.Failed++
			continue
		}
		if changed {
			res.Imported++
		} else {
			res.Unchanged++
		}
	}

	deleted, err := e.removeOrphans(ctx, sc, work, rules, false)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		e.Logger.Warn("cleanup failed", "source", id, "error", err)
	}
	res.Deleted = deleted

	if err := e.recordImport(id, sc, commit); err != nil {
		e.Logger.Warn("recording import state failed", "source", id, "error", err)
	}
	return res, nil
}

// matchEntries filters the listing to files accepted by the rules. In
// include-all mode the source's base path stands in for the missing rule.
func matchEntries(entries []remote.TreeEntry, rules []match.Rule, basePath string) []match.Entry {
	var work []match.Entry
	for _, te := range entries {
		if !te.IsFile() {
			continue
		}
		m, ok := match.Match(te.Path, rules)
		if !ok {
			continue
		}
		if m.RuleIndex == match.NoRule {
			m.BasePath = basePath
		}
		work = append(work, m)
	}
	return work
}

// processFile runs the per-file half of the pipeline: map, fetch, assets,
// transforms. Link resolution happens later, over the whole batch.
func (e *Engine) processFile(ctx context.Context, fetcher *fetch.Fetcher, pipeline *assets.Pipeline, src remote.Source, sha, id string, sc config.SourceConfig, rules []match.Rule, m match.Entry) (*fileResult, error) {
	var rule *match.Rule
	if m.RuleIndex != match.NoRule {
		rule = &rules[m.RuleIndex]
	}

	target := match.TargetPath(m, rule)
	abs, err := project.Resolve(e.Root, target)
	if err != nil {
		return nil, fmt.Errorf("destination for %s: %w", m.RemotePath, err)
	}

	stableID := StableID(id, m.RemotePath)
	fres, err := fetcher.Fetch(ctx, src, m.RemotePath, sha, stableID, abs)
	if err != nil {
		return nil, err
	}

	content := string(fres.Content)
	if pipeline != nil {
		content, err = pipeline.Rewrite(ctx, src, sha, m.RemotePath, content)
		if err != nil {
			return nil, err
		}
	}

	var ruleTransforms []string
	if rule != nil {
		ruleTransforms = rule.Transforms
	}
	tc := transform.Context{ID: stableID, SourcePath: m.RemotePath, RuleIndex: m.RuleIndex, BasePath: m.BasePath}
	content = transform.Apply(tc, content, sc.Transforms, ruleTransforms, e.Logger)

	return &fileResult{
		file: links.File{
			SourcePath: m.RemotePath,
			TargetPath: target,
			RuleIndex:  m.RuleIndex,
			BasePath:   m.BasePath,
		},
		content:  content,
		stableID: stableID,
		absPath:  abs,
	}, nil
}

// persist writes the final content and its store record, unless both are
// already in place with the same digest. The digest check is what makes a
// re-import of an unchanged tree produce zero writes and zero store
// mutations.
func (e *Engine) persist(fr *fileResult, final string) (bool, error) {
	digest := contentDigest(final)
	if prev, ok := e.Store.Get(fr.stableID); ok && prev.Digest == digest {
		if _, err := os.Stat(fr.absPath); err == nil {
			return false, nil
		}
	}

	if err := project.WriteFileAtomic(fr.absPath, []byte(final)); err != nil {
		return false, err
	}

	rec := &docstore.Record{
		ID:       fr.stableID,
		FilePath: fr.file.TargetPath,
		Digest:   digest,
	}
	if data, body, err := transform.ParseFrontmatter(final); err == nil && data != nil {
		rec.Data, rec.Body = data, body
	} else {
		rec.Body = final
	}
	if err := e.Store.Set(rec); err != nil {
		return false, err
	}
	// Reverse index for cleanup: target path back to store id.
	if err := e.Meta.Set("target:"+fr.file.TargetPath, fr.stableID); err != nil {
		e.Logger.Warn("recording target index failed", "path", fr.file.TargetPath, "error", err)
	}
	return true, nil
}

// recordImport updates the state file, but only when the imported commit
// or ref actually moved. An unchanged tree leaves the file untouched.
func (e *Engine) recordImport(id string, sc config.SourceConfig, commit *remote.Commit) error {
	st, err := LoadState(e.statePath())
	if err != nil {
		return err
	}

	key := e.Config.StateKeyFor(id)
	rec, ok := st.Imports[key]
	if ok && rec.LastCommit == commit.SHA && rec.Ref == sc.Ref {
		return nil
	}

	st.Imports[key] = ImportRecord{
		Name:           e.Config.SourceName(id),
		LastCommit:     commit.SHA,
		LastImportedAt: e.now(),
		Ref:            sc.Ref,
	}
	st.LastChecked = e.now()
	return st.Save(e.statePath())
}

func (e *Engine) statePath() string {
	return filepath.Join(e.Root, project.StateDir, StateFile)
}

func (e *Engine) sourceIDs() []string {
	ids := make([]string, 0, len(e.Config.Sources))
	for id := range e.Config.Sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// providerFor picks the provider for a source: a hosted repository unless
// the source points at a local directory.
func (e *Engine) providerFor(sc config.SourceConfig) (remote.Provider, remote.Source, error) {
	if sc.LocalDir != "" {
		dir := sc.LocalDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(e.Root, dir)
		}
		l, err := remote.NewLocal(dir)
		if err != nil {
			return nil, remote.Source{}, err
		}
		return l, remote.Source{}, nil
	}

	src, err := remote.ParseRepo(sc.Repo)
	if err != nil {
		return nil, remote.Source{}, err
	}
	return remote.NewGitHub(e.Token), src, nil
}

// assetPipeline builds the source's asset pipeline, or nil when the source
// does not localize assets.
func (e *Engine) assetPipeline(provider remote.Provider, sc config.SourceConfig) (*assets.Pipeline, error) {
	if sc.AssetsDir == "" {
		return nil, nil
	}
	dir, err := project.Resolve(e.Root, sc.AssetsDir)
	if err != nil {
		return nil, fmt.Errorf("assets dir: %w", err)
	}
	public := sc.AssetPublicPath
	if public == "" {
		public = "/" + path.Clean(sc.AssetsDir)
	}
	return assets.New(provider, dir, public, sc.AssetExtensions, e.Logger), nil
}

// linkRules converts the source's configured link rules. Patterns were
// checked at config validation, so a compile failure here is a bug worth a
// log line, not an abort.
func (e *Engine) linkRules(sc config.SourceConfig) []links.MapRule {
	out := make([]links.MapRule, 0, len(sc.LinkRules))
	for _, lr := range sc.LinkRules {
		rule := links.MapRule{Global: lr.Global, Replace: lr.Replace}
		if lr.Regex {
			re, err := regexp.Compile(lr.Match)
			if err != nil {
				e.Logger.Warn("link rule skipped", "match", lr.Match, "error", err)
				continue
			}
			rule.Pattern = re
		} else {
			rule.Literal = lr.Match
		}
		if base := lr.RestrictBase; base != "" {
			rule.When = func(f links.File) bool { return f.BasePath == base }
		}
		out = append(out, rule)
	}
	return out
}

// StableID is the destination-store key for one source file: the source id
// plus the remote path with its extension stripped. Stable across runs, so
// re-imports update records in place instead of duplicating them.
func StableID(sourceID, sourcePath string) string {
	base := path.Base(sourcePath)
	if ext := path.Ext(base); ext != "" && ext != base {
		sourcePath = strings.TrimSuffix(sourcePath, ext)
	}
	return sourceID + ":" + sourcePath
}

func contentDigest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
