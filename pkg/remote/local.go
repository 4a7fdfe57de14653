package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Local serves a directory tree as a Provider. It backs local_dir sources
// for offline work and gives tests a hermetic provider with real
// conditional-fetch semantics.
type Local struct {
	Root string
}

// NewLocal returns a provider rooted at dir, which must exist.
func NewLocal(dir string) (*Local, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("local tree %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local tree %s is not a directory", dir)
	}
	return &Local{Root: dir}, nil
}

// ResolveRef hashes every path and content hash in the tree into a
// pseudo-commit, so unchanged trees resolve to the same identifier and
// change detection behaves as it would against a real host. The ref itself
// is ignored; a plain directory has no branches.
func (l *Local) ResolveRef(ctx context.Context, src Source, ref string) (*Commit, error) {
	entries, err := l.ListTree(ctx, src, "")
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	var latest time.Time
	for _, e := range entries {
		io.WriteString(h, e.Path)
		io.WriteString(h, "\x00")
		io.WriteString(h, e.SHA)
		io.WriteString(h, "\x00")
		if info, err := os.Stat(l.abs(e.Path)); err == nil && info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}

	return &Commit{
		SHA:     hex.EncodeToString(h.Sum(nil)),
		Message: "local tree snapshot",
		Date:    latest,
	}, nil
}

// ListTree walks the whole directory once, mirroring a recursive tree
// listing. Entry SHAs are content hashes so the pseudo-commit moves when
// any file changes.
func (l *Local) ListTree(ctx context.Context, src Source, sha string) ([]TreeEntry, error) {
	var entries []TreeEntry
	err := filepath.WalkDir(l.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(l.Root, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(content)
		entries = append(entries, TreeEntry{
			Path: filepath.ToSlash(rel),
			Type: "blob",
			SHA:  hex.EncodeToString(sum[:]),
			Size: int64(len(content)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking local tree %s: %w", l.Root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// FetchFile reads the file and honors conditional tokens the way an HTTP
// host would: a matching etag (or an If-Modified-Since at or after the file
// mtime) short-circuits to not-modified.
func (l *Local) FetchFile(ctx context.Context, src Source, path, ref string, cond Conditional) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs := l.abs(path)
	if abs == "" {
		return nil, &NotFoundError{Path: path}
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	sum := sha256.Sum256(content)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	lastModified := info.ModTime().UTC().Format(http.TimeFormat)

	if cond.ETag != "" {
		if cond.ETag == etag {
			return &File{NotModified: true, ETag: etag, LastModified: lastModified}, nil
		}
	} else if cond.LastModified != "" {
		if since, perr := time.Parse(http.TimeFormat, cond.LastModified); perr == nil {
			if !info.ModTime().Truncate(time.Second).After(since) {
				return &File{NotModified: true, ETag: etag, LastModified: lastModified}, nil
			}
		}
	}

	return &File{Content: content, ETag: etag, LastModified: lastModified}, nil
}

// FileMeta returns a file:// download URL; the asset pipeline knows how to
// read those.
func (l *Local) FileMeta(ctx context.Context, src Source, path, ref string) (*FileMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs := l.abs(path)
	if abs == "" {
		return nil, &NotFoundError{Path: path}
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	sum := sha256.Sum256(content)

	absPath, err := filepath.Abs(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	return &FileMeta{
		DownloadURL: "file://" + filepath.ToSlash(absPath),
		SHA:         hex.EncodeToString(sum[:]),
		Size:        info.Size(),
	}, nil
}

// abs resolves a tree-relative path under the root, refusing anything that
// climbs out of it. Returns "" for escaping paths.
func (l *Local) abs(p string) string {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return ""
		}
	}
	if filepath.IsAbs(p) {
		return ""
	}
	return filepath.Join(l.Root, filepath.FromSlash(p))
}
