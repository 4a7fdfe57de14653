// Package fetch retrieves document content with revalidation,
// short-circuiting to the local copy when the remote reports it unchanged.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/docpull/docpull/pkg/docstore"
	"github.com/docpull/docpull/pkg/remote"
)

// Fetcher retrieves files through a provider, carrying revalidation tags
// from the side table so unchanged content is never transferred twice.
type Fetcher struct {
	Provider remote.Provider
	Meta     *docstore.Meta
	Logger   *slog.Logger
	Attempts int
	Backoff  time.Duration
}

// New returns a Fetcher with the default retry policy.
func New(provider remote.Provider, meta *docstore.Meta, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		Provider: provider,
		Meta:     meta,
		Logger:   logger,
		Attempts: remote.DefaultAttempts,
		Backoff:  remote.DefaultBackoff,
	}
}

// Result is fetched content plus where it came from.
type Result struct {
	Content []byte
	// FromCache is set when the remote revalidated the stored tag and the
	// content was read from the local target file instead of the wire.
	FromCache bool
}

// Fetch retrieves the file at path, using the tag stored under id for
// revalidation. localPath is the file's current target on disk; it backs
// the not-modified short-circuit. A revalidated-but-missing local file
// drops the tag and refetches unconditionally exactly once, so a stale tag
// can never turn into silent data loss.
func (f *Fetcher) Fetch(ctx context.Context, src remote.Source, path, ref, id, localPath string) (*Result, error) {
	file, err := f.fetchRetry(ctx, src, path, ref, f.conditional(id))
	if err != nil {
		return nil, err
	}

	if file.NotModified {
		content, rerr := os.ReadFile(localPath)
		if rerr == nil {
			return &Result{Content: content, FromCache: true}, nil
		}
		if !os.IsNotExist(rerr) {
			return nil, fmt.Errorf("reading local copy of %s: %w", path, rerr)
		}

		// The tag says unchanged but the local file is gone. The tag is
		// worthless now; fetch for real.
		f.dropTags(id)
		f.Logger.Warn("revalidated file missing locally, refetching", "path", path, "local", localPath)
		file, err = f.fetchRetry(ctx, src, path, ref, remote.Conditional{})
		if err != nil {
			return nil, err
		}
	}

	f.storeTags(id, file)
	return &Result{Content: file.Content}, nil
}

func (f *Fetcher) fetchRetry(ctx context.Context, src remote.Source, path, ref string, cond remote.Conditional) (*remote.File, error) {
	var file *remote.File
	err := remote.Retry(ctx, f.Attempts, f.Backoff, func() error {
		var ferr error
		file, ferr = f.Provider.FetchFile(ctx, src, path, ref, cond)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s from %s: %w", path, src, err)
	}
	return file, nil
}

// conditional loads the stored validator for id. An entity tag wins over a
// modification timestamp when both were recorded.
func (f *Fetcher) conditional(id string) remote.Conditional {
	if etag, ok := f.Meta.Get("etag:" + id); ok {
		return remote.Conditional{ETag: etag}
	}
	if lastmod, ok := f.Meta.Get("lastmod:" + id); ok {
		return remote.Conditional{LastModified: lastmod}
	}
	return remote.Conditional{}
}

// storeTags records the response validators under id. Tag persistence is
// housekeeping; a failed write is logged, never surfaced.
func (f *Fetcher) storeTags(id string, file *remote.File) {
	if file.ETag != "" {
		if err := f.Meta.Set("etag:"+id, file.ETag); err != nil {
			f.Logger.Warn("storing etag failed", "id", id, "error", err)
		}
	}
	if file.LastModified != "" {
		if err := f.Meta.Set("lastmod:"+id, file.LastModified); err != nil {
			f.Logger.Warn("storing last-modified failed", "id", id, "error", err)
		}
	}
}

func (f *Fetcher) dropTags(id string) {
	if err := f.Meta.Delete("etag:" + id); err != nil {
		f.Logger.Warn("dropping etag failed", "id", id, "error", err)
	}
	if err := f.Meta.Delete("lastmod:" + id); err != nil {
		f.Logger.Warn("dropping last-modified failed", "id", id, "error", err)
	}
}
