// Package remote defines the four-operation surface the sync engine needs
// from a remote tree host, plus the GitHub and local-directory
// implementations of it.
package remote

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Source identifies one remote tree by owner and repository name.
type Source struct {
	Owner string
	Repo  string
}

func (s Source) String() string {
	return s.Owner + "/" + s.Repo
}

var repoSegmentRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
var refRegex = regexp.MustCompile(`^[A-Za-z0-9._/-]+$`)

// ParseRepo splits an "owner/name" identity. Both segments are restricted
// to a safe character set because they are embedded verbatim in request
// paths and filesystem locations.
func ParseRepo(s string) (Source, error) {
	owner, repo, ok := strings.Cut(s, "/")
	if !ok || owner == "" || repo == "" {
		return Source{}, fmt.Errorf("repo %q must be in owner/name form", s)
	}
	if !repoSegmentRegex.MatchString(owner) || !repoSegmentRegex.MatchString(repo) {
		return Source{}, fmt.Errorf("repo %q contains characters outside [A-Za-z0-9_.-]", s)
	}
	return Source{Owner: owner, Repo: repo}, nil
}

// ValidRef reports whether ref is safe to embed in a request path. Branch
// and tag names may contain slashes, but never a ".." segment.
func ValidRef(ref string) bool {
	if ref == "" || !refRegex.MatchString(ref) {
		return false
	}
	for _, seg := range strings.Split(ref, "/") {
		if seg == ".." || seg == "" {
			return false
		}
	}
	return true
}

// Commit is a resolved ref. Message and Date feed the dry-run report's
// "latest change" line.
type Commit struct {
	SHA     string
	Message string
	Date    time.Time
}

// TreeEntry is one entry of a recursive tree listing.
type TreeEntry struct {
	Path string
	Type string
	SHA  string
	Size int64
}

// IsFile reports whether the entry is a plain file (blob).
func (e TreeEntry) IsFile() bool {
	return e.Type == "blob"
}

// Conditional carries revalidation tokens saved from a previous fetch. A
// zero Conditional makes the request unconditional.
type Conditional struct {
	ETag         string
	LastModified string
}

// File is the outcome of a content fetch. When NotModified is set the
// content is empty and the caller should reuse its local copy.
type File struct {
	Content      []byte
	ETag         string
	LastModified string
	NotModified  bool
}

// FileMeta describes one file without its content. The asset pipeline uses
// it solely to obtain a byte-download URL.
type FileMeta struct {
	DownloadURL string
	SHA         string
	Size        int64
}

// Provider is a remote tree host. Implementations must be safe for
// concurrent use; the engine fetches many files at once.
type Provider interface {
	// ResolveRef resolves a branch, tag, or commit ref to its commit.
	ResolveRef(ctx context.Context, src Source, ref string) (*Commit, error)

	// ListTree returns every entry reachable from the commit in a single
	// recursive listing. It never walks per directory.
	ListTree(ctx context.Context, src Source, sha string) ([]TreeEntry, error)

	// FetchFile fetches raw file bytes at path for ref, honoring cond.
	FetchFile(ctx context.Context, src Source, path, ref string, cond Conditional) (*File, error)

	// FileMeta fetches metadata for a single file at path for ref.
	FileMeta(ctx context.Context, src Source, path, ref string) (*FileMeta, error)
}
