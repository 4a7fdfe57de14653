package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.github.com"
	acceptJSON     = "application/vnd.github+json"
	acceptRaw      = "application/vnd.github.raw+json"
)

// GitHub implements Provider against the GitHub REST API. The zero value is
// not usable; construct with NewGitHub.
type GitHub struct {
	// BaseURL is the API root, without a trailing slash. Overridable for
	// GitHub Enterprise hosts and for tests.
	BaseURL string
	// Token is sent as a bearer token when non-empty.
	Token  string
	Client *http.Client
}

// NewGitHub returns a GitHub provider for api.github.com. An empty token
// means anonymous access with its lower rate limits.
func NewGitHub(token string) *GitHub {
	return &GitHub{
		BaseURL: defaultBaseURL,
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// ResolveRef resolves a branch, tag, or commit SHA to its commit via the
// commits endpoint, which accepts any ref form in one call.
func (g *GitHub) ResolveRef(ctx context.Context, src Source, ref string) (*Commit, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/commits/%s", g.BaseURL, src.Owner, src.Repo, escapePath(ref))
	resp, err := g.get(ctx, u, acceptJSON, Conditional{})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.statusError(resp, src.String()+"@"+ref)
	}

	var payload struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message   string `json:"message"`
			Committer struct {
				Date time.Time `json:"date"`
			} `json:"committer"`
		} `json:"commit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding commit for %s@%s: %w", src, ref, err)
	}
	if payload.SHA == "" {
		return nil, fmt.Errorf("commit response for %s@%s carries no sha", src, ref)
	}

	return &Commit{
		SHA:     payload.SHA,
		Message: firstLine(payload.Commit.Message),
		Date:    payload.Commit.Committer.Date,
	}, nil
}

// ListTree fetches the commit's full tree with a single recursive call.
// Walking per directory would cost one request per level; the recursive
// listing keeps tree discovery at exactly one request regardless of depth.
func (g *GitHub) ListTree(ctx context.Context, src Source, sha string) ([]TreeEntry, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", g.BaseURL, src.Owner, src.Repo, escapePath(sha))
	resp, err := g.get(ctx, u, acceptJSON, Conditional{})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.statusError(resp, src.String()+" tree "+sha)
	}

	var payload struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
			SHA  string `json:"sha"`
			Size int64  `json:"size"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding tree for %s@%s: %w", src, sha, err)
	}
	if payload.Truncated {
		return nil, fmt.Errorf("listing %s@%s: %w", src, sha, ErrTruncatedTree)
	}

	entries := make([]TreeEntry, 0, len(payload.Tree))
	for _, e := range payload.Tree {
		entries = append(entries, TreeEntry{Path: e.Path, Type: e.Type, SHA: e.SHA, Size: e.Size})
	}
	return entries, nil
}

// FetchFile fetches raw file bytes through the contents endpoint. A stored
// validator in cond turns the request conditional; a 304 comes back as
// File{NotModified: true} rather than an error.
func (g *GitHub) FetchFile(ctx context.Context, src Source, path, ref string, cond Conditional) (*File, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		g.BaseURL, src.Owner, src.Repo, escapePath(path), url.QueryEscape(ref))
	resp, err := g.get(ctx, u, acceptRaw, cond)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return &File{NotModified: true, ETag: cond.ETag, LastModified: cond.LastModified}, nil
	case http.StatusOK:
		content, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading %s from %s: %w", path, src, err)
		}
		return &File{
			Content:      content,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}, nil
	default:
		return nil, g.statusError(resp, src.String()+"/"+path)
	}
}

// FileMeta fetches a single file's metadata, including its byte-download
// URL, without transferring the content.
func (g *GitHub) FileMeta(ctx context.Context, src Source, path, ref string) (*FileMeta, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		g.BaseURL, src.Owner, src.Repo, escapePath(path), url.QueryEscape(ref))
	resp, err := g.get(ctx, u, acceptJSON, Conditional{})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.statusError(resp, src.String()+"/"+path)
	}

	var payload struct {
		DownloadURL string `json:"download_url"`
		SHA         string `json:"sha"`
		Size        int64  `json:"size"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s in %s: %w", path, src, err)
	}
	if payload.DownloadURL == "" {
		return nil, fmt.Errorf("no download url for %s in %s", path, src)
	}

	return &FileMeta{DownloadURL: payload.DownloadURL, SHA: payload.SHA, Size: payload.Size}, nil
}

func (g *GitHub) get(ctx context.Context, u, accept string, cond Conditional) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	if cond.ETag != "" {
		req.Header.Set("If-None-Match", cond.ETag)
	} else if cond.LastModified != "" {
		req.Header.Set("If-Modified-Since", cond.LastModified)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", u, err)
	}
	return resp, nil
}

// statusError drains a short error body and maps the status to a typed
// error. The body is capped; GitHub error payloads are small JSON blobs.
func (g *GitHub) statusError(resp *http.Response, what string) error {
	if resp.StatusCode == http.StatusNotFound {
		return &NotFoundError{Path: what}
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &RequestError{
		Status: resp.StatusCode,
		URL:    resp.Request.URL.String(),
		Detail: strings.TrimSpace(string(detail)),
	}
}

// escapePath escapes each path segment while keeping the separators, so
// refs like "release/v2" and paths with spaces survive URL construction.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

// firstLine trims a commit message to its subject line for report output.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
