// Package assets localizes embedded media: it detects asset references in
// a document, downloads the files, and rewrites the references to their
// local locations. It runs before content transforms so detection sees the
// upstream markup unaltered.
package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docpull/docpull/pkg/project"
	"github.com/docpull/docpull/pkg/remote"
)

// DefaultExtensions are the media types localized when a source does not
// configure its own set.
var DefaultExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp",
	".mp4", ".webm", ".mp3", ".ogg", ".pdf",
}

// DefaultConcurrency bounds simultaneous downloads within one document.
const DefaultConcurrency = 4

var (
	markdownImageRegex = regexp.MustCompile(`!\[[^\]]*\]\(\s*([^)\s]+)(?:\s+"[^"]*")?\s*\)`)
	htmlMediaRegex     = regexp.MustCompile(`<(?:img|source|video|audio|embed)\b[^>]*?\bsrc\s*=\s*"([^"]+)"`)
	schemeRegex        = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
)

// Pipeline downloads a document's embedded media and rewrites the
// references. One Pipeline serves one source.
type Pipeline struct {
	Provider remote.Provider
	Client   *http.Client
	Logger   *slog.Logger

	// Dir is the absolute directory downloaded files land in; PublicPath
	// is the URL prefix documents reference them by.
	Dir        string
	PublicPath string

	// Extensions is the lowercase set of file extensions treated as
	// assets, dots included.
	Extensions map[string]bool

	Concurrency int
	Attempts    int
	Backoff     time.Duration
}

// New returns a Pipeline writing into dir. A nil or empty extension list
// selects DefaultExtensions.
func New(provider remote.Provider, dir, publicPath string, extensions []string, logger *slog.Logger) *Pipeline {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = true
	}
	return &Pipeline{
		Provider:    provider,
		Client:      &http.Client{Timeout: 60 * time.Second},
		Logger:      logger,
		Dir:         dir,
		PublicPath:  strings.TrimSuffix(publicPath, "/"),
		Extensions:  set,
		Concurrency: DefaultConcurrency,
		Attempts:    remote.DefaultAttempts,
		Backoff:     remote.DefaultBackoff,
	}
}

// Rewrite localizes every asset referenced by the document at docPath and
// returns the content with the references replaced. Downloads within the
// document run concurrently. A failed asset is logged and its reference
// left untouched; only cancellation aborts the document.
func (p *Pipeline) Rewrite(ctx context.Context, src remote.Source, ref, docPath, content string) (string, error) {
	refs := p.detect(content)
	if len(refs) == 0 {
		return content, nil
	}

	var mu sync.Mutex
	localized := make(map[string]string, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Concurrency)
	for _, r := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			local, err := p.localize(gctx, src, ref, docPath, r)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.Logger.Warn("asset skipped", "doc", docPath, "asset", r, "error", err)
				return nil
			}
			mu.Lock()
			localized[r] = local
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return content, err
	}

	return p.replace(content, localized), nil
}

// detect returns the unique asset references in document order: markdown
// image targets and HTML media src attributes carrying a configured
// extension, excluding anything absolute or external.
func (p *Pipeline) detect(content string) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, re := range []*regexp.Regexp{markdownImageRegex, htmlMediaRegex} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			target := m[1]
			if seen[target] || !p.wants(target) {
				continue
			}
			seen[target] = true
			refs = append(refs, target)
		}
	}
	return refs
}

// wants reports whether target is a relative reference to a configured
// asset type.
func (p *Pipeline) wants(target string) bool {
	if target == "" || strings.HasPrefix(target, "#") {
		return false
	}
	if strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return false
	}
	if schemeRegex.MatchString(target) {
		return false
	}
	return p.Extensions[strings.ToLower(path.Ext(target))]
}

// localize downloads one asset and returns its new public URL. A file
// already present at the generated name is reused without a fetch; the
// uniqueness suffix in the name is what makes that safe across documents.
func (p *Pipeline) localize(ctx context.Context, src remote.Source, ref, docPath, target string) (string, error) {
	resolved := path.Clean(path.Join(path.Dir(docPath), target))
	if strings.HasPrefix(resolved, "../") {
		return "", fmt.Errorf("resolves outside the tree: %s", resolved)
	}

	name := uniqueName(resolved)
	dest := filepath.Join(p.Dir, name)
	public := p.PublicPath + "/" + name

	if _, err := os.Stat(dest); err == nil {
		return public, nil
	}

	var meta *remote.FileMeta
	err := remote.Retry(ctx, p.Attempts, p.Backoff, func() error {
		var merr error
		meta, merr = p.Provider.FileMeta(ctx, src, resolved, ref)
		return merr
	})
	if err != nil {
		return "", err
	}

	data, err := p.download(ctx, meta.DownloadURL)
	if err != nil {
		return "", err
	}
	if err := project.WriteFileAtomic(dest, data); err != nil {
		return "", err
	}
	return public, nil
}

// download fetches raw bytes from the provider-supplied URL. file:// URLs
// come from the local provider and are read straight from disk.
func (p *Pipeline) download(ctx context.Context, url string) ([]byte, error) {
	if after, ok := strings.CutPrefix(url, "file://"); ok {
		data, err := os.ReadFile(after)
		if err != nil {
			return nil, fmt.Errorf("reading local asset: %w", err)
		}
		return data, nil
	}

	var data []byte
	err := remote.Retry(ctx, p.Attempts, p.Backoff, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		resp, err := p.Client.Do(req)
		if err != nil {
			return fmt.Errorf("downloading %s: %w", url, err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			data, err = io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading %s: %w", url, err)
			}
			return nil
		case http.StatusNotFound:
			return &remote.NotFoundError{Path: url}
		default:
			return &remote.RequestError{Status: resp.StatusCode, URL: url}
		}
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// replace swaps every detected reference for its local URL, leaving
// references whose download failed exactly as they were.
func (p *Pipeline) replace(content string, localized map[string]string) string {
	if len(localized) == 0 {
		return content
	}
	for _, re := range []*regexp.Regexp{markdownImageRegex, htmlMediaRegex} {
		content = re.ReplaceAllStringFunc(content, func(m string) string {
			sub := re.FindStringSubmatch(m)
			local, ok := localized[sub[1]]
			if !ok {
				return m
			}
			return strings.Replace(m, sub[1], local, 1)
		})
	}
	return content
}

// uniqueName builds the local filename: original stem, a short hash of the
// resolved source path, original extension. Two documents referencing
// different files that share a basename get different names; the same file
// referenced twice gets the same one.
func uniqueName(resolved string) string {
	base := path.Base(resolved)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	sum := sha256.Sum256([]byte(resolved))
	return stem + "-" + hex.EncodeToString(sum[:])[:8] + ext
}
