// Package project owns the project-root conventions: locating the
// manifest, keeping configured paths inside the root, and the write
// primitives the engine uses.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docpull/docpull/pkg/config"
)

const ManifestFile = config.ManifestFileName

// StateDir is the directory under the project root that holds the sync
// state, cache tags, and store records.
const StateDir = ".docpull"

// GitignoreEntries are the files docpull maintains that should not be
// committed.
var GitignoreEntries = []string{
	StateDir + "/",
	"docpull.local.toml",
}

// InferName derives a project name from the given directory path.
func InferName(dir string) string {
	return filepath.Base(dir)
}

// Init creates a docpull.toml manifest in dir with the given project name
// and one example source. Returns an error if the manifest already exists.
func Init(dir, name, repo, ref string) error {
	path := filepath.Join(dir, ManifestFile)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", ManifestFile)
	}

	cfg := &config.Config{
		Project: config.ProjectConfig{Name: name},
		Sources: map[string]config.SourceConfig{},
	}
	if repo != "" {
		cfg.Sources["docs"] = config.SourceConfig{
			Repo:      repo,
			Ref:       ref,
			AssetsDir: "assets",
			Rules: []config.RuleConfig{
				{Pattern: "docs/**/*.md", BasePath: "content"},
			},
		}
	}

	if err := config.SaveFile(path, cfg); err != nil {
		return err
	}

	return nil
}

// Resolve joins a configured relative path onto the project root, refusing
// anything that would escape it. Every base and assets directory goes
// through here before any file is read or written.
func Resolve(root, rel string) (string, error) {
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("path %q must be relative to the project root", rel)
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	joined := filepath.Join(rootAbs, filepath.FromSlash(rel))

	contained, err := filepath.Rel(rootAbs, joined)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", rel, err)
	}
	if contained == ".." || strings.HasPrefix(contained, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the project root", rel)
	}
	return joined, nil
}

// WriteFileAtomic writes data through a temp file in the destination
// directory and renames it into place, so a crash mid-write never leaves a
// half-written file at the final path.
func WriteFileAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".docpull-tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// EnsureGitignore ensures that each entry appears somewhere in the .gitignore
// file within dir. Only entries not already present are appended. Returns the
// list of entries that were actually added.
func EnsureGitignore(dir string, entries []string) ([]string, error) {
	path := filepath.Join(dir, ".gitignore")

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var toAdd []string
	for _, entry := range entries {
		if !present[entry] {
			toAdd = append(toAdd, entry)
		}
	}

	if len(toAdd) == 0 {
		return nil, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	// Ensure we start on a new line if file doesn't end with one.
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return nil, err
		}
	}

	for _, entry := range toAdd {
		if _, err := f.WriteString(entry + "\n"); err != nil {
			return nil, err
		}
	}

	return toAdd, nil
}
