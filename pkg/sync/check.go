package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/docpull/docpull/pkg/config"
	"github.com/docpull/docpull/pkg/remote"
)

// CheckResult is one source's dry-run status: whether the stored import
// state still matches the remote head.
type CheckResult struct {
	SourceID   string
	Name       string
	UpToDate   bool
	Err        error
	Commit     string
	Message    string
	CommitAt   time.Time
	LastImport time.Time
}

// Check reports, without importing anything, which sources have remote
// changes pending. One ref resolution per source, no tree listing, no
// fetches. The state file's lastChecked timestamp is refreshed.
func (e *Engine) Check(ctx context.Context) ([]CheckResult, error) {
	st, err := LoadState(e.statePath())
	if err != nil {
		return nil, err
	}

	var out []CheckResult
	for _, id := range e.sourceIDs() {
		sc := e.Config.Sources[id]
		cr := CheckResult{SourceID: id, Name: e.Config.SourceName(id)}

		if rec, ok := st.Imports[e.Config.StateKeyFor(id)]; ok {
			cr.LastImport = rec.LastImportedAt
		}

		commit, err := e.resolveHead(ctx, sc)
		if err != nil {
			if ctx.Err() != nil {
				return out, err
			}
			cr.Err = err
			out = append(out, cr)
			continue
		}
		cr.Commit = commit.SHA
		cr.Message = commit.Message
		cr.CommitAt = commit.Date

		rec, ok := st.Imports[e.Config.StateKeyFor(id)]
		cr.UpToDate = ok && rec.LastCommit == commit.SHA && rec.Ref == sc.Ref
		out = append(out, cr)
	}

	st.LastChecked = e.now()
	if err := st.Save(e.statePath()); err != nil {
		e.Logger.Warn("saving state failed", "error", err)
	}
	return out, nil
}

func (e *Engine) resolveHead(ctx context.Context, sc config.SourceConfig) (*remote.Commit, error) {
	provider, src, err := e.providerFor(sc)
	if err != nil {
		return nil, err
	}
	return provider.ResolveRef(ctx, src, sc.Ref)
}

// Summary renders the result as one human-readable report line.
func (r CheckResult) Summary() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s: check failed: %v", r.Name, r.Err)
	case r.UpToDate:
		return fmt.Sprintf("%s: up to date (last imported %s)", r.Name, humanize.Time(r.LastImport))
	case r.LastImport.IsZero():
		return fmt.Sprintf("%s: never imported, latest is %q (%s)", r.Name, r.Message, humanize.Time(r.CommitAt))
	default:
		return fmt.Sprintf("%s: needs re-import, latest is %q (%s, last imported %s)",
			r.Name, r.Message, humanize.Time(r.CommitAt), humanize.Time(r.LastImport))
	}
}
