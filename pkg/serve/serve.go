// Package serve runs the docpull webhook daemon. It listens for GitHub
// push events, verifies their signatures, and re-imports the sources that
// pull from the pushed repository.
package serve

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docpull/docpull/pkg/config"
	docsync "github.com/docpull/docpull/pkg/sync"
)

const (
	// DefaultAddr is the default listen address for the webhook server.
	DefaultAddr = "127.0.0.1:19513"
	// DefaultDebounce is how long the server waits after a push before
	// syncing, so a burst of pushes collapses into one run.
	DefaultDebounce = 2 * time.Second
)

// Syncer imports a single configured source. *sync.Engine implements it.
type Syncer interface {
	SyncSource(ctx context.Context, id string) (*docsync.Result, error)
}

// PushEvent carries the fields of a GitHub push webhook the server acts on.
type PushEvent struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// Server is the webhook HTTP server. Accepted pushes are debounced and
// then fed to the syncer with single-flight semantics: at most one run is
// in progress, and pushes received mid-run queue exactly one follow-up.
type Server struct {
	Addr     string
	Debounce time.Duration

	cfg    *config.Config
	syncer Syncer
	logger *slog.Logger
	secret []byte

	// byRepo maps "owner/name" to the source ids importing from it.
	byRepo map[string][]string

	debounceMu sync.Mutex
	timer      *time.Timer
	due        map[string]bool

	syncMu  sync.Mutex
	running bool
	queued  map[string]bool

	// runCtx is the lifetime of ListenAndServe; debounced runs use it so
	// shutdown cancels an in-flight sync.
	runCtx context.Context
}

// New creates a webhook server for the configured sources. The secret is
// required: unsigned webhook endpoints are not supported.
func New(cfg *config.Config, syncer Syncer, addr string, secret []byte, logger *slog.Logger) (*Server, error) {
	secret = []byte(strings.TrimSpace(string(secret)))
	if len(secret) == 0 {
		return nil, fmt.Errorf("webhook secret is empty")
	}
	if addr == "" {
		addr = DefaultAddr
	}

	byRepo := make(map[string][]string)
	for id, src := range cfg.Sources {
		if src.Repo != "" {
			byRepo[src.Repo] = append(byRepo[src.Repo], id)
		}
	}

	return &Server{
		Addr:     addr,
		Debounce: DefaultDebounce,
		cfg:      cfg,
		syncer:   syncer,
		logger:   logger,
		secret:   secret,
		byRepo:   byRepo,
		due:      make(map[string]bool),
		queued:   make(map[string]bool),
		runCtx:   context.Background(),
	}, nil
}

// ListenAndServe imports every source once, then serves webhooks until ctx
// is cancelled. It returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.runCtx = ctx

	s.logger.Info("running initial sync before accepting webhooks")
	s.runSync(s.allSources())

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebhook)

	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server listening", "addr", s.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down webhook server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/json" {
		s.logger.Warn("rejecting webhook with unexpected content type", "content_type", ct)
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.logger.Error("reading webhook body failed", "error", err)
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}

	if !s.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		s.logger.Warn("rejecting webhook with invalid signature")
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	switch event := r.Header.Get("X-GitHub-Event"); event {
	case "push":
	case "ping":
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "pong")
		return
	default:
		s.logger.Info("ignoring webhook event", "event", event)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "event ignored")
		return
	}

	var push PushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		s.logger.Error("parsing webhook payload failed", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	ids := s.match(push)
	if len(ids) == 0 {
		s.logger.Info("push does not match a configured source",
			"repo", push.Repository.FullName, "ref", push.Ref)
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "no matching source")
		return
	}

	s.logger.Info("push accepted",
		"repo", push.Repository.FullName,
		"ref", push.Ref,
		"commit", push.After,
		"sources", ids)
	s.schedule(ids)

	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "sync scheduled")
}

// match returns the source ids whose repo and ref the push touches.
func (s *Server) match(push PushEvent) []string {
	var ids []string
	for _, id := range s.byRepo[push.Repository.FullName] {
		if refMatches(s.cfg.Sources[id].Ref, push.Ref) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// verifySignature checks the X-Hub-Signature-256 HMAC against the body.
func (s *Server) verifySignature(body []byte, signature string) bool {
	sig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(sig), []byte(expected))
}

// schedule adds ids to the due set and re-arms the debounce timer.
func (s *Server) schedule(ids []string) {
	s.debounceMu.Lock()
	defer s.debounceMu.Unlock()

	for _, id := range ids {
		s.due[id] = true
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.Debounce, s.flush)
}

func (s *Server) flush() {
	s.debounceMu.Lock()
	due := s.due
	s.due = make(map[string]bool)
	s.debounceMu.Unlock()

	if len(due) > 0 {
		s.runSync(due)
	}
}

// runSync imports the given sources. If a run is already in progress the
// ids are queued and serviced by exactly one follow-up run; per-source
// failures are logged and never stop the daemon.
func (s *Server) runSync(ids map[string]bool) {
	s.syncMu.Lock()
	if s.running {
		for id := range ids {
			s.queued[id] = true
		}
		s.syncMu.Unlock()
		s.logger.Info("sync already in progress, queuing re-run")
		return
	}
	s.running = true
	s.syncMu.Unlock()

	for {
		for _, id := range sortedIDs(ids) {
			res, err := s.syncer.SyncSource(s.runCtx, id)
			if err != nil {
				s.logger.Error("sync failed", "source", id, "error", err)
				continue
			}
			s.logger.Info("sync finished",
				"source", id,
				"imported", res.Imported,
				"unchanged", res.Unchanged,
				"failed", res.Failed,
				"deleted", res.Deleted)
		}

		// Atomically hand over to ids queued while we were running, or
		// release the slot when there are none.
		s.syncMu.Lock()
		if len(s.queued) == 0 {
			s.running = false
			s.syncMu.Unlock()
			return
		}
		ids = s.queued
		s.queued = make(map[string]bool)
		s.syncMu.Unlock()

		s.logger.Info("re-running sync for pushes received mid-run")
	}
}

func (s *Server) allSources() map[string]bool {
	ids := make(map[string]bool, len(s.cfg.Sources))
	for id := range s.cfg.Sources {
		ids[id] = true
	}
	return ids
}

// refMatches reports whether a push to eventRef affects a source pinned to
// the configured ref. GitHub sends fully qualified refs.
func refMatches(configured, eventRef string) bool {
	if name, ok := strings.CutPrefix(eventRef, "refs/heads/"); ok {
		return name == configured
	}
	if name, ok := strings.CutPrefix(eventRef, "refs/tags/"); ok {
		return name == configured
	}
	return eventRef == configured
}

func sortedIDs(ids map[string]bool) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
