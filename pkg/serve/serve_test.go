package serve

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/docpull/docpull/pkg/config"
	docsync "github.com/docpull/docpull/pkg/sync"
)

const testSecret = "test-secret-key"

// recordingSyncer records SyncSource calls. When proceed is non-nil every
// call blocks until it is closed; started is closed on the first call.
type recordingSyncer struct {
	mu      sync.Mutex
	calls   []string
	started chan struct{}
	proceed chan struct{}
	once    sync.Once
}

func (r *recordingSyncer) SyncSource(ctx context.Context, id string) (*docsync.Result, error) {
	if r.started != nil {
		r.once.Do(func() { close(r.started) })
	}
	if r.proceed != nil {
		<-r.proceed
	}
	r.mu.Lock()
	r.calls = append(r.calls, id)
	r.mu.Unlock()
	return &docsync.Result{SourceID: id, Imported: 1}, nil
}

func (r *recordingSyncer) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func testConfig() *config.Config {
	return &config.Config{
		Project: config.ProjectConfig{Name: "handbook"},
		Sources: map[string]config.SourceConfig{
			"docs":  {Repo: "acme/widgets", Ref: "main", BasePath: "content/docs"},
			"blog":  {Repo: "acme/blog", Ref: "v2", BasePath: "content/blog"},
			"notes": {LocalDir: "vendor/notes", BasePath: "content/notes"},
		},
	}
}

func newTestServer(t *testing.T, syncer Syncer) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(testConfig(), syncer, "", []byte(testSecret), logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.Debounce = 5 * time.Millisecond
	return srv
}

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(srv *Server, event string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-Hub-Signature-256", signBody(body, testSecret))
	rec := httptest.NewRecorder()
	srv.handleWebhook(rec, req)
	return rec
}

func TestNewRequiresSecret(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for name, secret := range map[string][]byte{
		"empty":      nil,
		"whitespace": []byte("  \n"),
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := New(testConfig(), &recordingSyncer{}, "", secret, logger); err == nil {
				t.Fatal("New() accepted an empty secret")
			}
		})
	}
}

func TestVerifySignature(t *testing.T) {
	srv := newTestServer(t, &recordingSyncer{})
	body := []byte(`{"ref":"refs/heads/main"}`)

	tests := map[string]struct {
		body      []byte
		signature string
		want      bool
	}{
		"valid":          {body, signBody(body, testSecret), true},
		"wrong secret":   {body, signBody(body, "other"), false},
		"missing prefix": {body, "deadbeef", false},
		"empty":          {body, "", false},
		"wrong body":     {[]byte(`{"ref":"refs/heads/dev"}`), signBody(body, testSecret), false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := srv.verifySignature(tc.body, tc.signature); got != tc.want {
				t.Errorf("verifySignature() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRefMatches(t *testing.T) {
	tests := map[string]struct {
		configured string
		eventRef   string
		want       bool
	}{
		"branch":       {"main", "refs/heads/main", true},
		"other branch": {"main", "refs/heads/dev", false},
		"tag":          {"v2", "refs/tags/v2", true},
		"bare ref":     {"main", "main", true},
		"tag vs head":  {"v2", "refs/heads/v2", true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := refMatches(tc.configured, tc.eventRef); got != tc.want {
				t.Errorf("refMatches(%q, %q) = %v, want %v", tc.configured, tc.eventRef, got, tc.want)
			}
		})
	}
}

func TestHandleWebhookRejects(t *testing.T) {
	srv := newTestServer(t, &recordingSyncer{})
	body := []byte(`{"ref":"refs/heads/main"}`)

	t.Run("non-POST", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})

	t.Run("wrong content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-GitHub-Event", "push")
		req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
		rec := httptest.NewRecorder()
		srv.handleWebhook(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("invalid payload", func(t *testing.T) {
		if rec := postWebhook(srv, "push", []byte("not json")); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestHandleWebhookPing(t *testing.T) {
	syncer := &recordingSyncer{}
	srv := newTestServer(t, syncer)

	rec := postWebhook(srv, "ping", []byte(`{"zen":"Keep it logically awesome."}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("pong")) {
		t.Errorf("body = %q, want pong", rec.Body.String())
	}

	time.Sleep(50 * time.Millisecond)
	if calls := syncer.recorded(); len(calls) != 0 {
		t.Errorf("ping triggered syncs: %v", calls)
	}
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	syncer := &recordingSyncer{}
	srv := newTestServer(t, syncer)

	rec := postWebhook(srv, "issues", []byte(`{"action":"opened"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("event ignored")) {
		t.Errorf("body = %q", rec.Body.String())
	}

	time.Sleep(50 * time.Millisecond)
	if calls := syncer.recorded(); len(calls) != 0 {
		t.Errorf("ignored event triggered syncs: %v", calls)
	}
}

func TestHandleWebhookUnmatchedPush(t *testing.T) {
	syncer := &recordingSyncer{}
	srv := newTestServer(t, syncer)

	tests := map[string]string{
		"unknown repo": `{"ref":"refs/heads/main","repository":{"full_name":"someone/else"}}`,
		"wrong ref":    `{"ref":"refs/heads/dev","repository":{"full_name":"acme/widgets"}}`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := postWebhook(srv, "push", []byte(body))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if !bytes.Contains(rec.Body.Bytes(), []byte("no matching source")) {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}

	time.Sleep(50 * time.Millisecond)
	if calls := syncer.recorded(); len(calls) != 0 {
		t.Errorf("unmatched pushes triggered syncs: %v", calls)
	}
}

func TestHandleWebhookDebouncesPushes(t *testing.T) {
	syncer := &recordingSyncer{}
	srv := newTestServer(t, syncer)

	body := []byte(`{"ref":"refs/heads/main","after":"abc123","repository":{"full_name":"acme/widgets"}}`)
	for i := 0; i < 3; i++ {
		if rec := postWebhook(srv, "push", body); rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	}

	time.Sleep(100 * time.Millisecond)
	if calls := syncer.recorded(); len(calls) != 1 || calls[0] != "docs" {
		t.Errorf("calls = %v, want exactly one docs sync", calls)
	}
}

func TestHandleWebhookSyncsEveryMatchedSource(t *testing.T) {
	syncer := &recordingSyncer{}
	srv := newTestServer(t, syncer)

	postWebhook(srv, "push", []byte(`{"ref":"refs/heads/main","repository":{"full_name":"acme/widgets"}}`))
	postWebhook(srv, "push", []byte(`{"ref":"refs/tags/v2","repository":{"full_name":"acme/blog"}}`))

	time.Sleep(100 * time.Millisecond)
	calls := syncer.recorded()
	if len(calls) != 2 || calls[0] != "blog" || calls[1] != "docs" {
		t.Errorf("calls = %v, want [blog docs]", calls)
	}
}

func TestRunSyncSingleFlight(t *testing.T) {
	syncer := &recordingSyncer{
		started: make(chan struct{}),
		proceed: make(chan struct{}),
	}
	srv := newTestServer(t, syncer)

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.runSync(map[string]bool{"docs": true})
	}()
	<-syncer.started

	// These arrive mid-run: they must queue, not start a second runner.
	srv.runSync(map[string]bool{"blog": true})
	srv.runSync(map[string]bool{"blog": true, "docs": true})

	srv.syncMu.Lock()
	queued := len(srv.queued)
	srv.syncMu.Unlock()
	if queued != 2 {
		t.Errorf("queued = %d ids, want 2", queued)
	}

	close(syncer.proceed)
	<-done

	calls := syncer.recorded()
	want := []string{"docs", "blog", "docs"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}

	srv.syncMu.Lock()
	defer srv.syncMu.Unlock()
	if srv.running || len(srv.queued) != 0 {
		t.Errorf("running = %v, queued = %v after drain", srv.running, srv.queued)
	}
}

func TestListenAndServeRunsInitialSync(t *testing.T) {
	syncer := &recordingSyncer{}
	srv := newTestServer(t, syncer)
	srv.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := srv.ListenAndServe(ctx); err != nil {
		t.Fatalf("ListenAndServe() error = %v", err)
	}

	calls := syncer.recorded()
	if len(calls) != 3 {
		t.Fatalf("initial sync calls = %v, want all three sources", calls)
	}
	for i, want := range []string{"blog", "docs", "notes"} {
		if calls[i] != want {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want)
		}
	}
}
