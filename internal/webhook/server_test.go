package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/config"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/github"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/pipeline"
)

const testSecret = "s3cret"

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type dispatched struct {
	Event *github.PullRequestEvent
	Token string
}

type fakeDispatcher struct {
	mu       sync.Mutex
	calls    []dispatched
	err      error
	shutdown int
}

func (f *fakeDispatcher) Dispatch(ev *github.PullRequestEvent, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, dispatched{Event: ev, Token: token})
	return nil
}

func (f *fakeDispatcher) Shutdown(context.Context) error {
	f.mu.Lock()
	f.shutdown++
	f.mu.Unlock()
	return nil
}

func (f *fakeDispatcher) Calls() []dispatched {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatched(nil), f.calls...)
}

func testServerConfig() config.ServerConfig {
	cfg := config.NewDefaults().Server
	cfg.WebhookSecret = testSecret
	return cfg
}

func payload(action, sender string, number any) string {
	num := "null"
	if number != nil {
		num = fmt.Sprint(number)
	}
	return fmt.Sprintf(`{
  "action": %q,
  "pull_request": {
    "number": %s,
    "head": {"ref": "feature", "sha": "abc123", "repo": {"clone_url": "https://github.com/acme/widgets.git"}}
  },
  "repository": {"name": "widgets", "owner": {"login": "acme"}},
  "sender": {"login": %q}
}`, action, num, sender)
}

type delivery struct {
	event     string
	body      string
	signature string // "" means sign with testSecret; "-" means omit
	token     string
	id        string
}

func send(t *testing.T, srv *Server, d delivery) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(d.body))
	req.Header.Set("Content-Type", "application/json")
	if d.event != "" {
		req.Header.Set(github.HeaderEvent, d.event)
	}
	switch d.signature {
	case "":
		req.Header.Set(github.HeaderSignature, sign([]byte(testSecret), []byte(d.body)))
	case "-":
	default:
		req.Header.Set(github.HeaderSignature, d.signature)
	}
	if d.token != "" {
		req.Header.Set(github.HeaderToken, d.token)
	}
	if d.id != "" {
		req.Header.Set(github.HeaderDelivery, d.id)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// ---------------------------------------------------------------------------
// /health
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := New(testServerConfig(), &fakeDispatcher{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

// ---------------------------------------------------------------------------
// /webhook
// ---------------------------------------------------------------------------

func TestWebhook_QueuesReview(t *testing.T) {
	t.Parallel()

	d := &fakeDispatcher{}
	srv := New(testServerConfig(), d)

	rec := send(t, srv, delivery{
		event: "pull_request",
		body:  payload("opened", "octocat", 7),
		token: "ghs_header",
		id:    "guid-1",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"queued","pr":7}`, rec.Body.String())

	calls := d.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "ghs_header", calls[0].Token)
	assert.Equal(t, "acme/widgets#7", calls[0].Event.Label())
	assert.Equal(t, "abc123", calls[0].Event.HeadSHA())
	assert.Equal(t, "guid-1", calls[0].Event.DeliveryID)
}

func TestWebhook_FallsBackToConfiguredToken(t *testing.T) {
	t.Parallel()

	cfg := testServerConfig()
	cfg.GitHubToken = "ghs_config"
	d := &fakeDispatcher{}
	srv := New(cfg, d)

	rec := send(t, srv, delivery{event: "pull_request", body: payload("synchronize", "octocat", 3)})
	require.Equal(t, http.StatusAccepted, rec.Code)

	calls := d.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "ghs_config", calls[0].Token)
	assert.NotEmpty(t, calls[0].Event.DeliveryID, "a delivery id is generated when the header is absent")
}

func TestWebhook_Rejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		d       delivery
		status  int
		message string
	}{
		{
			name:    "missing signature",
			d:       delivery{event: "pull_request", body: payload("opened", "octocat", 1), signature: "-", token: "t"},
			status:  http.StatusForbidden,
			message: "Missing signature header",
		},
		{
			name:    "wrong prefix",
			d:       delivery{event: "pull_request", body: payload("opened", "octocat", 1), signature: "sha1=abcd", token: "t"},
			status:  http.StatusForbidden,
			message: "Invalid signature format",
		},
		{
			name:    "wrong digest",
			d:       delivery{event: "pull_request", body: payload("opened", "octocat", 1), signature: sign([]byte("other"), []byte("x")), token: "t"},
			status:  http.StatusForbidden,
			message: "Invalid signature",
		},
		{
			name:    "missing token",
			d:       delivery{event: "pull_request", body: payload("opened", "octocat", 1)},
			status:  http.StatusBadRequest,
			message: "Missing X-GitHub-Token header",
		},
		{
			name:    "missing number",
			d:       delivery{event: "pull_request", body: payload("opened", "octocat", nil), token: "t"},
			status:  http.StatusBadRequest,
			message: "Missing pull_request.number",
		},
		{
			name:    "zero number",
			d:       delivery{event: "pull_request", body: payload("opened", "octocat", 0), token: "t"},
			status:  http.StatusBadRequest,
			message: "Missing pull_request.number",
		},
		{
			name:    "malformed json",
			d:       delivery{event: "pull_request", body: `{"action":`, token: "t"},
			status:  http.StatusBadRequest,
			message: "Invalid JSON payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := &fakeDispatcher{}
			srv := New(testServerConfig(), d)
			rec := send(t, srv, tt.d)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeBody(t, rec)["message"])
			assert.Empty(t, d.Calls())
		})
	}
}

func TestWebhook_Ignored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		d      delivery
		reason string
	}{
		{
			name:   "other event",
			d:      delivery{event: "push", body: `{"ref":"main"}`, token: "t"},
			reason: "not a pull_request event",
		},
		{
			name:   "no event header",
			d:      delivery{body: `{}`, token: "t"},
			reason: "not a pull_request event",
		},
		{
			name:   "closed action",
			d:      delivery{event: "pull_request", body: payload("closed", "octocat", 1), token: "t"},
			reason: "action 'closed' not handled",
		},
		{
			name:   "bot sender",
			d:      delivery{event: "pull_request", body: payload("opened", "github-actions[bot]", 1), token: "t"},
			reason: "bot PR excluded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := &fakeDispatcher{}
			srv := New(testServerConfig(), d)
			rec := send(t, srv, tt.d)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, map[string]any{"status": "ignored", "reason": tt.reason}, decodeBody(t, rec))
			assert.Empty(t, d.Calls())
		})
	}
}

func TestWebhook_SignatureCheckedBeforeEventFilter(t *testing.T) {
	t.Parallel()

	srv := New(testServerConfig(), &fakeDispatcher{})
	rec := send(t, srv, delivery{event: "push", body: `{}`, signature: "-"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhook_ConfiguredActionsAndBot(t *testing.T) {
	t.Parallel()

	cfg := testServerConfig()
	cfg.Actions = []string{"reopened"}
	cfg.BotUsername = "kestrel[bot]"
	d := &fakeDispatcher{}
	srv := New(cfg, d)

	rec := send(t, srv, delivery{event: "pull_request", body: payload("opened", "octocat", 1), token: "t"})
	assert.Equal(t, "action 'opened' not handled", decodeBody(t, rec)["reason"])

	rec = send(t, srv, delivery{event: "pull_request", body: payload("reopened", "kestrel[bot]", 1), token: "t"})
	assert.Equal(t, "bot PR excluded", decodeBody(t, rec)["reason"])

	rec = send(t, srv, delivery{event: "pull_request", body: payload("reopened", "github-actions[bot]", 1), token: "t"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, d.Calls(), 1)
}

func TestWebhook_EmptySecret(t *testing.T) {
	t.Parallel()

	t.Run("rejects everything by default", func(t *testing.T) {
		t.Parallel()

		cfg := testServerConfig()
		cfg.WebhookSecret = ""
		srv := New(cfg, &fakeDispatcher{})

		rec := send(t, srv, delivery{event: "pull_request", body: payload("opened", "octocat", 1), token: "t"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Webhook secret not configured", decodeBody(t, rec)["message"])
	})

	t.Run("allow_unsigned skips verification", func(t *testing.T) {
		t.Parallel()

		cfg := testServerConfig()
		cfg.WebhookSecret = ""
		cfg.AllowUnsigned = true
		d := &fakeDispatcher{}
		srv := New(cfg, d)

		rec := send(t, srv, delivery{event: "pull_request", body: payload("opened", "octocat", 1), signature: "-", token: "t"})
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Len(t, d.Calls(), 1)
	})

	t.Run("allow_unsigned ignored when a secret is set", func(t *testing.T) {
		t.Parallel()

		cfg := testServerConfig()
		cfg.AllowUnsigned = true
		srv := New(cfg, &fakeDispatcher{})

		rec := send(t, srv, delivery{event: "pull_request", body: payload("opened", "octocat", 1), signature: "-", token: "t"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestWebhook_DispatchOutcomes(t *testing.T) {
	t.Parallel()

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()

		srv := New(testServerConfig(), &fakeDispatcher{err: pipeline.ErrDuplicate})
		rec := send(t, srv, delivery{event: "pull_request", body: payload("synchronize", "octocat", 4), token: "t"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ignored","reason":"review already in progress"}`, rec.Body.String())
	})

	t.Run("shutting down", func(t *testing.T) {
		t.Parallel()

		srv := New(testServerConfig(), &fakeDispatcher{err: pipeline.ErrShuttingDown})
		rec := send(t, srv, delivery{event: "pull_request", body: payload("opened", "octocat", 4), token: "t"})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestWebhook_DuplicateDeliveriesWithRealDispatcher(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	proc := processorFunc(func(ctx context.Context, _ *github.PullRequestEvent, _ string) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})
	d := pipeline.NewDispatcher(proc, nil)
	srv := New(testServerConfig(), d)

	body := payload("synchronize", "octocat", 11)
	first := send(t, srv, delivery{event: "pull_request", body: body, token: "t"})
	second := send(t, srv, delivery{event: "pull_request", body: body, token: "t"})

	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "review already in progress", decodeBody(t, second)["reason"])

	close(release)
	require.NoError(t, d.Shutdown(context.Background()))
}

type processorFunc func(ctx context.Context, ev *github.PullRequestEvent, token string) error

func (f processorFunc) Process(ctx context.Context, ev *github.PullRequestEvent, token string) error {
	return f(ctx, ev, token)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestRun_ServesUntilCancelled(t *testing.T) {
	t.Parallel()

	cfg := testServerConfig()
	cfg.Listen = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	d := &fakeDispatcher{}
	srv := New(cfg, d)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, d.shutdown)
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()

	cfg := testServerConfig()
	cfg.Listen = "256.0.0.1:bad"
	srv := New(cfg, &fakeDispatcher{})

	err := srv.Run(context.Background())
	assert.ErrorContains(t, err, "webhook: serve")
}
