package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/review"
)

// recordedRequest captures what the fake API server received.
type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// fakeAPI starts an httptest server that records each request and replies
// with status and body.
func fakeAPI(t *testing.T, status int, body string) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, recordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: data})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New("ghs_test", WithAPIURL(srv.URL+"/"))
	require.NoError(t, err)
	return c
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New("")
	assert.ErrorIs(t, err, ErrMissingToken)

	c, err := New("tok")
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, c.apiURL)
	assert.Equal(t, DefaultTimeout, c.httpCli.Timeout)
	assert.Equal(t, "https://api.github.com/", c.rest.BaseURL.String())
	assert.True(t, strings.HasPrefix(c.rest.UserAgent, "kestrel/"))

	custom := &http.Client{Timeout: time.Second}
	c, err = New("tok", WithAPIURL("https://ghe.example.com/api/v3/"), WithHTTPClient(custom), WithAPIURL(""))
	require.NoError(t, err)
	assert.Equal(t, "https://ghe.example.com/api/v3", c.apiURL)
	assert.Equal(t, "https://ghe.example.com/api/v3/", c.rest.BaseURL.String())
	assert.Same(t, custom, c.httpCli)
}

func TestNew_EnterpriseHostGetsAPIPrefix(t *testing.T) {
	t.Parallel()

	c, err := New("tok", WithAPIURL("https://ghe.example.com"))
	require.NoError(t, err)
	assert.Equal(t, "https://ghe.example.com/api/v3/", c.rest.BaseURL.String())
}

func TestNew_InvalidAPIURL(t *testing.T) {
	t.Parallel()

	_, err := New("tok", WithAPIURL("://bad"))
	assert.ErrorContains(t, err, "api url")
}

// ---------------------------------------------------------------------------
// GetPRDiff
// ---------------------------------------------------------------------------

func TestGetPRDiff(t *testing.T) {
	t.Parallel()
	const diff = "diff --git a/x.go b/x.go\n+line\n"
	srv, requests := fakeAPI(t, http.StatusOK, diff)

	got, err := newTestClient(t, srv).GetPRDiff(context.Background(), "acme", "widgets", 42)
	require.NoError(t, err)
	assert.Equal(t, diff, got)

	reqs := requests()
	require.Len(t, reqs, 1)
	r := reqs[0]
	assert.Equal(t, http.MethodGet, r.Method)
	assert.Equal(t, "/api/v3/repos/acme/widgets/pulls/42", r.Path)
	assert.Equal(t, "application/vnd.github.v3.diff", r.Header.Get("Accept"))
	assert.Equal(t, "Bearer ghs_test", r.Header.Get("Authorization"))
	assert.NotEmpty(t, r.Header.Get("X-GitHub-Api-Version"))
	assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "kestrel/"))
}

func TestGetPRDiff_APIError(t *testing.T) {
	t.Parallel()
	srv, _ := fakeAPI(t, http.StatusNotFound, `{"message":"Not Found"}`)

	_, err := newTestClient(t, srv).GetPRDiff(context.Background(), "acme", "widgets", 7)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, `{"message":"Not Found"}`, apiErr.Body)
	assert.Contains(t, err.Error(), "acme/widgets#7")
	assert.NotContains(t, err.Error(), "ghs_test")
}

func TestGetPRDiff_TruncatesErrorBody(t *testing.T) {
	t.Parallel()
	srv, _ := fakeAPI(t, http.StatusBadGateway, strings.Repeat("x", 10000))

	_, err := newTestClient(t, srv).GetPRDiff(context.Background(), "a", "b", 1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Len(t, apiErr.Body, maxErrorBody+len("..."))
}

func TestGetPRDiff_ContextCancelled(t *testing.T) {
	t.Parallel()
	srv, _ := fakeAPI(t, http.StatusOK, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, srv).GetPRDiff(ctx, "a", "b", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

// ---------------------------------------------------------------------------
// PostReview
// ---------------------------------------------------------------------------

func TestPostReview(t *testing.T) {
	t.Parallel()
	srv, requests := fakeAPI(t, http.StatusOK, `{"id":99,"html_url":"https://github.com/acme/widgets/pull/42#pullrequestreview-99"}`)

	result := review.ReviewResult{
		Summary: "Two things.",
		Comments: []review.ReviewComment{
			{Path: "x.go", Line: 3, Body: "nil check"},
			{Path: "y.go", Line: 10, Body: "typo"},
		},
	}
	posted, err := newTestClient(t, srv).PostReview(context.Background(), "acme", "widgets", 42, "abc123", result)
	require.NoError(t, err)
	assert.Equal(t, int64(99), posted.ID)
	assert.Contains(t, posted.HTMLURL, "pullrequestreview-99")

	reqs := requests()
	require.Len(t, reqs, 1)
	r := reqs[0]
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "/api/v3/repos/acme/widgets/pulls/42/reviews", r.Path)
	assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer ghs_test", r.Header.Get("Authorization"))
	assert.JSONEq(t, `{
		"commit_id": "abc123",
		"body": "Two things.",
		"event": "COMMENT",
		"comments": [
			{"path": "x.go", "line": 3, "side": "RIGHT", "body": "nil check"},
			{"path": "y.go", "line": 10, "side": "RIGHT", "body": "typo"}
		]
	}`, string(r.Body))
}

func TestPostReview_NoCommentsPostsSummaryOnly(t *testing.T) {
	t.Parallel()
	srv, requests := fakeAPI(t, http.StatusOK, `{}`)

	_, err := newTestClient(t, srv).PostReview(context.Background(), "a", "b", 1, "sha",
		review.ReviewResult{Summary: "LGTM", Comments: nil})
	require.NoError(t, err)

	var sent map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(requests()[0].Body, &sent))
	assert.JSONEq(t, `"LGTM"`, string(sent["body"]))
	assert.JSONEq(t, `"COMMENT"`, string(sent["event"]))
	assert.NotContains(t, sent, "comments")
}

func TestPostReview_Rejected(t *testing.T) {
	t.Parallel()
	srv, _ := fakeAPI(t, http.StatusUnprocessableEntity, `{"message":"Line could not be resolved"}`)

	_, err := newTestClient(t, srv).PostReview(context.Background(), "a", "b", 1, "sha",
		review.ReviewResult{Summary: "s", Comments: []review.ReviewComment{{Path: "x", Line: 999, Body: "b"}}})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "could not be resolved")
	assert.Equal(t, http.MethodPost, apiErr.Method)
	assert.Equal(t, "/repos/a/b/pulls/1/reviews", apiErr.Path)
}

func TestPostReview_OddResponseBodyStillSucceeds(t *testing.T) {
	t.Parallel()
	srv, _ := fakeAPI(t, http.StatusCreated, "not json")

	posted, err := newTestClient(t, srv).PostReview(context.Background(), "a", "b", 1, "sha",
		review.ReviewResult{Summary: "s"})
	require.NoError(t, err)
	assert.Zero(t, posted.ID)
}
