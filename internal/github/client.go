package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/buildinfo"
	"github.com/AbdelazizMoustafa10m/Kestrel/internal/review"
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"

	// DefaultTimeout bounds each HTTP request.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody bounds the response body carried by an APIError.
	maxErrorBody = 2048
)

// ErrMissingToken is returned by New when no token is given.
var ErrMissingToken = errors.New("github: token is required")

// APIError reports a non-2xx response. Body holds at most the first 2 KiB
// of the response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client calls the GitHub REST API with a single token. It is safe for
// concurrent use.
type Client struct {
	apiURL  string
	httpCli *http.Client
	rest    *gh.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIURL points the client at a different API root, such as a GitHub
// Enterprise Server "https://ghe.example.com/api/v3" or a test server.
// Hosts not starting with "api." get /api/v3/ appended.
func WithAPIURL(apiURL string) Option {
	return func(c *Client) {
		if apiURL != "" {
			c.apiURL = strings.TrimRight(apiURL, "/")
		}
	}
}

// WithHTTPClient replaces the default HTTP client (30s timeout).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpCli = h
		}
	}
}

// New creates a client authenticating with token.
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	c := &Client{
		apiURL:  DefaultAPIURL,
		httpCli: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	rest := gh.NewClient(c.httpCli).WithAuthToken(token)
	if c.apiURL != DefaultAPIURL {
		var err error
		rest, err = rest.WithEnterpriseURLs(c.apiURL, c.apiURL)
		if err != nil {
			return nil, fmt.Errorf("github: api url %q: %w", c.apiURL, err)
		}
	}
	rest.UserAgent = buildinfo.UserAgent()
	c.rest = rest
	return c, nil
}

// GetPRDiff fetches the unified diff of a pull request.
func (c *Client) GetPRDiff(ctx context.Context, owner, repo string, number int) (string, error) {
	diff, _, err := c.rest.PullRequests.GetRaw(ctx, owner, repo, number, gh.RawOptions{Type: gh.Diff})
	if err != nil {
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
		return "", fmt.Errorf("github: get diff for %s/%s#%d: %w",
			owner, repo, number, apiError(http.MethodGet, path, err))
	}
	return diff, nil
}

// PostedReview is the part of GitHub's response the caller logs.
type PostedReview struct {
	ID      int64
	HTMLURL string
}

// PostReview posts result as a COMMENT review on commitSHA, with every
// comment anchored to the right-hand side of the diff.
func (c *Client) PostReview(ctx context.Context, owner, repo string, number int, commitSHA string, result review.ReviewResult) (PostedReview, error) {
	req := &gh.PullRequestReviewRequest{
		CommitID: gh.Ptr(commitSHA),
		Body:     gh.Ptr(result.Summary),
		Event:    gh.Ptr("COMMENT"),
	}
	for _, rc := range result.Comments {
		req.Comments = append(req.Comments, &gh.DraftReviewComment{
			Path: gh.Ptr(rc.Path),
			Line: gh.Ptr(rc.Line),
			Side: gh.Ptr("RIGHT"),
			Body: gh.Ptr(rc.Body),
		})
	}

	created, resp, err := c.rest.PullRequests.CreateReview(ctx, owner, repo, number, req)
	if err != nil {
		// The review was created; an odd response body does not undo that.
		if resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return PostedReview{}, nil
		}
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", owner, repo, number)
		return PostedReview{}, fmt.Errorf("github: post review to %s/%s#%d: %w",
			owner, repo, number, apiError(http.MethodPost, path, err))
	}
	return PostedReview{ID: created.GetID(), HTMLURL: created.GetHTMLURL()}, nil
}

// apiError turns a go-github response error into *APIError carrying the
// raw response body. Transport and context errors pass through unchanged.
func apiError(method, path string, err error) error {
	var resp *http.Response
	var message string

	var errResp *gh.ErrorResponse
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	switch {
	case errors.As(err, &errResp):
		resp, message = errResp.Response, errResp.Message
	case errors.As(err, &rateErr):
		resp, message = rateErr.Response, rateErr.Message
	case errors.As(err, &abuseErr):
		resp, message = abuseErr.Response, abuseErr.Message
	}
	if resp == nil {
		return err
	}

	body := message
	if resp.Body != nil {
		// go-github re-populates the body after decoding the error.
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1)); readErr == nil && len(data) > 0 {
			body = string(data)
		}
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(body),
	}
}
