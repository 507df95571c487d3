package github

import (
	"fmt"

	gh "github.com/google/go-github/v68/github"
)

// Webhook header names sent by GitHub.
const (
	HeaderEvent     = gh.EventTypeHeader
	HeaderDelivery  = gh.DeliveryIDHeader
	HeaderSignature = gh.SHA256SignatureHeader

	// HeaderToken lets the sender supply the token used for the review,
	// overriding the configured GITHUB_TOKEN.
	HeaderToken = "X-GitHub-Token"
)

// EventPullRequest is the X-GitHub-Event value handled by the webhook.
const EventPullRequest = "pull_request"

// PullRequestEvent is a pull_request webhook delivery.
type PullRequestEvent struct {
	Payload *gh.PullRequestEvent

	// DeliveryID is copied from the X-GitHub-Delivery header; it is not
	// part of the JSON body.
	DeliveryID string
}

// ParsePullRequestEvent decodes a pull_request payload.
func ParsePullRequestEvent(body []byte) (*PullRequestEvent, error) {
	parsed, err := gh.ParseWebHook(EventPullRequest, body)
	if err != nil {
		return nil, fmt.Errorf("github: decoding pull_request payload: %w", err)
	}
	payload, ok := parsed.(*gh.PullRequestEvent)
	if !ok {
		return nil, fmt.Errorf("github: decoding pull_request payload: unexpected type %T", parsed)
	}
	return &PullRequestEvent{Payload: payload}, nil
}

// Action returns the pull_request action, e.g. "opened".
func (e *PullRequestEvent) Action() string { return e.Payload.GetAction() }

// SenderLogin returns the login of the account that triggered the event.
func (e *PullRequestEvent) SenderLogin() string { return e.Payload.GetSender().GetLogin() }

// Owner returns the login of the repository owner.
func (e *PullRequestEvent) Owner() string { return e.Payload.GetRepo().GetOwner().GetLogin() }

// Repo returns the repository name without its owner.
func (e *PullRequestEvent) Repo() string { return e.Payload.GetRepo().GetName() }

// FullName returns "owner/repo", built from the owner and name fields so
// it matches the values used for API calls.
func (e *PullRequestEvent) FullName() string {
	return e.Owner() + "/" + e.Repo()
}

// Number returns the pull request number, or 0 when it is missing.
func (e *PullRequestEvent) Number() int { return e.Payload.GetPullRequest().GetNumber() }

// HeadSHA returns the commit the review is anchored to.
func (e *PullRequestEvent) HeadSHA() string { return e.Payload.GetPullRequest().GetHead().GetSHA() }

// HeadRef returns the branch name of the pull request head.
func (e *PullRequestEvent) HeadRef() string { return e.Payload.GetPullRequest().GetHead().GetRef() }

// CloneURL returns the clone URL of the head repository, which differs
// from the base repository for pull requests opened from a fork.
func (e *PullRequestEvent) CloneURL() string {
	return e.Payload.GetPullRequest().GetHead().GetRepo().GetCloneURL()
}

// Label identifies the pull request in logs, e.g. "acme/widgets#7".
func (e *PullRequestEvent) Label() string {
	return fmt.Sprintf("%s#%d", e.FullName(), e.Number())
}
