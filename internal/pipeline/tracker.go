package pipeline

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/github"
)

// Tracker remembers which pull request heads are being reviewed so a
// redelivered or repeated webhook does not start a second review of the
// same commit.
type Tracker struct {
	mu       sync.Mutex
	inFlight map[uint64]struct{}
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{inFlight: make(map[uint64]struct{})}
}

// Key identifies a review by repository, PR number and head commit.
func Key(ev *github.PullRequestEvent) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(ev.FullName())
	_, _ = d.WriteString("#")
	_, _ = d.WriteString(strconv.Itoa(ev.Number()))
	_, _ = d.WriteString("@")
	_, _ = d.WriteString(ev.HeadSHA())
	return d.Sum64()
}

// TryStart marks ev as in flight. It returns false if a review of the same
// head is already running.
func (t *Tracker) TryStart(ev *github.PullRequestEvent) bool {
	k := Key(ev)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inFlight[k]; ok {
		return false
	}
	t.inFlight[k] = struct{}{}
	return true
}

// Done clears the in-flight mark set by TryStart.
func (t *Tracker) Done(ev *github.PullRequestEvent) {
	k := Key(ev)
	t.mu.Lock()
	delete(t.inFlight, k)
	t.mu.Unlock()
}

// Len returns the number of reviews in flight.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inFlight)
}
