// Package janitor periodically removes review checkouts that outlived the
// process that created them.
package janitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
)

// Janitor sweeps stale work directories on a schedule.
type Janitor struct {
	root       string
	prefix     string
	staleAfter time.Duration
	interval   time.Duration
	logger     *log.Logger
	now        func() time.Time

	scheduler gocron.Scheduler
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithLogger attaches a logger.
func WithLogger(logger *log.Logger) Option {
	return func(j *Janitor) {
		j.logger = logger
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		j.now = now
	}
}

// New creates a Janitor for directories named prefix* directly under root.
// An empty root means os.TempDir().
func New(root, prefix string, staleAfter, interval time.Duration, opts ...Option) *Janitor {
	if root == "" {
		root = os.TempDir()
	}
	j := &Janitor{
		root:       root,
		prefix:     prefix,
		staleAfter: staleAfter,
		interval:   interval,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start schedules a sweep every interval, the first one immediately.
func (j *Janitor) Start() error {
	if j.interval <= 0 {
		return fmt.Errorf("janitor: interval must be positive, got %s", j.interval)
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("janitor: creating scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(j.sweep),
		gocron.WithName("sweep-work-dirs"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("janitor: scheduling sweep: %w", err)
	}

	s.Start()
	j.scheduler = s
	if j.logger != nil {
		j.logger.Debug("janitor started",
			"root", j.root,
			"interval", j.interval,
			"stale_after", j.staleAfter,
		)
	}
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep to finish.
func (j *Janitor) Stop() error {
	if j.scheduler == nil {
		return nil
	}
	s := j.scheduler
	j.scheduler = nil
	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("janitor: stopping scheduler: %w", err)
	}
	return nil
}

func (j *Janitor) sweep() {
	removed, err := j.SweepOnce()
	if j.logger == nil {
		return
	}
	if len(removed) > 0 {
		j.logger.Info("removed stale work directories", "count", len(removed))
	}
	if err != nil {
		j.logger.Warn("sweeping work directories", "error", err)
	}
}

// SweepOnce removes every prefix* directory under root last modified more
// than staleAfter ago. It returns the removed paths; failures on individual
// entries are joined into the returned error without stopping the sweep.
func (j *Janitor) SweepOnce() ([]string, error) {
	entries, err := os.ReadDir(j.root)
	if err != nil {
		return nil, fmt.Errorf("janitor: reading %s: %w", j.root, err)
	}

	cutoff := j.now().Add(-j.staleAfter)
	var removed []string
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), j.prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed concurrently.
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(j.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}
