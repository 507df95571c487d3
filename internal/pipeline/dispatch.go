package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/AbdelazizMoustafa10m/Kestrel/internal/github"
)

var (
	// ErrDuplicate is returned by Dispatch when the same head is already
	// being reviewed.
	ErrDuplicate = errors.New("pipeline: review already in progress")

	// ErrShuttingDown is returned by Dispatch after Shutdown has begun.
	ErrShuttingDown = errors.New("pipeline: shutting down")
)

// Processor runs one review. *Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, ev *github.PullRequestEvent, token string) error
}

// Dispatcher runs reviews in the background, one goroutine per event, and
// drops events whose head is already in flight.
type Dispatcher struct {
	proc    Processor
	tracker *Tracker
	logger  *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. logger may be nil.
func NewDispatcher(proc Processor, logger *log.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		proc:    proc,
		tracker: NewTracker(),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Dispatch starts reviewing ev in the background. It returns ErrDuplicate
// when the same head is already in flight and ErrShuttingDown once Shutdown
// has been called.
func (d *Dispatcher) Dispatch(ev *github.PullRequestEvent, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrShuttingDown
	}
	if !d.tracker.TryStart(ev) {
		return ErrDuplicate
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.tracker.Done(ev)
		defer func() {
			if r := recover(); r != nil && d.logger != nil {
				d.logger.Error("review panicked", "review", ev.Label(), "panic", fmt.Sprint(r))
			}
		}()
		// Process logs its own failures.
		_ = d.proc.Process(d.ctx, ev, token)
	}()
	return nil
}

// InFlight returns the number of reviews currently running or waiting for a
// gate permit.
func (d *Dispatcher) InFlight() int {
	return d.tracker.Len()
}

// Shutdown stops accepting events and waits for running reviews. If ctx
// ends first the remaining reviews are cancelled and ctx's error is
// returned once they have exited.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		if d.logger != nil {
			d.logger.Warn("shutdown timeout, cancelling reviews", "in_flight", d.InFlight())
		}
		d.cancel()
		<-done
		return fmt.Errorf("pipeline: shutdown: %w", ctx.Err())
	}
}
