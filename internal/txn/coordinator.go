// Package txn serializes tree mutations into atomic batches. At most one
// batch is in flight per Coordinator; what happens to a competing batch is
// decided by the Policy.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Paintersrp/lifelog/internal/docstore"
)

// ErrAborted is the cancellation cause seen by a batch function after Abort.
var ErrAborted = errors.New("txn: batch aborted")

// Result describes how a batch ended.
type Result int

const (
	// Committed means every staged write landed.
	Committed Result = iota
	// Dropped means another batch was in flight and fn never ran.
	Dropped
	// Aborted means Abort was called; the batch is a clean no-op for the
	// caller.
	Aborted
	// Failed means fn or the commit returned an error.
	Failed
)

func (r Result) String() string {
	switch r {
	case Committed:
		return "committed"
	case Dropped:
		return "dropped"
	case Aborted:
		return "aborted"
	default:
		return "failed"
	}
}

// Policy decides what happens when a batch starts while another is in
// flight.
type Policy int

const (
	// DropWhenBusy discards the competing batch without running it.
	DropWhenBusy Policy = iota
	// QueueWhenBusy waits for the in-flight batch to finish.
	QueueWhenBusy
)

// ParsePolicy maps a configuration name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropWhenBusy, nil
	case "queue":
		return QueueWhenBusy, nil
	}
	return DropWhenBusy, fmt.Errorf("txn: unknown batch policy %q", name)
}

// State is the coordinator's gate state.
type State int

const (
	Idle State = iota
	InFlight
)

func (s State) String() string {
	if s == InFlight {
		return "in-flight"
	}
	return "idle"
}

// Announcer is told about every committed batch, typically to fan the
// token out to other processes sharing the store.
type Announcer interface {
	Announce(ctx context.Context, token Token, collections []string) error
}

// Func accumulates writes into a batch. The context is cancelled with cause
// ErrAborted when the batch is aborted.
type Func func(ctx context.Context, b *Batch) error

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithPolicy(p Policy) Option { return func(c *Coordinator) { c.policy = p } }

func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

func WithNow(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

func WithOrigin(origin string) Option { return func(c *Coordinator) { c.origin = origin } }

func WithAnnouncer(a Announcer) Option { return func(c *Coordinator) { c.announcer = a } }

// Coordinator is the only writer of the collections it manages.
type Coordinator struct {
	store     docstore.Store
	gate      chan struct{}
	policy    Policy
	logger    *slog.Logger
	now       func() time.Time
	origin    string
	announcer Announcer
	versions  *Versions
	clock     *Clock

	mu     sync.Mutex
	cancel context.CancelCauseFunc
}

// New returns an idle coordinator writing to store.
func New(store docstore.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		gate:   make(chan struct{}, 1),
		logger: slog.Default(),
		now:    time.Now,
		clock:  NewClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.origin == "" {
		c.origin = uuid.NewString()[:8]
	}
	c.versions = newVersions(c.origin)
	return c
}

// Store returns the underlying document store.
func (c *Coordinator) Store() docstore.Store { return c.store }

// Clock is raised for the duration of every structural batch.
func (c *Coordinator) Clock() *Clock { return c.clock }

// Versions exposes the tokens this coordinator has committed.
func (c *Coordinator) Versions() *Versions { return c.versions }

// State reports whether a batch currently holds the gate.
func (c *Coordinator) State() State {
	if len(c.gate) > 0 {
		return InFlight
	}
	return Idle
}

// RunBatch runs fn and commits its writes atomically.
func (c *Coordinator) RunBatch(ctx context.Context, fn Func) (Result, error) {
	return c.run(ctx, false, fn)
}

// RunStructural is RunBatch for indent, dedent and move batches. The clock
// is raised before fn runs and lowered after local subscribers have received
// the committed state.
func (c *Coordinator) RunStructural(ctx context.Context, fn Func) (Result, error) {
	return c.run(ctx, true, fn)
}

// Abort cancels the in-flight batch, if any. The batch's caller sees
// Aborted with a nil error. It reports whether a batch was cancelled.
func (c *Coordinator) Abort() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel(ErrAborted)
	return true
}

func (c *Coordinator) acquire(ctx context.Context) (bool, error) {
	if c.policy == QueueWhenBusy {
		select {
		case c.gate <- struct{}{}:
			return true, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	select {
	case c.gate <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

func (c *Coordinator) run(ctx context.Context, structural bool, fn Func) (Result, error) {
	ok, err := c.acquire(ctx)
	if !ok {
		c.logger.Debug("batch dropped", "structural", structural)
		return Dropped, err
	}

	bctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	if structural {
		c.clock.Raise()
	}

	release := func() {
		if structural {
			c.clock.Lower()
		}
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		<-c.gate
	}
	return c.execute(bctx, fn, release)
}

// execute runs fn and commits. release is called exactly once: on return,
// or by the commit goroutine once a started commit has finished, so the gate
// stays held while a commit abandoned by Abort is still landing.
func (c *Coordinator) execute(ctx context.Context, fn Func, release func()) (Result, error) {
	committing := false
	defer func() {
		if !committing {
			release()
		}
	}()

	docs := c.store.Batch()
	b := newBatch(docs, c.now().UTC())

	if err := fn(ctx, b); err != nil {
		if aborted(ctx) {
			c.logger.Debug("batch aborted before commit")
			return Aborted, nil
		}
		return Failed, err
	}
	if aborted(ctx) {
		c.logger.Debug("batch aborted before commit")
		return Aborted, nil
	}
	if err := ctx.Err(); err != nil {
		return Failed, err
	}

	tok, err := c.versions.stage(ctx, c.store, docs, b.now)
	if err != nil {
		return Failed, err
	}

	committing = true
	done := make(chan error, 1)
	go func() {
		err := docs.Commit(context.WithoutCancel(ctx))
		if err == nil {
			c.versions.committed(tok)
		}
		release()
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return Failed, err
		}
	case <-ctx.Done():
		if aborted(ctx) {
			c.logger.Debug("batch aborted during commit", "token", tok.ID)
			return Aborted, nil
		}
		return Failed, ctx.Err()
	}

	c.logger.Debug("batch committed", "token", tok.ID, "writes", docs.Len())
	if c.announcer != nil {
		if err := c.announcer.Announce(context.WithoutCancel(ctx), tok, b.touched()); err != nil {
			c.logger.Warn("announce failed", "token", tok.ID, "error", err)
		}
	}
	return Committed, nil
}

func aborted(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrAborted)
}
