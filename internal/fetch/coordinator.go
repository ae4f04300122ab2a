// Package fetch coordinates logical fetches: recurring reads of which at
// most one request is authoritative at a time.
package fetch

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nhle/complaint-desk/internal/logging"
	"github.com/nhle/complaint-desk/internal/metrics"
)

// State is the lifecycle state of a logical fetch.
type State int

const (
	Idle State = iota
	Loading
)

func (s State) String() string {
	if s == Loading {
		return "loading"
	}
	return "idle"
}

// Outcome describes what happened to a completed request.
type Outcome int

const (
	// Applied means the result was the latest and was committed.
	Applied Outcome = iota
	// Stale means a newer request was issued before this one completed;
	// the result was dropped.
	Stale
	// Aborted means the request was cancelled. Not an error.
	Aborted
	// Failed means the latest request returned an error, which was
	// committed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Commit receives the result of the latest request with outcome Applied,
// Failed or Aborted. It runs with the coordinator locked, so no newer
// request can be issued while it applies; it must not call back into the
// coordinator.
type Commit[T any] func(out Outcome, res T, err error)

// Handle tracks one issued request.
type Handle struct {
	seq  uint64
	key  string
	done chan struct{}

	outcome Outcome
	err     error
}

// Seq returns the sequence number the request was tagged with.
func (h *Handle) Seq() uint64 { return h.seq }

// Key returns the request identity the handle was issued for.
func (h *Handle) Key() string { return h.key }

// Done is closed once the request has completed and been classified.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the request completes and returns its outcome and,
// for Failed, the error.
func (h *Handle) Wait() (Outcome, error) {
	<-h.done
	return h.outcome, h.err
}

// Coordinator owns one logical fetch. Issuing a request supersedes and
// cancels the previous one; only the most recently issued request may
// commit its result.
type Coordinator[T any] struct {
	name    string
	log     *logrus.Entry
	metrics *metrics.Metrics

	mu       sync.Mutex
	seq      uint64
	inflight *Handle
	cancel   context.CancelFunc
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	log     *logrus.Logger
	metrics *metrics.Metrics
}

// WithLogger logs stale drops and aborts at debug level.
func WithLogger(log *logrus.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics counts outcomes per fetch name.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New creates a coordinator for the named logical fetch.
func New[T any](name string, opts ...Option) *Coordinator[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Coordinator[T]{
		name:    name,
		log:     logging.Component(o.log, "fetch").WithField("fetch", name),
		metrics: o.metrics,
	}
}

// Issue starts run for the request identified by key. If the in-flight
// request has the same key, its handle is returned and nothing new is
// started. Otherwise the in-flight request is cancelled and run is
// started on its own goroutine with a context derived from ctx.
//
// When run completes, commit is invoked only if the request is still
// the latest; superseded results are dropped.
func (c *Coordinator[T]) Issue(
	ctx context.Context,
	key string,
	run func(ctx context.Context) (T, error),
	commit Commit[T],
) *Handle {
	return c.IssueWith(ctx, key, nil, run, commit)
}

// IssueWith is Issue with a start hook. start runs with the coordinator
// locked and only when a new request is started, so it always lands
// after the commit of any earlier request and before the commit of this
// one. Like commit, it must not call back into the coordinator.
func (c *Coordinator[T]) IssueWith(
	ctx context.Context,
	key string,
	start func(),
	run func(ctx context.Context) (T, error),
	commit Commit[T],
) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight != nil && c.inflight.key == key {
		return c.inflight
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.seq++
	h := &Handle{seq: c.seq, key: key, done: make(chan struct{})}
	reqCtx, cancel := context.WithCancel(ctx)
	c.inflight = h
	c.cancel = cancel

	if start != nil {
		start()
	}

	go c.execute(reqCtx, cancel, h, run, commit)

	return h
}

func (c *Coordinator[T]) execute(
	ctx context.Context,
	cancel context.CancelFunc,
	h *Handle,
	run func(ctx context.Context) (T, error),
	commit Commit[T],
) {
	defer cancel()
	res, err := run(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(h.done)

	aborted := isCancellation(ctx.Err()) || isCancellation(err)

	if h.seq != c.seq {
		// Superseded by a newer Issue or by Cancel.
		if aborted {
			h.outcome = Aborted
		} else {
			h.outcome = Stale
		}
		c.log.WithFields(logrus.Fields{
			"seq":     h.seq,
			"latest":  c.seq,
			"outcome": h.outcome.String(),
		}).Debug("dropping superseded result")
		c.metrics.ObserveFetch(c.name, h.outcome.String())
		return
	}

	c.inflight = nil
	c.cancel = nil

	switch {
	case aborted:
		h.outcome = Aborted
	case err != nil:
		h.outcome = Failed
		h.err = err
	default:
		h.outcome = Applied
	}
	c.metrics.ObserveFetch(c.name, h.outcome.String())

	if commit != nil {
		commit(h.outcome, res, h.err)
	}
}

// Cancel aborts the in-flight request, if any, so that its result is
// never committed. It reports whether a request was in flight.
func (c *Coordinator[T]) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight == nil {
		return false
	}

	// Bumping the sequence makes the in-flight request stale even if its
	// run ignores the cancelled context.
	c.seq++
	if c.cancel != nil {
		c.cancel()
	}
	c.inflight = nil
	c.cancel = nil
	return true
}

// State reports whether a request is in flight.
func (c *Coordinator[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inflight != nil {
		return Loading
	}
	return Idle
}

// Seq returns the latest sequence number issued.
func (c *Coordinator[T]) Seq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Name returns the logical fetch name.
func (c *Coordinator[T]) Name() string {
	return c.name
}

// isCancellation reports whether err stems from context cancellation. A
// deadline is a genuine failure, not a cancellation.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
