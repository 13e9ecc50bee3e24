package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/gmailmcp/internal/instrumentation"
	"github.com/teemow/gmailmcp/internal/logging"
)

// Defaults New applies to out-of-range Config values.
const (
	DefaultWorkers   = 8
	DefaultQueueSize = 64
)

var (
	// ErrQueueFull is returned when the caller's context ends before the
	// call could be queued.
	ErrQueueFull = errors.New("dispatch queue is full")
	// ErrClosed is returned by Offload after Close.
	ErrClosed = errors.New("dispatch bridge is closed")
)

// PanicError is returned in place of a result when the offloaded function
// panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("offloaded call panicked: %v", e.Value)
}

// Config sizes a Bridge.
type Config struct {
	Workers   int
	QueueSize int
	// CallTimeout bounds each offloaded call. Zero means no bound beyond
	// the caller's context.
	CallTimeout time.Duration
}

type task struct {
	ctx       context.Context
	run       func(ctx context.Context)
	enqueued  time.Time
	unbounded bool
}

// Bridge runs blocking calls on a fixed pool of workers so request
// goroutines only wait on a result channel.
type Bridge struct {
	tasks       chan task
	callTimeout time.Duration
	metrics     *instrumentation.Metrics
	logger      *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithMetrics records queue wait, in-flight and rejected calls.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// WithLogger sets the logger used for recovered panics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// New starts a Bridge with cfg.Workers workers.
func New(cfg Config, opts ...Option) *Bridge {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	b := &Bridge{
		tasks:       make(chan task, cfg.QueueSize),
		callTimeout: cfg.CallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = logging.WithComponent(b.logger, "dispatch")

	b.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go b.worker()
	}
	return b
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	for t := range b.tasks {
		if t.ctx.Err() != nil {
			// The caller already gave up.
			b.metrics.DispatchRejected(t.ctx)
			continue
		}
		b.metrics.DispatchStarted(t.ctx, time.Since(t.enqueued))

		ctx, cancel := t.ctx, context.CancelFunc(func() {})
		if b.callTimeout > 0 && !t.unbounded {
			ctx, cancel = context.WithTimeout(ctx, b.callTimeout)
		}
		t.run(ctx)
		cancel()

		b.metrics.DispatchFinished(t.ctx)
	}
}

func (b *Bridge) submit(ctx context.Context, run func(context.Context), unbounded bool) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	t := task{ctx: ctx, run: run, enqueued: time.Now(), unbounded: unbounded}
	select {
	case b.tasks <- t:
		return nil
	default:
	}

	select {
	case b.tasks <- t:
		return nil
	case <-ctx.Done():
		b.metrics.DispatchRejected(ctx)
		return fmt.Errorf("%w: %w", ErrQueueFull, ctx.Err())
	}
}

// Close stops accepting calls and waits until queued calls have drained
// or ctx ends.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.tasks)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type result[T any] struct {
	val T
	err error
}

// Offload runs fn on a worker and waits for its result. If ctx ends first
// Offload returns ctx.Err() at once; fn sees the same cancelled context
// and its eventual result is discarded.
func Offload[T any](ctx context.Context, b *Bridge, fn func(ctx context.Context) (T, error)) (T, error) {
	return offload(ctx, b, fn, false)
}

// OffloadUnbounded behaves like Offload but ignores Config.CallTimeout.
// It is meant for calls that may wait on the user, such as interactive
// authorization, which carry their own bound.
func OffloadUnbounded[T any](ctx context.Context, b *Bridge, fn func(ctx context.Context) (T, error)) (T, error) {
	return offload(ctx, b, fn, true)
}

func offload[T any](ctx context.Context, b *Bridge, fn func(ctx context.Context) (T, error), unbounded bool) (T, error) {
	var zero T
	done := make(chan result[T], 1)

	run := func(ctx context.Context) {
		defer func() {
			if p := recover(); p != nil {
				perr := &PanicError{Value: p, Stack: debug.Stack()}
				b.logger.Error("recovered panic in offloaded call",
					logging.Err(perr),
					slog.String("stack", string(perr.Stack)))
				done <- result[T]{err: perr}
			}
		}()
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	}

	if err := b.submit(ctx, run, unbounded); err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// OffloadAll offloads fn once per item and returns the results in item
// order. The first failure cancels the remaining calls and is returned.
func OffloadAll[T, R any](ctx context.Context, b *Bridge, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		g.Go(func() error {
			r, err := Offload(gctx, b, func(ctx context.Context) (R, error) {
				return fn(ctx, item)
			})
			if err != nil {
				return err
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
