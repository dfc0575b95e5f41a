// Package loop runs callbacks on a single dedicated goroutine.
//
// It models the cooperative scheduler the optimistic state container assumes:
// state transitions dispatched to a Loop are applied one at a time, in
// arrival order, on one goroutine. Background work (a commit's asynchronous
// action) runs wherever it likes and dispatches only its application step.
package loop

import (
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/optimist-go/optimist/internal/gid"
)

var (
	// ErrClosed is returned by Dispatch and Call after the loop has stopped.
	ErrClosed = errors.New("optimist: loop closed")

	// ErrQueueFull is returned when the dispatch queue is saturated.
	// The callback is discarded, not blocked on.
	ErrQueueFull = errors.New("optimist: loop dispatch queue full")
)

// Loop executes dispatched functions sequentially on one goroutine.
type Loop struct {
	dispatchCh chan func()
	done       chan struct{}

	// mu fences Dispatch against Stop so nothing is enqueued after the
	// final drain begins. Dispatchers hold it shared.
	mu     sync.RWMutex
	closed atomic.Bool

	// runGID is the goroutine running Run, 0 before Run starts.
	runGID atomic.Uint64

	logger *slog.Logger
}

// Option configures a Loop.
type Option func(*config)

type config struct {
	queueSize int
	logger    *slog.Logger
}

// WithQueueSize sets the dispatch queue capacity. Default: 256.
func WithQueueSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithLogger sets the logger used for panic and backpressure reports.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// New creates a loop. It does not start processing until Run or Start.
func New(opts ...Option) *Loop {
	cfg := &config{
		queueSize: 256,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		dispatchCh: make(chan func(), cfg.queueSize),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes dispatched functions until Stop is called.
// It blocks; use Start to run on a fresh goroutine. After Stop, Run drains
// the functions already queued before returning, so a nil-error Dispatch
// always executes.
func (l *Loop) Run() {
	l.runGID.Store(gid.Current())
	defer l.runGID.Store(0)

	for {
		select {
		case fn := <-l.dispatchCh:
			l.execute(fn)

		case <-l.done:
			l.drain()
			return
		}
	}
}

// Start runs the loop on a new goroutine and returns immediately.
func (l *Loop) Start() {
	go l.Run()
}

// Dispatch queues fn for execution on the loop goroutine.
// It never blocks: a stopped loop returns ErrClosed, a saturated queue logs
// a warning and returns ErrQueueFull.
func (l *Loop) Dispatch(fn func()) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed.Load() {
		return ErrClosed
	}

	select {
	case l.dispatchCh <- fn:
		return nil
	default:
		l.logger.Warn("dispatch queue full, discarding callback")
		return ErrQueueFull
	}
}

// Call executes fn on the loop goroutine and waits for it to finish.
// When the caller is already on the loop goroutine, fn runs inline; a
// dispatch-and-wait from the loop onto itself would deadlock.
func (l *Loop) Call(fn func()) error {
	if l.OnLoop() {
		l.execute(fn)
		return nil
	}

	ran := make(chan struct{})
	err := l.Dispatch(func() {
		defer close(ran)
		fn()
	})
	if err != nil {
		return err
	}

	<-ran
	return nil
}

// OnLoop reports whether the caller is the loop goroutine.
func (l *Loop) OnLoop() bool {
	g := l.runGID.Load()
	return g != 0 && g == gid.Current()
}

// Stop shuts the loop down. Queued functions still run; new dispatches are
// rejected. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Swap(true) {
		return
	}
	close(l.done)
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	return l.closed.Load()
}

// drain runs whatever made it into the queue before Stop.
func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.dispatchCh:
			l.execute(fn)
		default:
			return
		}
	}
}

// execute runs one callback with panic recovery so a misbehaving callback
// cannot take the loop down.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			l.logger.Error("dispatch panic",
				"panic", r,
				"stack", string(stack))
		}
	}()

	fn()
}
