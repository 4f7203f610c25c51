// Package bus provides the single-threaded dispatch loop that serializes
// every remote call handled by the mock.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bigknoxy/nsmmock/internal/log"
)

var (
	// ErrStopped is returned for calls submitted after the loop stopped.
	ErrStopped = errors.New("dispatch loop stopped")

	// ErrRunning is returned when Run is called on a loop that is already running.
	ErrRunning = errors.New("dispatch loop already running")
)

// HandlerFunc is a unit of work executed on the loop goroutine.
type HandlerFunc func(ctx context.Context)

type call struct {
	name string
	ctx  context.Context
	fn   HandlerFunc
	done chan struct{}
	err  error
}

// Loop runs submitted calls one at a time on the goroutine that called Run.
// It stays in the running state until Stop is called or the context passed
// to Run is cancelled; there is no way back.
type Loop struct {
	calls   chan *call
	quit    chan struct{}
	stopped chan struct{}

	stopOnce sync.Once
	mu       sync.Mutex
	running  bool
	ran      bool

	logger *log.Logger
}

// NewLoop creates a loop. Call Run to start dispatching.
func NewLoop() *Loop {
	return &Loop{
		calls:   make(chan *call),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  log.SubPackage("bus"),
	}
}

// Run dispatches calls until Stop is called or ctx is cancelled. It returns
// nil after Stop and ctx.Err() after cancellation.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrRunning
	}
	if l.ran {
		l.mu.Unlock()
		return ErrStopped
	}
	l.running = true
	l.ran = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		close(l.stopped)
	}()

	l.logger.Debug("dispatch loop started")
	for {
		// Stop wins over pending calls.
		select {
		case <-l.quit:
			l.logger.Debug("dispatch loop stopped")
			return nil
		default:
		}

		select {
		case <-l.quit:
			l.logger.Debug("dispatch loop stopped")
			return nil
		case <-ctx.Done():
			l.logger.Debug("dispatch loop cancelled", "error", ctx.Err())
			return ctx.Err()
		case c := <-l.calls:
			l.dispatch(c)
		}
	}
}

func (l *Loop) dispatch(c *call) {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("handler %s panicked: %v", c.name, r)
			l.logger.Error("handler panicked", "call", c.name, "panic", r)
		}
	}()
	l.logger.Debug("dispatch", "call", c.name, "trace_id", log.TraceIDFromContext(c.ctx))
	c.fn(c.ctx)
}

// Do runs fn on the loop and waits for it to return. The context given to
// fn carries a trace ID. Do fails with ErrStopped once the loop has stopped;
// ctx only bounds the wait for the loop to accept the call.
func (l *Loop) Do(ctx context.Context, name string, fn HandlerFunc) error {
	if log.TraceIDFromContext(ctx) == "" {
		ctx = log.ContextWithTraceID(ctx, "")
	}
	c := &call{name: name, ctx: ctx, fn: fn, done: make(chan struct{})}

	select {
	case <-l.stopped:
		return ErrStopped
	case <-l.quit:
		return ErrStopped
	default:
	}

	select {
	case l.calls <- c:
	case <-l.stopped:
		return ErrStopped
	case <-l.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// An accepted call always runs to completion before the loop exits.
	<-c.done
	return c.err
}

// Stop ends the loop after the current call returns. It is safe to call
// from inside a handler and more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
	})
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

// IsRunning returns whether Run is currently dispatching.
func (l *Loop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
