// Package viewer owns the view state of a running map: one event loop
// goroutine, the adapter, the contexts and the alert log.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrClosed is returned by Call once the loop has stopped.
var ErrClosed = errors.New("event loop closed")

// Loop runs submitted closures one at a time on a single goroutine. Every
// piece of view state is only touched from inside the loop.
type Loop struct {
	log     zerolog.Logger
	tasks   chan func()
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func NewLoop(log zerolog.Logger) *Loop {
	l := &Loop{
		log:     log,
		tasks:   make(chan func(), 64),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
		case <-l.done:
			return
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Str("panic", fmt.Sprint(r)).Msg("event loop task panicked")
		}
	}()
	fn()
}

// Post queues fn. Posts after Close are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}

// Call runs fn on the loop and waits for it to finish. It must not be
// called from inside the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case l.tasks <- task:
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-l.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop and waits for the running task to return. Queued
// tasks are discarded.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.done) })
	<-l.stopped
}
