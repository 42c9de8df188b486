// Package link provides the queues that connect drones, clients and the
// controller. A link has many senders and a single receiver. Sending never
// blocks, and once a link is closed sends fail silently instead of
// panicking, which is what a node expects when a neighbor has gone away.
package link

import (
	"sync"
	"time"
)

type Link[T any] struct {
	mutex    sync.Mutex
	items    []T
	capacity int
	isClosed bool

	// ready holds a token whenever items may be non-empty.
	ready  chan struct{}
	closed chan struct{}
}

// New returns a link holding at most capacity values. A capacity of zero or
// less makes the link unbounded.
func New[T any](capacity int) *Link[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Link[T]{
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

// Send queues v without blocking. It returns false once the link is closed,
// or when a bounded link is full.
func (l *Link[T]) Send(v T) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.isClosed {
		return false
	}
	if l.capacity > 0 && len(l.items) >= l.capacity {
		return false
	}
	l.items = append(l.items, v)
	l.notify()
	return true
}

func (l *Link[T]) notify() {
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// Ready receives a token when values may be waiting. Wakeups can be
// spurious: follow every one with TryRecv.
func (l *Link[T]) Ready() <-chan struct{} {
	return l.ready
}

// Done is closed when the link is disconnected. Values already queued can
// still be received afterwards.
func (l *Link[T]) Done() <-chan struct{} {
	return l.closed
}

func (l *Link[T]) TryRecv() (T, bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var zero T
	if len(l.items) == 0 {
		return zero, false
	}
	v := l.items[0]
	l.items[0] = zero
	l.items = l.items[1:]
	if len(l.items) == 0 {
		l.items = nil
	} else {
		l.notify()
	}
	return v, true
}

// Next waits for the next queued value. It reports false once the link is
// closed and nothing is left to receive.
func (l *Link[T]) Next() (T, bool) {
	return l.NextBefore(nil)
}

// NextBefore is Next with a deadline. It also reports false when deadline
// fires first; Closed tells the two cases apart.
func (l *Link[T]) NextBefore(deadline <-chan time.Time) (T, bool) {
	for {
		if v, ok := l.TryRecv(); ok {
			return v, true
		}
		select {
		case <-l.ready:
		case <-l.closed:
			// Close and Send share the mutex, so nothing can be queued
			// after this point.
			return l.TryRecv()
		case <-deadline:
			var zero T
			return zero, false
		}
	}
}

func (l *Link[T]) Close() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.isClosed {
		return
	}
	l.isClosed = true
	close(l.closed)
}

func (l *Link[T]) Closed() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.isClosed
}

func (l *Link[T]) Len() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.items)
}
