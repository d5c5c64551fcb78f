// Copyright 2025 The haproxy-operator authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package events models the platform's serialized event delivery.
//
// The platform invokes the operator one event at a time; there is no
// concurrent delivery and no event is processed before the previous one has
// run to completion. A handler that cannot make progress yet may defer the
// current event, in which case it is redelivered on a later dispatch, after
// the next fresh delivery and everything pending ahead of it, fully
// re-invoked from the start.
package events

import (
	"sync"
	"time"
)

// Event is the base interface for all events delivered to the operator.
type Event interface {
	// Kind returns a unique identifier for this event type.
	// Convention: dot-notation such as "install" or "certificates.available".
	Kind() string

	// Timestamp returns when this event occurred.
	Timestamp() time.Time
}

// Queue is a FIFO event queue with redelivery support.
//
// Queue is safe for concurrent producers, but is designed for a single
// consumer: the operator's dispatch loop. Pop blocks until an event is
// available or Close is called. Defer parks an event until the next fresh
// delivery, matching the platform's semantics that a deferred handler is
// re-invoked from the start on a later dispatch, not immediately.
type Queue struct {
	mu       sync.Mutex
	pending  []Event
	deferred []Event
	wake     chan struct{}
	closed   bool
}

// NewQueue creates an empty event queue.
func NewQueue() *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
	}
}

// Push appends an event to the end of the queue.
// Pushing to a closed queue is a no-op.
func (q *Queue) Push(event Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, event)
	q.drainDeferredLocked()
	q.signal()
}

// Defer schedules an event for redelivery.
//
// The event is parked until the next fresh delivery arrives, behind that
// delivery and everything else pending at the time. Retrying only once
// something has changed keeps a handler that cannot make progress from
// spinning against the same state. Deferring to a closed queue is a no-op.
func (q *Queue) Defer(event Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.deferred = append(q.deferred, event)
}

// drainDeferredLocked moves parked events behind the pending ones.
// Callers must hold q.mu.
func (q *Queue) drainDeferredLocked() {
	if len(q.deferred) == 0 {
		return
	}
	q.pending = append(q.pending, q.deferred...)
	q.deferred = nil
}

// Pop removes and returns the oldest pending event.
//
// It blocks until an event is available. The second return value is false
// once the queue has been closed and drained.
func (q *Queue) Pop() (Event, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			event := q.pending[0]
			q.pending = q.pending[1:]
			if len(q.pending) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return event, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.wake
	}
}

// Len returns the number of pending events, parked ones included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) + len(q.deferred)
}

// Close marks the queue closed. Pending events can still be popped, and
// parked events get one final delivery; afterwards Pop returns false.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.drainDeferredLocked()
	q.signal()
}

// signal wakes a blocked Pop. Callers must hold q.mu.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
