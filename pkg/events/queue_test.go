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

package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := NewQueue()
	q.Push(NewInstallEvent())
	q.Push(NewConfigChangedEvent())
	q.Push(NewRelationChangedEvent("ingress", 0))
	q.Close()

	var kinds []string
	for {
		event, ok := q.Pop()
		if !ok {
			break
		}
		kinds = append(kinds, event.Kind())
	}
	assert.Equal(t, []string{"install", "config.changed", "relation.changed.ingress"}, kinds)
}

func TestQueue_DeferredEventRedeliveredAfterPending(t *testing.T) {
	q := NewQueue()
	q.Push(NewConfigChangedEvent())
	q.Push(NewRelationChangedEvent("ingress", 3))

	first, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, "config.changed", first.Kind())

	// The handler could not make progress: the event goes behind the
	// relation-changed event already waiting in the queue.
	q.Defer(first)
	q.Close()

	second, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "relation.changed.ingress", second.Kind())

	third, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "config.changed", third.Kind())

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueue_DeferredEventWaitsForFreshDelivery(t *testing.T) {
	q := NewQueue()
	q.Push(NewConfigChangedEvent())

	event, ok := q.Pop()
	require.True(t, ok)
	q.Defer(event)
	require.Equal(t, 1, q.Len())

	// Nothing else is pending and no new event has arrived: the retry
	// must wait instead of spinning against unchanged state.
	popped := make(chan Event, 1)
	go func() {
		e, _ := q.Pop()
		popped <- e
	}()
	select {
	case e := <-popped:
		t.Fatalf("deferred event %q redelivered without a fresh delivery", e.Kind())
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(NewCertificateAvailableEvent())
	assert.Equal(t, "certificates.available", (<-popped).Kind())

	retry, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "config.changed", retry.Kind())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_DeferAfterCloseIsDropped(t *testing.T) {
	q := NewQueue()
	q.Close()
	q.Defer(NewConfigChangedEvent())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PushAfterCloseIsDropped(t *testing.T) {
	q := NewQueue()
	q.Close()
	q.Push(NewInstallEvent())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_PopUnblocksOnPush(t *testing.T) {
	q := NewQueue()
	done := make(chan string, 1)
	go func() {
		event, ok := q.Pop()
		if !ok {
			done <- ""
			return
		}
		done <- event.Kind()
	}()

	q.Push(NewCertificateAvailableEvent())
	assert.Equal(t, "certificates.available", <-done)
}
