// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package sharding

import (
	"sync"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// Ref is an opaque handle on a running participant. Two refs denote the
// same participant exactly when their IDs are equal; a restarted participant
// carries a fresh ID.
type Ref interface {
	// ID uniquely identifies this participant incarnation.
	ID() string
	// Name returns the human-readable participant name used in logs.
	Name() string
	// Tell enqueues the message. Messages from one sender are processed in
	// the order they were sent. Telling a stopped participant drops the
	// message silently.
	Tell(message any)

	// watch registers the watcher for a terminated notification when this
	// participant stops. A watcher of an already-stopped participant is
	// notified immediately.
	watch(watcher Ref)
	// unwatch removes a previously registered watcher.
	unwatch(watcher Ref)
}

// terminated notifies a watcher that the watched participant stopped.
type terminated struct {
	ref Ref
}

// poisonPill stops a cell after the messages enqueued before it.
type poisonPill struct{}

type receiveFunc func(message any)

// cell is the single-goroutine execution unit behind every sharding
// participant: one mailbox, drained serially, so a participant never
// observes its own state concurrently.
type cell struct {
	id      string
	name    string
	mailbox *queue.Queue
	receive receiveFunc

	postStop func()
	started  *atomic.Bool
	stopping *atomic.Bool
	done     chan struct{}

	watchersMu sync.Mutex
	watchers   map[string]Ref
	dead       bool
}

// enforce compilation error
var _ Ref = (*cell)(nil)

func newCell(name string) *cell {
	return &cell{
		id:       uuid.NewString(),
		name:     name,
		mailbox:  queue.New(16),
		started:  atomic.NewBool(false),
		stopping: atomic.NewBool(false),
		done:     make(chan struct{}),
		watchers: map[string]Ref{},
	}
}

// run installs the behavior and starts the processing loop. Calling run
// more than once is a no-op.
func (x *cell) run(receive receiveFunc, postStop func()) {
	if !x.started.CompareAndSwap(false, true) {
		return
	}
	x.receive = receive
	x.postStop = postStop
	go x.processLoop()
}

func (x *cell) ID() string {
	return x.id
}

func (x *cell) Name() string {
	return x.name
}

func (x *cell) Tell(message any) {
	// Put only fails once the mailbox is disposed, at which point the
	// participant is gone and the message is dropped by contract.
	_ = x.mailbox.Put(message)
}

// Stop requests termination. Messages enqueued before the call are still
// processed; later ones are dropped.
func (x *cell) Stop() {
	if x.stopping.CompareAndSwap(false, true) {
		_ = x.mailbox.Put(poisonPill{})
	}
}

// Done is closed once the cell has fully stopped, after postStop ran and
// watchers were notified.
func (x *cell) Done() <-chan struct{} {
	return x.done
}

func (x *cell) watch(watcher Ref) {
	x.watchersMu.Lock()
	if x.dead {
		x.watchersMu.Unlock()
		watcher.Tell(terminated{ref: x})
		return
	}
	x.watchers[watcher.ID()] = watcher
	x.watchersMu.Unlock()
}

func (x *cell) unwatch(watcher Ref) {
	x.watchersMu.Lock()
	delete(x.watchers, watcher.ID())
	x.watchersMu.Unlock()
}

func (x *cell) processLoop() {
	running := true
	for running {
		items, err := x.mailbox.Get(1)
		if err != nil {
			break
		}
		for _, item := range items {
			if _, ok := item.(poisonPill); ok {
				running = false
				break
			}
			x.receive(item)
		}
	}
	x.mailbox.Dispose()
	if x.postStop != nil {
		x.postStop()
	}
	x.notifyWatchers()
	close(x.done)
}

func (x *cell) notifyWatchers() {
	x.watchersMu.Lock()
	x.dead = true
	watchers := make([]Ref, 0, len(x.watchers))
	for _, watcher := range x.watchers {
		watchers = append(watchers, watcher)
	}
	x.watchers = map[string]Ref{}
	x.watchersMu.Unlock()

	for _, watcher := range watchers {
		watcher.Tell(terminated{ref: x})
	}
}
