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

package membership

import (
	"errors"
	"sync"
)

// subscriptionBuffer bounds the per-subscription event backlog. A consumer
// that falls this far behind is considered broken and loses events.
const subscriptionBuffer = 256

// ErrFeedStopped is returned when subscribing to a stopped feed.
var ErrFeedStopped = errors.New("membership: feed is stopped")

// fanout keeps the current member view and broadcasts changes to every
// subscription. Feed implementations push decided events into it.
type fanout struct {
	mu          sync.Mutex
	members     map[string]Member
	subscribers map[int]chan Event
	nextSubID   int
	stopped     bool
}

func newFanout() *fanout {
	return &fanout{
		members:     map[string]Member{},
		subscribers: map[int]chan Event{},
	}
}

// memberUp records the member and broadcasts MemberUp. It reports false
// without broadcasting when the address is already up.
func (f *fanout) memberUp(member Member) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[member.Address]; ok {
		return false
	}
	f.members[member.Address] = member
	f.broadcast(Event{Type: MemberUp, Member: member})
	return true
}

// memberRemoved drops the member and broadcasts MemberRemoved. Unknown
// addresses are ignored.
func (f *fanout) memberRemoved(address string) (Member, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[address]
	if !ok {
		return Member{}, false
	}
	delete(f.members, address)
	f.broadcast(Event{Type: MemberRemoved, Member: member})
	return member, true
}

func (f *fanout) member(address string) (Member, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	member, ok := f.members[address]
	return member, ok
}

func (f *fanout) subscribe() (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return nil, ErrFeedStopped
	}

	snapshot := make([]Member, 0, len(f.members))
	for _, member := range f.members {
		snapshot = append(snapshot, member)
	}

	id := f.nextSubID
	f.nextSubID++
	events := make(chan Event, subscriptionBuffer)
	f.subscribers[id] = events

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if ch, ok := f.subscribers[id]; ok {
			delete(f.subscribers, id)
			close(ch)
		}
	}
	return &Subscription{members: snapshot, events: events, cancel: cancel}, nil
}

func (f *fanout) stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return nil
	}
	f.stopped = true
	for id, ch := range f.subscribers {
		delete(f.subscribers, id)
		close(ch)
	}
	return nil
}

// broadcast requires the lock to be held.
func (f *fanout) broadcast(event Event) {
	for _, ch := range f.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
