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

// Package membership delivers cluster membership as an ordered feed of
// member-up and member-removed events plus a point-in-time snapshot.
// Failure detection itself lives in the feed implementation; consumers
// only ever see the resulting events.
package membership

import "slices"

// EventType distinguishes membership feed events.
type EventType int

const (
	// MemberUp signals a member that joined and is considered up.
	MemberUp EventType = iota
	// MemberRemoved signals a member that left or was removed after being
	// declared unreachable.
	MemberRemoved
)

// Member describes one cluster node as seen by the feed.
type Member struct {
	// Address uniquely identifies the member; it stays stable for the
	// member's lifetime and differs across process restarts.
	Address string
	// Roles are the role tags carried by the member.
	Roles []string
	// Age orders members by join time; a smaller age means an older member.
	// Ages are never reused within a feed's lifetime.
	Age uint64
}

// HasRole reports whether the member carries the given role.
// An empty role matches every member.
func (m Member) HasRole(role string) bool {
	if role == "" {
		return true
	}
	return slices.Contains(m.Roles, role)
}

// OlderThan reports whether the member joined before the other member.
// Ties are broken by address so the order is total.
func (m Member) OlderThan(other Member) bool {
	if m.Age != other.Age {
		return m.Age < other.Age
	}
	return m.Address < other.Address
}

// Event is a single membership change.
type Event struct {
	Type   EventType
	Member Member
}

// Subscription is a live view on the feed: the member snapshot taken at
// subscribe time plus every change after it, in order.
type Subscription struct {
	members []Member
	events  chan Event
	cancel  func()
}

// Members returns the snapshot taken when the subscription was opened.
func (s *Subscription) Members() []Member {
	return s.members
}

// Events returns the ordered change feed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Cancel tears the subscription down. The events channel is closed.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Feed is the membership source consumed by shard regions.
type Feed interface {
	// Subscribe opens a subscription delivering the current member snapshot
	// and all subsequent changes in order.
	Subscribe() (*Subscription, error)
	// Stop tears the feed down and cancels every subscription.
	Stop() error
}
