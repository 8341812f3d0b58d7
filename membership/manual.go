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

import "sync"

// ManualFeed is a Feed driven programmatically. It backs single-process
// clusters and tests: calling Join and Leave stands in for a real failure
// detector deciding members are up or gone.
type ManualFeed struct {
	fanout     *fanout
	mu         sync.Mutex
	ageCounter uint64
}

// enforce compilation error
var _ Feed = (*ManualFeed)(nil)

// NewManualFeed creates an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{fanout: newFanout()}
}

// Join marks a member as up and broadcasts the change. Joining an address
// that is already up is a no-op returning the existing member.
func (f *ManualFeed) Join(address string, roles ...string) Member {
	f.mu.Lock()
	defer f.mu.Unlock()
	if member, ok := f.fanout.member(address); ok {
		return member
	}
	f.ageCounter++
	member := Member{Address: address, Roles: roles, Age: f.ageCounter}
	f.fanout.memberUp(member)
	return member
}

// Leave removes a member and broadcasts the change. Unknown addresses are
// ignored.
func (f *ManualFeed) Leave(address string) {
	f.fanout.memberRemoved(address)
}

// Subscribe opens a subscription delivering the current member snapshot and
// all subsequent changes in order.
func (f *ManualFeed) Subscribe() (*Subscription, error) {
	return f.fanout.subscribe()
}

// Stop tears the feed down and cancels every subscription.
func (f *ManualFeed) Stop() error {
	return f.fanout.stop()
}
