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

import "go.uber.org/atomic"

// bufferedMessage is one parked delivery.
type bufferedMessage struct {
	message any
	sender  Ref
}

// messageBuffer parks deliveries for keys whose destination is not yet
// resolved. One instance is shared by all pending keys of its owner, so
// the capacity bounds the owner as a whole, not each key. When full, the
// newest message is dropped.
type messageBuffer struct {
	capacity int
	total    int
	buffers  map[string][]bufferedMessage
	dropped  *atomic.Int64
}

func newMessageBuffer(capacity int) *messageBuffer {
	return &messageBuffer{
		capacity: capacity,
		buffers:  map[string][]bufferedMessage{},
		dropped:  atomic.NewInt64(0),
	}
}

// append parks a delivery under the key, creating the key when absent. It
// reports false when the shared capacity is exhausted; the key stays
// tracked either way so the pending marker survives the drop.
func (x *messageBuffer) append(key string, message any, sender Ref) bool {
	entries, ok := x.buffers[key]
	if !ok {
		x.buffers[key] = nil
	}
	if x.total >= x.capacity {
		x.dropped.Inc()
		return false
	}
	x.buffers[key] = append(entries, bufferedMessage{message: message, sender: sender})
	x.total++
	return true
}

// open tracks the key with an empty buffer so contains reports true before
// any delivery is parked.
func (x *messageBuffer) open(key string) {
	if _, ok := x.buffers[key]; !ok {
		x.buffers[key] = nil
	}
}

// contains reports whether the key is tracked.
func (x *messageBuffer) contains(key string) bool {
	_, ok := x.buffers[key]
	return ok
}

// take removes the key and returns its parked deliveries in arrival order.
func (x *messageBuffer) take(key string) []bufferedMessage {
	entries, ok := x.buffers[key]
	if !ok {
		return nil
	}
	delete(x.buffers, key)
	x.total -= len(entries)
	return entries
}

// drop discards the key and everything parked under it.
func (x *messageBuffer) drop(key string) {
	entries, ok := x.buffers[key]
	if !ok {
		return
	}
	delete(x.buffers, key)
	x.total -= len(entries)
	x.dropped.Add(int64(len(entries)))
}

// keys returns the tracked keys in unspecified order.
func (x *messageBuffer) keys() []string {
	keys := make([]string, 0, len(x.buffers))
	for key := range x.buffers {
		keys = append(keys, key)
	}
	return keys
}

func (x *messageBuffer) isEmpty() bool {
	return len(x.buffers) == 0
}

func (x *messageBuffer) size() int {
	return x.total
}

// droppedCount returns how many deliveries were discarded so far.
func (x *messageBuffer) droppedCount() int64 {
	return x.dropped.Load()
}
