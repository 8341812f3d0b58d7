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

import "context"

// Entity is the application actor managed by a shard. One instance exists
// per entity id cluster-wide; it processes its messages one at a time.
type Entity interface {
	// PreStart runs before the first message. A failure aborts the start
	// and any pending deliveries for the entity are dropped.
	PreStart(ctx context.Context) error
	// Receive handles a single message.
	Receive(ctx *EntityContext)
	// PostStop runs after the last message, once the entity has stopped.
	PostStop(ctx context.Context) error
}

// EntityFactory creates a fresh, uninitialized Entity instance. It is
// called whenever an entity id is started or restarted on a node.
type EntityFactory func() Entity

// EntityContext carries one delivery to an Entity.
type EntityContext struct {
	ctx      context.Context
	entityID string
	message  any
	sender   Ref
	self     Ref
	owner    Ref
}

// Context returns the context bound to the entity's lifecycle.
func (x *EntityContext) Context() context.Context {
	return x.ctx
}

// EntityID returns the id of the entity processing the message.
func (x *EntityContext) EntityID() string {
	return x.entityID
}

// Message returns the payload being delivered.
func (x *EntityContext) Message() any {
	return x.message
}

// Sender returns the sender's ref when one was supplied, nil otherwise.
func (x *EntityContext) Sender() Ref {
	return x.sender
}

// Self returns the ref of the entity itself, usable as the sender of
// outgoing messages.
func (x *EntityContext) Self() Ref {
	return x.self
}

// Respond sends a reply to the sender. It is a no-op when the message
// carried no sender.
func (x *EntityContext) Respond(message any) {
	if x.sender != nil {
		x.sender.Tell(message)
	}
}

// Passivate asks the owning shard to stop this entity gracefully once it
// has seen the given stop message. The shard parks later deliveries and
// replays them to a fresh incarnation if any arrive before the stop
// completes. A nil stopMessage stops the entity without a final message.
func (x *EntityContext) Passivate(stopMessage any) {
	x.owner.Tell(passivate{entityID: x.entityID, stopMessage: stopMessage})
}

// Shutdown stops the entity after the current message. An entity that was
// handed a passivation stop message calls this once its teardown is done.
func (x *EntityContext) Shutdown() {
	if c, ok := x.self.(*cell); ok {
		c.Stop()
	}
}
