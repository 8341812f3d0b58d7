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

// Package sharding distributes stateful, uniquely-identified entities
// across cooperating processes and routes messages to them no matter
// where the caller runs.
//
// Entities are grouped into shards; a shard is the unit of placement and
// relocation. A durable coordinator, elected to run alongside the oldest
// matching cluster member, records which region owns which shard. A region
// runs on every node, caches placement knowledge, buffers deliveries while
// a shard's location is unresolved and forwards to remote regions for
// shards hosted elsewhere. A shard actor owns the entity actors of one
// shard id, creating them on demand, passivating them gracefully and
// draining them during handoff. Relocation is a three-party protocol:
// the coordinator tells every region to forget the shard's location
// (BeginHandOff), then tells the owner to drain it (HandOff); once the
// owner confirms (ShardStopped) the shard becomes eligible for a fresh
// allocation.
//
// There is never more than one live instance of an entity; entity state is
// not moved between nodes, only the entity's location. Delivery is
// best-effort, at most once: callers needing stronger guarantees layer
// their own acknowledgment and retry on top.
package sharding
