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

import "github.com/tochemey/goshard/membership"

// envelope is an application message entering a region, optionally with
// the ref replies go back to.
type envelope struct {
	message any
	sender  Ref
}

// shardEnvelope is a delivery a region already resolved, handed to the
// local shard actor.
type shardEnvelope struct {
	entityID string
	payload  any
	sender   Ref
}

// coordinator-bound messages

type registerRegion struct {
	region Ref
}

type registerProxy struct {
	proxy Ref
}

// getShardHome asks for the shard's owning region, allocating one when
// none exists. A nil replyTo re-triggers allocation without a reply.
type getShardHome struct {
	shard   string
	replyTo Ref
}

// shardStarted acknowledges hostShard.
type shardStarted struct {
	shard  string
	region Ref
}

type gracefulShutdownRequest struct {
	region Ref
}

// allocateResult carries a strategy allocation decision back into the
// coordinator's mailbox.
type allocateResult struct {
	shard    string
	regionID string
	err      error
}

// rebalanceResult carries a strategy rebalance decision back into the
// coordinator's mailbox.
type rebalanceResult struct {
	shards []string
	err    error
}

type rebalanceTick struct{}

// rebalanceDone reports the outcome of one shard's handoff.
type rebalanceDone struct {
	shard string
	ok    bool
}

// resendHostShard fires while a hostShard is unacknowledged.
type resendHostShard struct {
	shard string
}

// regionTerminationDeadline fires when a region that went silent has used
// up its removal margin without re-registering.
type regionTerminationDeadline struct {
	regionID string
}

type currentRegionsRequest struct {
	replyTo Ref
}

type currentRegionsResponse struct {
	regions []string
}

// region-bound messages

// registerAck confirms a registration and names the coordinator.
type registerAck struct {
	coordinator Ref
}

// shardHome tells a region where a shard lives.
type shardHome struct {
	shard  string
	region Ref
}

// hostShard orders a region to host a shard.
type hostShard struct {
	shard string
}

// beginHandOff orders a region to forget a shard's location.
type beginHandOff struct {
	shard   string
	replyTo Ref
}

type beginHandOffAck struct {
	shard string
	from  Ref
}

// handOff orders the owning region to drain and stop the shard.
type handOff struct {
	shard   string
	replyTo Ref
}

// shardStopped confirms a handOff completed.
type shardStopped struct {
	shard string
}

type retryTick struct{}

type gracefulShutdown struct{}

type membershipChange struct {
	event membership.Event
}

type restartShard struct {
	shard string
}

// shard-bound messages

// passivate asks a shard to stop an entity gracefully.
type passivate struct {
	entityID    string
	stopMessage any
}

// handOffShard orders the shard actor to drain its entities.
type handOffShard struct {
	shard   string
	replyTo Ref
}

// handOffComplete reports that every entity of a draining shard stopped.
type handOffComplete struct{}

type restartEntity struct {
	entityID string
}

// rebalance-worker-bound messages

type workerTimeout struct{}
