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
	"context"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/emirpasic/gods/sets/treeset"

	"github.com/tochemey/goshard/internal/ticker"
	"github.com/tochemey/goshard/log"
	"github.com/tochemey/goshard/membership"
	"github.com/tochemey/goshard/persistence"
)

// coordinatorResolver locates the coordinator of an entity type on the
// given cluster member. It returns nil while the coordinator is not yet
// reachable there; the region keeps retrying.
type coordinatorResolver func(oldest membership.Member) Ref

// region is the per-node entry point of one entity type. It resolves a
// shard's owner through its location cache, parks deliveries while an
// owner is unknown and forwards to the owning region or the local shard
// actor. A proxy-only region routes without ever hosting shards.
type region struct {
	cell      *cell
	typeName  string
	address   string
	proxyOnly bool
	config    *Config
	extractor Extractor
	factory   EntityFactory
	store     persistence.JournalStore
	resolver  coordinatorResolver
	logger    log.Logger

	// members carries the matching cluster members ordered oldest first;
	// the coordinator runs alongside the head.
	members         *treeset.Set
	membersByAddr   map[string]membership.Member
	coordinator     Ref
	regionByShard   map[string]Ref
	shardsByRegion  map[string]mapset.Set[string]
	shards          map[string]*shard
	shardIDByCell   map[string]string
	handingOff      mapset.Set[string]
	buffer          *messageBuffer
	shuttingDown    bool
	restartPending  mapset.Set[string]
	retryTicker     *ticker.Ticker
	stopPump        chan struct{}
	onStopped       func()
}

func memberComparator(a, b interface{}) int {
	left := a.(membership.Member)
	right := b.(membership.Member)
	if left.Address == right.Address {
		return 0
	}
	if left.OlderThan(right) {
		return -1
	}
	return 1
}

func newRegion(
	typeName string,
	address string,
	proxyOnly bool,
	factory EntityFactory,
	extractor Extractor,
	store persistence.JournalStore,
	resolver coordinatorResolver,
	config *Config,
) *region {
	kind := "region"
	if proxyOnly {
		kind = "region-proxy"
	}
	return &region{
		cell:           newCell(fmt.Sprintf("%s/%s/%s", kind, typeName, address)),
		typeName:       typeName,
		address:        address,
		proxyOnly:      proxyOnly,
		config:         config,
		extractor:      extractor,
		factory:        factory,
		store:          store,
		resolver:       resolver,
		logger:         config.logger,
		members:        treeset.NewWith(memberComparator),
		membersByAddr:  map[string]membership.Member{},
		regionByShard:  map[string]Ref{},
		shardsByRegion: map[string]mapset.Set[string]{},
		shards:         map[string]*shard{},
		shardIDByCell:  map[string]string{},
		handingOff:     mapset.NewSet[string](),
		buffer:         newMessageBuffer(config.bufferSize),
		restartPending: mapset.NewSet[string](),
		stopPump:       make(chan struct{}),
	}
}

func (x *region) ref() Ref {
	return x.cell
}

func (x *region) start(_ context.Context) error {
	x.cell.run(x.receive, x.postStop)

	x.retryTicker = ticker.New(x.config.retryInterval)
	x.retryTicker.Start()
	go func() {
		for {
			select {
			case <-x.stopPump:
				return
			case <-x.retryTicker.Ticks:
				x.cell.Tell(retryTick{})
			}
		}
	}()

	x.logger.Infof("region %s started on %s", x.typeName, x.address)
	return nil
}

func (x *region) stop(ctx context.Context) {
	x.cell.Stop()
	select {
	case <-x.cell.Done():
	case <-ctx.Done():
	}
}

func (x *region) postStop() {
	x.retryTicker.Stop()
	close(x.stopPump)
	for _, s := range x.shards {
		s.cell.Stop()
	}
	if x.onStopped != nil {
		x.onStopped()
	}
	x.logger.Infof("region %s on %s stopped", x.typeName, x.address)
}

func (x *region) receive(message any) {
	switch msg := message.(type) {
	case envelope:
		x.deliver(msg)
	case registerAck:
		x.handleRegisterAck(msg.coordinator)
	case shardHome:
		x.handleShardHome(msg.shard, msg.region)
	case hostShard:
		x.handleHostShard(msg.shard)
	case beginHandOff:
		x.handleBeginHandOff(msg.shard, msg.replyTo)
	case handOff:
		x.handleHandOff(msg.shard, msg.replyTo)
	case terminated:
		x.handleTerminated(msg.ref)
	case restartShard:
		x.handleRestartShard(msg.shard)
	case retryTick:
		x.handleRetryTick()
	case gracefulShutdown:
		x.handleGracefulShutdown()
	case membershipChange:
		x.handleMembershipChange(msg.event)
	case currentRegionsRequest:
		if x.coordinator != nil {
			x.coordinator.Tell(msg)
			return
		}
		msg.replyTo.Tell(currentRegionsResponse{})
	default:
		x.logger.Warnf("region %s: unhandled message %T", x.typeName, message)
	}
}

// deliver routes one application message: hosted shards go to the local
// shard actor, known remote shards are forwarded, unknown locations are
// parked and asked for, once, until answered.
func (x *region) deliver(env envelope) {
	entityID, payload, ok := x.extractor.ExtractEntity(env.message)
	if !ok || entityID == "" {
		x.logger.Warnf("region %s: dropping message %T without an entity id", x.typeName, env.message)
		return
	}
	shardID := x.extractor.ExtractShard(env.message)
	if shardID == "" {
		x.logger.Warnf("region %s: dropping message %T without a shard id", x.typeName, env.message)
		return
	}

	if owner, located := x.regionByShard[shardID]; located {
		if owner.ID() == x.cell.ID() {
			s := x.getShard(shardID)
			if s == nil {
				return
			}
			s.cell.Tell(shardEnvelope{entityID: entityID, payload: payload, sender: env.sender})
			return
		}
		owner.Tell(env)
		return
	}

	requested := x.buffer.contains(shardID)
	if !x.buffer.append(shardID, env.message, env.sender) {
		x.logger.Warnf("region %s: buffer full (%d), dropping message for shard %s",
			x.typeName, x.buffer.size(), shardID)
	}
	if !requested && x.coordinator != nil {
		x.coordinator.Tell(getShardHome{shard: shardID, replyTo: x.cell})
	}
}

func (x *region) handleRegisterAck(coordinator Ref) {
	x.coordinator = coordinator
	coordinator.watch(x.cell)
	x.logger.Infof("region %s on %s registered with coordinator", x.typeName, x.address)

	for _, shardID := range x.buffer.keys() {
		coordinator.Tell(getShardHome{shard: shardID, replyTo: x.cell})
	}
	if x.shuttingDown {
		coordinator.Tell(gracefulShutdownRequest{region: x.cell})
	}
}

func (x *region) handleShardHome(shardID string, owner Ref) {
	x.setShardLocation(shardID, owner)
	if owner.ID() != x.cell.ID() {
		owner.watch(x.cell)
	} else if x.getShard(shardID) == nil {
		return
	}
	x.flushBuffered(shardID)
}

func (x *region) handleHostShard(shardID string) {
	if x.proxyOnly {
		x.logger.Warnf("region proxy %s was asked to host shard %s", x.typeName, shardID)
		return
	}
	x.setShardLocation(shardID, x.cell)
	s := x.getShard(shardID)
	if s == nil {
		return
	}
	if x.coordinator != nil {
		x.coordinator.Tell(shardStarted{shard: shardID, region: x.cell})
	}
	x.flushBuffered(shardID)
}

func (x *region) handleBeginHandOff(shardID string, replyTo Ref) {
	if owner, located := x.regionByShard[shardID]; located {
		if shards, ok := x.shardsByRegion[owner.ID()]; ok {
			shards.Remove(shardID)
		}
		delete(x.regionByShard, shardID)
	}
	replyTo.Tell(beginHandOffAck{shard: shardID, from: x.cell})
}

func (x *region) handleHandOff(shardID string, replyTo Ref) {
	// parked deliveries would reach a draining shard, drop them
	x.buffer.drop(shardID)
	s, hosted := x.shards[shardID]
	if !hosted {
		replyTo.Tell(shardStopped{shard: shardID})
		return
	}
	x.handingOff.Add(shardID)
	s.cell.Tell(handOffShard{shard: shardID, replyTo: replyTo})
}

func (x *region) handleTerminated(ref Ref) {
	id := ref.ID()
	if x.coordinator != nil && id == x.coordinator.ID() {
		x.coordinator = nil
		return
	}
	if shardID, hosted := x.shardIDByCell[id]; hosted {
		x.localShardTerminated(shardID, id)
		return
	}
	if shards, known := x.shardsByRegion[id]; known {
		for _, shardID := range shards.ToSlice() {
			delete(x.regionByShard, shardID)
		}
		delete(x.shardsByRegion, id)
	}
}

func (x *region) localShardTerminated(shardID, cellID string) {
	delete(x.shards, shardID)
	delete(x.shardIDByCell, cellID)

	if x.handingOff.Contains(shardID) {
		x.handingOff.Remove(shardID)
		return
	}
	if x.config.rememberEntities {
		x.logger.Warnf("region %s: shard %s terminated unexpectedly, restarting in %v",
			x.typeName, shardID, x.config.entityRestartBackoff)
		x.restartPending.Add(shardID)
		cell := x.cell
		time.AfterFunc(x.config.entityRestartBackoff, func() {
			cell.Tell(restartShard{shard: shardID})
		})
		return
	}
	x.logger.Warnf("region %s: shard %s terminated unexpectedly", x.typeName, shardID)
}

func (x *region) handleRestartShard(shardID string) {
	x.restartPending.Remove(shardID)
	if _, running := x.shards[shardID]; running {
		return
	}
	owner, located := x.regionByShard[shardID]
	if !located || owner.ID() != x.cell.ID() {
		return
	}
	x.getShard(shardID)
}

func (x *region) handleRetryTick() {
	if x.coordinator == nil {
		x.register()
	} else {
		if x.shuttingDown {
			x.coordinator.Tell(gracefulShutdownRequest{region: x.cell})
		}
		for _, shardID := range x.buffer.keys() {
			x.coordinator.Tell(getShardHome{shard: shardID, replyTo: x.cell})
		}
	}

	if x.shuttingDown && len(x.shards) == 0 && x.buffer.isEmpty() && x.restartPending.IsEmpty() {
		x.cell.Stop()
	}
}

func (x *region) handleGracefulShutdown() {
	if x.shuttingDown {
		return
	}
	x.shuttingDown = true
	if x.proxyOnly || (len(x.shards) == 0 && x.buffer.isEmpty()) {
		x.cell.Stop()
		return
	}
	if x.coordinator != nil {
		x.coordinator.Tell(gracefulShutdownRequest{region: x.cell})
	}
}

func (x *region) handleMembershipChange(event membership.Event) {
	if !event.Member.HasRole(x.config.role) {
		return
	}

	previousOldest, hadOldest := x.oldestMember()
	switch event.Type {
	case membership.MemberUp:
		if _, known := x.membersByAddr[event.Member.Address]; known {
			return
		}
		x.membersByAddr[event.Member.Address] = event.Member
		x.members.Add(event.Member)
	case membership.MemberRemoved:
		member, known := x.membersByAddr[event.Member.Address]
		if !known {
			return
		}
		delete(x.membersByAddr, event.Member.Address)
		x.members.Remove(member)
	}

	oldest, hasOldest := x.oldestMember()
	if !hasOldest {
		x.coordinator = nil
		return
	}
	if !hadOldest || previousOldest.Address != oldest.Address {
		// coordinator moved with the oldest member
		x.coordinator = nil
	}
	if x.coordinator == nil {
		x.register()
	}
}

func (x *region) oldestMember() (membership.Member, bool) {
	iterator := x.members.Iterator()
	if !iterator.First() {
		return membership.Member{}, false
	}
	return iterator.Value().(membership.Member), true
}

// register locates the coordinator next to the oldest matching member and
// introduces this region. The ack arrives asynchronously; until then the
// retry tick keeps registering.
func (x *region) register() {
	oldest, ok := x.oldestMember()
	if !ok {
		return
	}
	coordinator := x.resolver(oldest)
	if coordinator == nil {
		x.logger.Debugf("region %s on %s: coordinator not reachable on %s yet", x.typeName, x.address, oldest.Address)
		return
	}
	if x.proxyOnly {
		coordinator.Tell(registerProxy{proxy: x.cell})
		return
	}
	coordinator.Tell(registerRegion{region: x.cell})
}

func (x *region) setShardLocation(shardID string, owner Ref) {
	if previous, located := x.regionByShard[shardID]; located {
		if previous.ID() == owner.ID() {
			return
		}
		if shards, ok := x.shardsByRegion[previous.ID()]; ok {
			shards.Remove(shardID)
		}
	}
	x.regionByShard[shardID] = owner
	shards, ok := x.shardsByRegion[owner.ID()]
	if !ok {
		shards = mapset.NewSet[string]()
		x.shardsByRegion[owner.ID()] = shards
	}
	shards.Add(shardID)
}

// getShard returns the local shard actor, starting and recovering it when
// needed. A nil return means the shard failed to recover; deliveries to it
// are dropped until a later attempt succeeds.
func (x *region) getShard(shardID string) *shard {
	if s, running := x.shards[shardID]; running {
		return s
	}
	if x.proxyOnly {
		return nil
	}
	s := newShard(x.typeName, shardID, x.factory, x.store, x.config)
	if err := s.start(context.Background()); err != nil {
		x.logger.Errorf("region %s: starting shard %s: %v", x.typeName, shardID, err)
		return nil
	}
	x.shards[shardID] = s
	x.shardIDByCell[s.cell.ID()] = shardID
	s.cell.watch(x.cell)
	return s
}

func (x *region) flushBuffered(shardID string) {
	for _, parked := range x.buffer.take(shardID) {
		x.deliver(envelope{message: parked.message, sender: parked.sender})
	}
}
