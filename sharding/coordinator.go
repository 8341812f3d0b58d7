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

	"github.com/tochemey/goshard/future"
	"github.com/tochemey/goshard/internal/scheduler"
	"github.com/tochemey/goshard/log"
	"github.com/tochemey/goshard/persistence"
)

// coordinator is the single source of truth for shard placement of one
// entity type. Placement decisions are persisted before they take effect,
// so a successor rebuilds the same table and regions only re-learn where
// the coordinator lives, never where the shards live.
type coordinator struct {
	cell     *cell
	typeName string
	config   *Config
	store    persistence.JournalStore
	strategy AllocationStrategy
	logger   log.Logger

	state *coordinatorState

	// live refs, repopulated by re-registration after failover
	regionRefs map[string]Ref
	proxyRefs  map[string]Ref

	gracefulShutdown    mapset.Set[string]
	rebalanceInProgress mapset.Set[string]
	// allocationInFlight keys the shards with a strategy call pending and
	// holds the refs awaiting the answer. At most one call per shard.
	allocationInFlight map[string][]Ref
	hostShardTimers    map[string]*time.Timer
	terminationTimers  map[string]*time.Timer

	persistenceID       string
	sequenceNumber      uint64
	eventsSinceSnapshot int

	scheduler *scheduler.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	onStopped func()
}

func newCoordinator(typeName string, store persistence.JournalStore, config *Config) *coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &coordinator{
		cell:                newCell(fmt.Sprintf("coordinator/%s", typeName)),
		typeName:            typeName,
		config:              config,
		store:               store,
		strategy:            config.strategy,
		logger:              config.logger,
		state:               newCoordinatorState(),
		regionRefs:          map[string]Ref{},
		proxyRefs:           map[string]Ref{},
		gracefulShutdown:    mapset.NewSet[string](),
		rebalanceInProgress: mapset.NewSet[string](),
		allocationInFlight:  map[string][]Ref{},
		hostShardTimers:     map[string]*time.Timer{},
		terminationTimers:   map[string]*time.Timer{},
		persistenceID:       fmt.Sprintf("sharding/%s/coordinator", typeName),
		scheduler:           scheduler.New(config.logger, 5*time.Second),
		ctx:                 ctx,
		cancel:              cancel,
	}
}

func (x *coordinator) ref() Ref {
	return x.cell
}

// start recovers the placement table and begins processing. Regions known
// to the recovered state but not re-registering within the prune window
// are treated as terminated.
func (x *coordinator) start(ctx context.Context) error {
	if err := x.recover(ctx); err != nil {
		return fmt.Errorf("coordinator %s: recovering state: %w", x.typeName, err)
	}

	x.cell.run(x.receive, x.postStop)

	pruneWindow := x.config.removalMargin + 2*x.config.retryInterval
	for regionID := range x.state.regions {
		x.scheduleTerminationDeadline(regionID, pruneWindow)
	}
	for _, proxyID := range x.state.proxies.ToSlice() {
		x.scheduleTerminationDeadline(proxyID, pruneWindow)
	}

	x.scheduler.Start(ctx)
	err := x.scheduler.SchedulePeriodic(
		fmt.Sprintf("rebalance/%s", x.typeName),
		x.config.rebalanceInterval,
		func() { x.cell.Tell(rebalanceTick{}) },
	)
	if err != nil {
		return fmt.Errorf("coordinator %s: scheduling rebalance: %w", x.typeName, err)
	}

	x.logger.Infof("coordinator %s started with %d regions, %d shards allocated",
		x.typeName, len(x.state.regions), len(x.state.shards))
	return nil
}

func (x *coordinator) stop(ctx context.Context) {
	x.scheduler.Stop(ctx)
	x.cell.Stop()
	select {
	case <-x.cell.Done():
	case <-ctx.Done():
	}
}

func (x *coordinator) postStop() {
	x.cancel()
	for _, timer := range x.hostShardTimers {
		timer.Stop()
	}
	for _, timer := range x.terminationTimers {
		timer.Stop()
	}
	if x.onStopped != nil {
		x.onStopped()
	}
	x.logger.Infof("coordinator %s stopped", x.typeName)
}

func (x *coordinator) recover(ctx context.Context) error {
	snapshot, err := x.store.LatestSnapshot(ctx, x.persistenceID)
	if err != nil {
		return err
	}

	fromSequence := uint64(1)
	if snapshot != nil {
		var snap coordinatorSnapshot
		if err := decodeSnapshot(snapshot, stateTypeCoordinator, &snap); err != nil {
			return err
		}
		x.state.restore(&snap)
		x.sequenceNumber = snapshot.SequenceNumber
		fromSequence = snapshot.SequenceNumber + 1
	}

	journals, err := x.store.ReplayJournals(ctx, x.persistenceID, fromSequence, persistence.MaxSequenceNumber)
	if err != nil {
		return err
	}
	for _, journal := range journals {
		event, err := decodeEvent(journal.EventType, journal.Payload)
		if err != nil {
			x.logger.Warnf("coordinator %s: skipping journal %d: %v", x.typeName, journal.SequenceNumber, err)
			x.sequenceNumber = journal.SequenceNumber
			continue
		}
		if err := x.state.apply(event); err != nil {
			x.logger.Warnf("coordinator %s: skipping inconsistent journal %d: %v", x.typeName, journal.SequenceNumber, err)
		}
		x.sequenceNumber = journal.SequenceNumber
	}
	return nil
}

func (x *coordinator) receive(message any) {
	switch msg := message.(type) {
	case registerRegion:
		x.handleRegisterRegion(msg.region)
	case registerProxy:
		x.handleRegisterProxy(msg.proxy)
	case getShardHome:
		x.handleGetShardHome(msg.shard, msg.replyTo)
	case allocateResult:
		x.handleAllocateResult(msg)
	case shardStarted:
		x.handleShardStarted(msg.shard)
	case terminated:
		x.handleTerminated(msg.ref)
	case regionTerminationDeadline:
		x.handleTerminationDeadline(msg.regionID)
	case rebalanceTick:
		x.handleRebalanceTick()
	case rebalanceResult:
		x.handleRebalanceResult(msg)
	case rebalanceDone:
		x.handleRebalanceDone(msg)
	case resendHostShard:
		x.handleResendHostShard(msg.shard)
	case gracefulShutdownRequest:
		x.handleGracefulShutdownRequest(msg.region)
	case currentRegionsRequest:
		x.handleCurrentRegions(msg.replyTo)
	default:
		x.logger.Warnf("coordinator %s: unhandled message %T", x.typeName, message)
	}
}

func (x *coordinator) handleRegisterRegion(region Ref) {
	regionID := region.ID()
	if timer, ok := x.terminationTimers[regionID]; ok {
		timer.Stop()
		delete(x.terminationTimers, regionID)
	}

	if _, known := x.state.regions[regionID]; !known {
		if !x.persist(&regionRegisteredEvent{RegionID: regionID}) {
			return
		}
	}
	x.regionRefs[regionID] = region
	region.watch(x.cell)
	region.Tell(registerAck{coordinator: x.cell})
	x.logger.Infof("coordinator %s: region %s registered", x.typeName, region.Name())

	// a first region unblocks shards orphaned by earlier terminations
	if len(x.regionRefs) == 1 {
		for _, shard := range x.state.unallocated.ToSlice() {
			x.cell.Tell(getShardHome{shard: shard})
		}
	}
}

func (x *coordinator) handleRegisterProxy(proxy Ref) {
	proxyID := proxy.ID()
	if timer, ok := x.terminationTimers[proxyID]; ok {
		timer.Stop()
		delete(x.terminationTimers, proxyID)
	}

	if !x.state.proxies.Contains(proxyID) {
		if !x.persist(&regionProxyRegisteredEvent{ProxyID: proxyID}) {
			return
		}
	}
	x.proxyRefs[proxyID] = proxy
	proxy.watch(x.cell)
	proxy.Tell(registerAck{coordinator: x.cell})
	x.logger.Infof("coordinator %s: proxy %s registered", x.typeName, proxy.Name())
}

func (x *coordinator) handleGetShardHome(shard string, replyTo Ref) {
	// shards mid-relocation have no home; the asking region retries
	if x.rebalanceInProgress.Contains(shard) {
		return
	}

	if regionID, ok := x.state.shards[shard]; ok {
		if ref, live := x.regionRefs[regionID]; live && replyTo != nil {
			replyTo.Tell(shardHome{shard: shard, region: ref})
		}
		return
	}

	if pending, ok := x.allocationInFlight[shard]; ok {
		if replyTo != nil {
			x.allocationInFlight[shard] = append(pending, replyTo)
		}
		return
	}

	allocations := x.activeAllocations()
	if len(allocations) == 0 {
		return
	}

	var requesters []Ref
	requesterID := ""
	if replyTo != nil {
		requesters = append(requesters, replyTo)
		requesterID = replyTo.ID()
	}
	x.allocationInFlight[shard] = requesters

	strategy := x.strategy
	fut := future.New(func() (string, error) {
		return strategy.AllocateShard(requesterID, shard, allocations)
	})
	cell := x.cell
	fut.AndThen(x.ctx, func(regionID string, err error) {
		cell.Tell(allocateResult{shard: shard, regionID: regionID, err: err})
	})
}

func (x *coordinator) handleAllocateResult(msg allocateResult) {
	requesters := x.allocationInFlight[msg.shard]
	delete(x.allocationInFlight, msg.shard)

	if msg.err != nil {
		x.logger.Warnf("coordinator %s: allocating shard %s: %v", x.typeName, msg.shard, msg.err)
		return
	}
	ref, live := x.regionRefs[msg.regionID]
	if !live || x.gracefulShutdown.Contains(msg.regionID) {
		x.logger.Warnf("coordinator %s: allocation of shard %s picked unavailable region %s", x.typeName, msg.shard, msg.regionID)
		return
	}
	if _, allocated := x.state.shards[msg.shard]; allocated {
		return
	}

	if !x.persist(&shardHomeAllocatedEvent{ShardID: msg.shard, RegionID: msg.regionID}) {
		return
	}
	x.sendHostShard(msg.shard, ref)
	for _, requester := range requesters {
		requester.Tell(shardHome{shard: msg.shard, region: ref})
	}
}

// sendHostShard orders the region to host the shard and arms the resend
// timer that fires until shardStarted comes back.
func (x *coordinator) sendHostShard(shard string, region Ref) {
	region.Tell(hostShard{shard: shard})
	cell := x.cell
	x.hostShardTimers[shard] = time.AfterFunc(x.config.shardStartTimeout, func() {
		cell.Tell(resendHostShard{shard: shard})
	})
}

func (x *coordinator) handleResendHostShard(shard string) {
	if _, pending := x.hostShardTimers[shard]; !pending {
		return
	}
	delete(x.hostShardTimers, shard)
	regionID, ok := x.state.shards[shard]
	if !ok {
		return
	}
	ref, live := x.regionRefs[regionID]
	if !live {
		return
	}
	x.logger.Warnf("coordinator %s: region %s has not confirmed shard %s, resending", x.typeName, ref.Name(), shard)
	x.sendHostShard(shard, ref)
}

func (x *coordinator) handleShardStarted(shard string) {
	if timer, ok := x.hostShardTimers[shard]; ok {
		timer.Stop()
		delete(x.hostShardTimers, shard)
	}
}

func (x *coordinator) handleTerminated(ref Ref) {
	id := ref.ID()
	switch {
	case x.regionRefs[id] == ref:
		delete(x.regionRefs, id)
		if x.config.removalMargin > 0 && !x.gracefulShutdown.Contains(id) {
			x.scheduleTerminationDeadline(id, x.config.removalMargin)
			return
		}
		x.regionTerminated(id)
	case x.proxyRefs[id] == ref:
		delete(x.proxyRefs, id)
		x.proxyTerminated(id)
	}
}

func (x *coordinator) scheduleTerminationDeadline(id string, after time.Duration) {
	if _, ok := x.terminationTimers[id]; ok {
		return
	}
	cell := x.cell
	x.terminationTimers[id] = time.AfterFunc(after, func() {
		cell.Tell(regionTerminationDeadline{regionID: id})
	})
}

// handleTerminationDeadline fires once a silent region's removal margin or
// the post-recovery prune window elapsed without a (re-)registration.
func (x *coordinator) handleTerminationDeadline(id string) {
	if timer, ok := x.terminationTimers[id]; ok {
		timer.Stop()
		delete(x.terminationTimers, id)
	}
	if _, live := x.regionRefs[id]; live {
		return
	}
	if _, live := x.proxyRefs[id]; live {
		return
	}
	if _, known := x.state.regions[id]; known {
		x.regionTerminated(id)
		return
	}
	if x.state.proxies.Contains(id) {
		x.proxyTerminated(id)
	}
}

func (x *coordinator) regionTerminated(id string) {
	shards, known := x.state.regions[id]
	if !known {
		return
	}
	affected := append([]string(nil), shards...)

	if !x.persist(&regionTerminatedEvent{RegionID: id}) {
		return
	}
	x.gracefulShutdown.Remove(id)
	x.logger.Infof("coordinator %s: region %s terminated, reallocating %d shards", x.typeName, id, len(affected))

	for _, shard := range affected {
		if timer, ok := x.hostShardTimers[shard]; ok {
			timer.Stop()
			delete(x.hostShardTimers, shard)
		}
		x.rebalanceInProgress.Remove(shard)
		x.cell.Tell(getShardHome{shard: shard})
	}
}

func (x *coordinator) proxyTerminated(id string) {
	if !x.state.proxies.Contains(id) {
		return
	}
	x.persist(&regionProxyTerminatedEvent{ProxyID: id})
}

func (x *coordinator) handleRebalanceTick() {
	if len(x.state.regions) == 0 {
		return
	}
	allocations := x.activeAllocations()
	inProgress := x.rebalanceInProgress.Clone()

	strategy := x.strategy
	fut := future.New(func() ([]string, error) {
		shards, err := strategy.Rebalance(allocations, inProgress)
		if err != nil {
			return nil, err
		}
		return shards.ToSlice(), nil
	})
	cell := x.cell
	fut.AndThen(x.ctx, func(shards []string, err error) {
		cell.Tell(rebalanceResult{shards: shards, err: err})
	})
}

func (x *coordinator) handleRebalanceResult(msg rebalanceResult) {
	if msg.err != nil {
		x.logger.Warnf("coordinator %s: rebalance decision failed: %v", x.typeName, msg.err)
		return
	}
	for _, shard := range msg.shards {
		x.continueRebalance(shard)
	}
}

// continueRebalance starts the three-party handoff of one shard.
func (x *coordinator) continueRebalance(shard string) {
	if x.rebalanceInProgress.Contains(shard) {
		return
	}
	regionID, ok := x.state.shards[shard]
	if !ok {
		return
	}
	source, live := x.regionRefs[regionID]
	if !live {
		return
	}

	x.rebalanceInProgress.Add(shard)
	x.logger.Infof("coordinator %s: rebalancing shard %s away from %s", x.typeName, shard, source.Name())

	participants := make([]Ref, 0, len(x.regionRefs)+len(x.proxyRefs))
	for _, ref := range x.regionRefs {
		participants = append(participants, ref)
	}
	for _, ref := range x.proxyRefs {
		participants = append(participants, ref)
	}

	worker := newRebalanceWorker(shard, source, x.cell, x.config.handOffTimeout, x.logger)
	worker.start(participants)
}

func (x *coordinator) handleRebalanceDone(msg rebalanceDone) {
	if !x.rebalanceInProgress.Contains(msg.shard) {
		return
	}
	x.rebalanceInProgress.Remove(msg.shard)
	owner, allocated := x.state.shards[msg.shard]

	if !msg.ok {
		// the tick retries later; a shutting-down owner must re-request
		if allocated && x.gracefulShutdown.Contains(owner) {
			x.gracefulShutdown.Remove(owner)
		}
		x.logger.Warnf("coordinator %s: handoff of shard %s failed", x.typeName, msg.shard)
		return
	}
	if !allocated {
		return
	}
	if !x.persist(&shardHomeDeallocatedEvent{ShardID: msg.shard}) {
		return
	}
	x.cell.Tell(getShardHome{shard: msg.shard})
}

func (x *coordinator) handleGracefulShutdownRequest(region Ref) {
	regionID := region.ID()
	if x.gracefulShutdown.Contains(regionID) {
		return
	}
	shards, known := x.state.regions[regionID]
	if !known {
		return
	}
	x.gracefulShutdown.Add(regionID)
	x.logger.Infof("coordinator %s: region %s leaving gracefully, moving %d shards", x.typeName, region.Name(), len(shards))
	for _, shard := range append([]string(nil), shards...) {
		x.continueRebalance(shard)
	}
}

func (x *coordinator) handleCurrentRegions(replyTo Ref) {
	if replyTo == nil {
		return
	}
	regions := make([]string, 0, len(x.state.regions))
	for regionID := range x.state.regions {
		if ref, live := x.regionRefs[regionID]; live {
			regions = append(regions, ref.Name())
			continue
		}
		regions = append(regions, regionID)
	}
	replyTo.Tell(currentRegionsResponse{regions: regions})
}

// activeAllocations returns the allocation table restricted to regions
// that can accept shards right now.
func (x *coordinator) activeAllocations() map[string][]string {
	allocations := x.state.allocations()
	for regionID := range allocations {
		_, live := x.regionRefs[regionID]
		if !live || x.gracefulShutdown.Contains(regionID) {
			delete(allocations, regionID)
		}
	}
	return allocations
}

// persist appends the event and folds it into the state. A write failure
// stops the coordinator: its host restarts it and recovery resynchronizes
// with the journal, which is the only safe reaction to a divergence
// between memory and disk.
func (x *coordinator) persist(event any) bool {
	x.saveSnapshotWhenNeeded()

	eventType, payload, err := encodeEvent(event)
	if err != nil {
		x.logger.Errorf("coordinator %s: %v", x.typeName, err)
		return false
	}

	journal := &persistence.Journal{
		PersistenceID:  x.persistenceID,
		SequenceNumber: x.sequenceNumber + 1,
		EventType:      eventType,
		Payload:        payload,
		Timestamp:      time.Now().Unix(),
	}
	if err := x.store.WriteJournals(x.ctx, []*persistence.Journal{journal}); err != nil {
		x.logger.Errorf("coordinator %s: journal append failed, stopping: %v", x.typeName, err)
		x.cell.Stop()
		return false
	}
	x.sequenceNumber++
	x.eventsSinceSnapshot++

	if err := x.state.apply(event); err != nil {
		x.logger.Errorf("coordinator %s: applying %s: %v", x.typeName, eventType, err)
		return false
	}
	return true
}

func (x *coordinator) saveSnapshotWhenNeeded() {
	if x.eventsSinceSnapshot < x.config.snapshotAfter {
		return
	}
	x.eventsSinceSnapshot = 0

	snapshot, err := encodeSnapshot(x.persistenceID, x.sequenceNumber, stateTypeCoordinator, x.state.snapshot())
	if err != nil {
		x.logger.Warnf("coordinator %s: %v", x.typeName, err)
		return
	}
	// a failed snapshot only means a longer replay next time
	if err := x.store.SaveSnapshot(x.ctx, snapshot); err != nil {
		x.logger.Warnf("coordinator %s: saving snapshot: %v", x.typeName, err)
	}
}
