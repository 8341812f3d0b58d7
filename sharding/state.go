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
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// coordinatorState is the durable placement table, rebuilt deterministically
// by folding the journal. It never holds live refs: those are runtime
// knowledge repopulated by re-registration after a coordinator failover.
type coordinatorState struct {
	// shards maps a shard id to its owning region id.
	shards map[string]string
	// regions maps a region id to its shards in allocation order. The
	// order decides which shard a rebalance picks first.
	regions map[string][]string
	// proxies are registered proxy-only region ids.
	proxies mapset.Set[string]
	// unallocated are shards whose owner terminated and that await a
	// fresh allocation.
	unallocated mapset.Set[string]
}

func newCoordinatorState() *coordinatorState {
	return &coordinatorState{
		shards:      map[string]string{},
		regions:     map[string][]string{},
		proxies:     mapset.NewSet[string](),
		unallocated: mapset.NewSet[string](),
	}
}

// apply folds one durable event into the state. An error means the event
// is inconsistent with the current state; callers skip such events during
// a defensive replay and must not persist them in the first place.
func (x *coordinatorState) apply(event any) error {
	switch evt := event.(type) {
	case *regionRegisteredEvent:
		if _, ok := x.regions[evt.RegionID]; !ok {
			x.regions[evt.RegionID] = nil
		}
	case *regionProxyRegisteredEvent:
		x.proxies.Add(evt.ProxyID)
	case *regionTerminatedEvent:
		shards, ok := x.regions[evt.RegionID]
		if !ok {
			return fmt.Errorf("terminated region %s is not registered", evt.RegionID)
		}
		for _, shard := range shards {
			delete(x.shards, shard)
			x.unallocated.Add(shard)
		}
		delete(x.regions, evt.RegionID)
	case *regionProxyTerminatedEvent:
		if !x.proxies.Contains(evt.ProxyID) {
			return fmt.Errorf("terminated proxy %s is not registered", evt.ProxyID)
		}
		x.proxies.Remove(evt.ProxyID)
	case *shardHomeAllocatedEvent:
		if _, ok := x.regions[evt.RegionID]; !ok {
			return fmt.Errorf("shard %s allocated to unregistered region %s", evt.ShardID, evt.RegionID)
		}
		if owner, ok := x.shards[evt.ShardID]; ok {
			return fmt.Errorf("shard %s is already allocated to region %s", evt.ShardID, owner)
		}
		x.shards[evt.ShardID] = evt.RegionID
		x.regions[evt.RegionID] = append(x.regions[evt.RegionID], evt.ShardID)
		x.unallocated.Remove(evt.ShardID)
	case *shardHomeDeallocatedEvent:
		regionID, ok := x.shards[evt.ShardID]
		if !ok {
			return fmt.Errorf("deallocated shard %s has no home", evt.ShardID)
		}
		delete(x.shards, evt.ShardID)
		x.regions[regionID] = removeString(x.regions[regionID], evt.ShardID)
		x.unallocated.Add(evt.ShardID)
	default:
		return fmt.Errorf("unexpected coordinator event %T", event)
	}
	return nil
}

// allocations returns an independent copy of the region to shards table,
// safe to hand to an allocation strategy running off the mailbox.
func (x *coordinatorState) allocations() map[string][]string {
	out := make(map[string][]string, len(x.regions))
	for regionID, shards := range x.regions {
		out[regionID] = append([]string(nil), shards...)
	}
	return out
}

func (x *coordinatorState) snapshot() *coordinatorSnapshot {
	snap := &coordinatorSnapshot{
		Shards:      make(map[string]string, len(x.shards)),
		Regions:     make(map[string][]string, len(x.regions)),
		Proxies:     x.proxies.ToSlice(),
		Unallocated: x.unallocated.ToSlice(),
	}
	for shard, regionID := range x.shards {
		snap.Shards[shard] = regionID
	}
	for regionID, shards := range x.regions {
		snap.Regions[regionID] = append([]string(nil), shards...)
	}
	// deterministic snapshots make recovery reproducible byte for byte
	sort.Strings(snap.Proxies)
	sort.Strings(snap.Unallocated)
	return snap
}

func (x *coordinatorState) restore(snap *coordinatorSnapshot) {
	x.shards = make(map[string]string, len(snap.Shards))
	for shard, regionID := range snap.Shards {
		x.shards[shard] = regionID
	}
	x.regions = make(map[string][]string, len(snap.Regions))
	for regionID, shards := range snap.Regions {
		x.regions[regionID] = append([]string(nil), shards...)
	}
	x.proxies = mapset.NewSet(snap.Proxies...)
	x.unallocated = mapset.NewSet(snap.Unallocated...)
}

// shardState is the durable entity set of one remembering shard.
type shardState struct {
	entities mapset.Set[string]
}

func newShardState() *shardState {
	return &shardState{entities: mapset.NewSet[string]()}
}

func (x *shardState) apply(event any) error {
	switch evt := event.(type) {
	case *entityStartedEvent:
		x.entities.Add(evt.EntityID)
	case *entityStoppedEvent:
		x.entities.Remove(evt.EntityID)
	default:
		return fmt.Errorf("unexpected shard event %T", event)
	}
	return nil
}

func (x *shardState) snapshot() *shardSnapshot {
	entities := x.entities.ToSlice()
	sort.Strings(entities)
	return &shardSnapshot{Entities: entities}
}

func (x *shardState) restore(snap *shardSnapshot) {
	x.entities = mapset.NewSet(snap.Entities...)
}

func removeString(values []string, target string) []string {
	for i, value := range values {
		if value == target {
			return append(values[:i], values[i+1:]...)
		}
	}
	return values
}
