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
	mapset "github.com/deckarep/golang-set/v2"
)

// AllocationStrategy decides shard placement and relocation. The
// coordinator calls it off its mailbox, so implementations must be safe
// for concurrent use and must not retain the maps they are given.
type AllocationStrategy interface {
	// AllocateShard picks the region that must host the shard, among the
	// keys of currentAllocations (region id to shards it hosts). The
	// requester is the region id that asked, empty when the allocation
	// was triggered internally.
	AllocateShard(requester string, shardID string, currentAllocations map[string][]string) (string, error)

	// Rebalance returns the shards to relocate given the current
	// allocations. Shards in rebalanceInProgress are already moving and
	// must not be returned again.
	Rebalance(currentAllocations map[string][]string, rebalanceInProgress mapset.Set[string]) (mapset.Set[string], error)
}

// LeastShardAllocationStrategy allocates new shards to the region with the
// fewest shards and moves shards off the most loaded region once the gap
// to the least loaded reaches the rebalance threshold. Ties pick the
// lexicographically smallest region id so every coordinator incarnation
// decides identically.
type LeastShardAllocationStrategy struct {
	rebalanceThreshold       int
	maxSimultaneousRebalance int
}

// enforce compilation error
var _ AllocationStrategy = (*LeastShardAllocationStrategy)(nil)

// NewLeastShardAllocationStrategy creates the default strategy.
// rebalanceThreshold is the load difference that triggers a relocation;
// maxSimultaneousRebalance caps how many shards move at once.
func NewLeastShardAllocationStrategy(rebalanceThreshold, maxSimultaneousRebalance int) *LeastShardAllocationStrategy {
	return &LeastShardAllocationStrategy{
		rebalanceThreshold:       rebalanceThreshold,
		maxSimultaneousRebalance: maxSimultaneousRebalance,
	}
}

func (x *LeastShardAllocationStrategy) AllocateShard(_ string, _ string, currentAllocations map[string][]string) (string, error) {
	if len(currentAllocations) == 0 {
		return "", ErrNoRegionAvailable
	}

	selected := ""
	selectedCount := 0
	for regionID, shards := range currentAllocations {
		count := len(shards)
		if selected == "" || count < selectedCount || (count == selectedCount && regionID < selected) {
			selected = regionID
			selectedCount = count
		}
	}
	return selected, nil
}

func (x *LeastShardAllocationStrategy) Rebalance(currentAllocations map[string][]string, rebalanceInProgress mapset.Set[string]) (mapset.Set[string], error) {
	result := mapset.NewSet[string]()
	if rebalanceInProgress.Cardinality() >= x.maxSimultaneousRebalance || len(currentAllocations) < 2 {
		return result, nil
	}

	// loads exclude shards already moving: they are leaving their region
	mostLoaded, mostCount := "", -1
	leastCount := -1
	for regionID, shards := range currentAllocations {
		count := 0
		for _, shard := range shards {
			if !rebalanceInProgress.Contains(shard) {
				count++
			}
		}
		if count > mostCount || (count == mostCount && regionID < mostLoaded) {
			mostLoaded = regionID
			mostCount = count
		}
		if leastCount == -1 || count < leastCount {
			leastCount = count
		}
	}

	if mostCount-leastCount < x.rebalanceThreshold {
		return result, nil
	}

	// pick the oldest allocation of the most loaded region
	for _, shard := range currentAllocations[mostLoaded] {
		if !rebalanceInProgress.Contains(shard) {
			result.Add(shard)
			break
		}
	}
	return result, nil
}
