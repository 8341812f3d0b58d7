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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorStateFold(t *testing.T) {
	state := newCoordinatorState()

	require.NoError(t, state.apply(&regionRegisteredEvent{RegionID: "region-a"}))
	require.NoError(t, state.apply(&regionRegisteredEvent{RegionID: "region-b"}))
	require.NoError(t, state.apply(&shardHomeAllocatedEvent{ShardID: "1", RegionID: "region-a"}))
	require.NoError(t, state.apply(&shardHomeAllocatedEvent{ShardID: "2", RegionID: "region-a"}))
	require.NoError(t, state.apply(&shardHomeAllocatedEvent{ShardID: "3", RegionID: "region-b"}))

	assert.Equal(t, "region-a", state.shards["1"])
	assert.Equal(t, []string{"1", "2"}, state.regions["region-a"])
	assert.Equal(t, []string{"3"}, state.regions["region-b"])

	require.NoError(t, state.apply(&shardHomeDeallocatedEvent{ShardID: "1"}))
	assert.NotContains(t, state.shards, "1")
	assert.Equal(t, []string{"2"}, state.regions["region-a"])
	assert.True(t, state.unallocated.Contains("1"))

	require.NoError(t, state.apply(&shardHomeAllocatedEvent{ShardID: "1", RegionID: "region-b"}))
	assert.False(t, state.unallocated.Contains("1"))
}

func TestCoordinatorStateRegionTerminationOrphansItsShards(t *testing.T) {
	state := newCoordinatorState()

	require.NoError(t, state.apply(&regionRegisteredEvent{RegionID: "region-a"}))
	require.NoError(t, state.apply(&shardHomeAllocatedEvent{ShardID: "1", RegionID: "region-a"}))
	require.NoError(t, state.apply(&shardHomeAllocatedEvent{ShardID: "2", RegionID: "region-a"}))

	require.NoError(t, state.apply(&regionTerminatedEvent{RegionID: "region-a"}))
	assert.Empty(t, state.shards)
	assert.NotContains(t, state.regions, "region-a")
	assert.True(t, state.unallocated.Contains("1"))
	assert.True(t, state.unallocated.Contains("2"))
}

func TestCoordinatorStateRejectsInconsistentEvents(t *testing.T) {
	state := newCoordinatorState()

	assert.Error(t, state.apply(&regionTerminatedEvent{RegionID: "ghost"}))
	assert.Error(t, state.apply(&shardHomeAllocatedEvent{ShardID: "1", RegionID: "ghost"}))
	assert.Error(t, state.apply(&shardHomeDeallocatedEvent{ShardID: "1"}))
	assert.Error(t, state.apply(&regionProxyTerminatedEvent{ProxyID: "ghost"}))

	require.NoError(t, state.apply(&regionRegisteredEvent{RegionID: "region-a"}))
	require.NoError(t, state.apply(&shardHomeAllocatedEvent{ShardID: "1", RegionID: "region-a"}))
	assert.Error(t, state.apply(&shardHomeAllocatedEvent{ShardID: "1", RegionID: "region-a"}))
}

func TestCoordinatorStateSnapshotRoundTrip(t *testing.T) {
	state := newCoordinatorState()
	require.NoError(t, state.apply(&regionRegisteredEvent{RegionID: "region-a"}))
	require.NoError(t, state.apply(&regionProxyRegisteredEvent{ProxyID: "proxy-a"}))
	require.NoError(t, state.apply(&shardHomeAllocatedEvent{ShardID: "1", RegionID: "region-a"}))
	require.NoError(t, state.apply(&shardHomeAllocatedEvent{ShardID: "2", RegionID: "region-a"}))
	require.NoError(t, state.apply(&shardHomeDeallocatedEvent{ShardID: "2"}))

	restored := newCoordinatorState()
	restored.restore(state.snapshot())

	assert.Equal(t, state.shards, restored.shards)
	assert.Equal(t, state.regions, restored.regions)
	assert.True(t, restored.proxies.Contains("proxy-a"))
	assert.True(t, restored.unallocated.Contains("2"))
}

func TestShardStateFold(t *testing.T) {
	state := newShardState()

	require.NoError(t, state.apply(&entityStartedEvent{EntityID: "alice"}))
	require.NoError(t, state.apply(&entityStartedEvent{EntityID: "bob"}))
	require.NoError(t, state.apply(&entityStoppedEvent{EntityID: "alice"}))

	assert.False(t, state.entities.Contains("alice"))
	assert.True(t, state.entities.Contains("bob"))

	restored := newShardState()
	restored.restore(state.snapshot())
	assert.True(t, restored.entities.Contains("bob"))
	assert.Equal(t, 1, restored.entities.Cardinality())
}
