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
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tochemey/goshard/persistence"
)

// Durable event and snapshot type tags. They are part of the journal
// format: renaming one breaks recovery of existing journals.
const (
	eventTypeRegionRegistered      = "region-registered"
	eventTypeRegionProxyRegistered = "region-proxy-registered"
	eventTypeRegionTerminated      = "region-terminated"
	eventTypeRegionProxyTerminated = "region-proxy-terminated"
	eventTypeShardHomeAllocated    = "shard-home-allocated"
	eventTypeShardHomeDeallocated  = "shard-home-deallocated"
	eventTypeEntityStarted         = "entity-started"
	eventTypeEntityStopped         = "entity-stopped"

	stateTypeCoordinator = "coordinator-state"
	stateTypeShard       = "shard-state"
)

type regionRegisteredEvent struct {
	RegionID string `msgpack:"region_id"`
}

type regionProxyRegisteredEvent struct {
	ProxyID string `msgpack:"proxy_id"`
}

type regionTerminatedEvent struct {
	RegionID string `msgpack:"region_id"`
}

type regionProxyTerminatedEvent struct {
	ProxyID string `msgpack:"proxy_id"`
}

type shardHomeAllocatedEvent struct {
	ShardID  string `msgpack:"shard_id"`
	RegionID string `msgpack:"region_id"`
}

type shardHomeDeallocatedEvent struct {
	ShardID string `msgpack:"shard_id"`
}

type entityStartedEvent struct {
	EntityID string `msgpack:"entity_id"`
}

type entityStoppedEvent struct {
	EntityID string `msgpack:"entity_id"`
}

// coordinatorSnapshot is the durable form of coordinatorState.
type coordinatorSnapshot struct {
	Shards      map[string]string   `msgpack:"shards"`
	Regions     map[string][]string `msgpack:"regions"`
	Proxies     []string            `msgpack:"proxies"`
	Unallocated []string            `msgpack:"unallocated"`
}

// shardSnapshot is the durable form of shardState.
type shardSnapshot struct {
	Entities []string `msgpack:"entities"`
}

// encodeEvent maps a durable event to its journal type tag and payload.
func encodeEvent(event any) (string, []byte, error) {
	var eventType string
	switch event.(type) {
	case *regionRegisteredEvent:
		eventType = eventTypeRegionRegistered
	case *regionProxyRegisteredEvent:
		eventType = eventTypeRegionProxyRegistered
	case *regionTerminatedEvent:
		eventType = eventTypeRegionTerminated
	case *regionProxyTerminatedEvent:
		eventType = eventTypeRegionProxyTerminated
	case *shardHomeAllocatedEvent:
		eventType = eventTypeShardHomeAllocated
	case *shardHomeDeallocatedEvent:
		eventType = eventTypeShardHomeDeallocated
	case *entityStartedEvent:
		eventType = eventTypeEntityStarted
	case *entityStoppedEvent:
		eventType = eventTypeEntityStopped
	default:
		return "", nil, fmt.Errorf("unknown durable event type %T", event)
	}

	payload, err := msgpack.Marshal(event)
	if err != nil {
		return "", nil, fmt.Errorf("encoding %s event: %w", eventType, err)
	}
	return eventType, payload, nil
}

// decodeEvent reverses encodeEvent.
func decodeEvent(eventType string, payload []byte) (any, error) {
	var event any
	switch eventType {
	case eventTypeRegionRegistered:
		event = new(regionRegisteredEvent)
	case eventTypeRegionProxyRegistered:
		event = new(regionProxyRegisteredEvent)
	case eventTypeRegionTerminated:
		event = new(regionTerminatedEvent)
	case eventTypeRegionProxyTerminated:
		event = new(regionProxyTerminatedEvent)
	case eventTypeShardHomeAllocated:
		event = new(shardHomeAllocatedEvent)
	case eventTypeShardHomeDeallocated:
		event = new(shardHomeDeallocatedEvent)
	case eventTypeEntityStarted:
		event = new(entityStartedEvent)
	case eventTypeEntityStopped:
		event = new(entityStoppedEvent)
	default:
		return nil, fmt.Errorf("unknown durable event type %q", eventType)
	}

	if err := msgpack.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("decoding %s event: %w", eventType, err)
	}
	return event, nil
}

// encodeSnapshot wraps an encoded state into a store snapshot record.
func encodeSnapshot(persistenceID string, sequenceNumber uint64, stateType string, state any) (*persistence.Snapshot, error) {
	payload, err := msgpack.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding %s snapshot: %w", stateType, err)
	}
	return &persistence.Snapshot{
		PersistenceID:  persistenceID,
		SequenceNumber: sequenceNumber,
		StateType:      stateType,
		Payload:        payload,
		Timestamp:      time.Now().Unix(),
	}, nil
}

// decodeSnapshot reverses encodeSnapshot, checking the state type tag.
func decodeSnapshot(snapshot *persistence.Snapshot, wantType string, out any) error {
	if snapshot.StateType != wantType {
		return fmt.Errorf("unexpected snapshot state type %q, want %q", snapshot.StateType, wantType)
	}
	if err := msgpack.Unmarshal(snapshot.Payload, out); err != nil {
		return fmt.Errorf("decoding %s snapshot: %w", wantType, err)
	}
	return nil
}
