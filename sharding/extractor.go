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
	"strconv"

	"github.com/tochemey/goshard/hash"
)

// Extractor resolves the addressing of application messages. Both functions
// must be pure: the same message always yields the same entity and shard,
// on every node, for the lifetime of the entity type.
type Extractor interface {
	// ExtractEntity returns the target entity id and the payload to
	// deliver to it. ok reports whether the message addresses an entity at
	// all; messages reporting false are dropped with a diagnostic, as are
	// messages yielding an empty entity id.
	ExtractEntity(message any) (entityID string, payload any, ok bool)

	// ExtractShard returns the shard id owning the message's entity. An
	// empty shard id marks the message as unroutable and it is dropped
	// with a diagnostic.
	ExtractShard(message any) string
}

// Envelope is the canonical addressed message: the entity id travels next
// to the payload, so hash-based extractors need no knowledge of the
// application message types.
type Envelope struct {
	EntityID string
	Message  any
}

// HashExtractor shards Envelope messages by hashing the entity id into a
// fixed number of shards. The shard count must never change for a deployed
// entity type, otherwise entities silently migrate between shards.
type HashExtractor struct {
	numShards uint64
	hasher    hash.Hasher
}

// enforce compilation error
var _ Extractor = (*HashExtractor)(nil)

// NewHashExtractor creates an extractor distributing entities over
// numShards shards using the default hasher.
func NewHashExtractor(numShards uint64) *HashExtractor {
	return &HashExtractor{
		numShards: numShards,
		hasher:    hash.DefaultHasher(),
	}
}

// NewHashExtractorWithHasher creates an extractor using a custom hasher.
func NewHashExtractorWithHasher(numShards uint64, hasher hash.Hasher) *HashExtractor {
	return &HashExtractor{
		numShards: numShards,
		hasher:    hasher,
	}
}

func (x *HashExtractor) ExtractEntity(message any) (string, any, bool) {
	envelope, ok := message.(*Envelope)
	if !ok {
		return "", nil, false
	}
	return envelope.EntityID, envelope.Message, true
}

func (x *HashExtractor) ExtractShard(message any) string {
	envelope, ok := message.(*Envelope)
	if !ok || envelope.EntityID == "" {
		return ""
	}
	shard := x.hasher.HashCode([]byte(envelope.EntityID)) % x.numShards
	return strconv.FormatUint(shard, 10)
}
