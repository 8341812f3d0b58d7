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

// Package persistence defines the append-only event store consumed by the
// sharding coordinator and shard actors. State is rebuilt by folding an
// optional snapshot and the journals recorded after it, in sequence order.
package persistence

import (
	"context"
	"math"
)

// MaxSequenceNumber is the upper bound used to replay a journal to its end.
const MaxSequenceNumber = uint64(math.MaxUint64)

// Journal is a single durable event recorded for a persistence id.
// The payload is an opaque encoded event; EventType names the concrete
// event type so the owner can decode it during replay.
type Journal struct {
	// PersistenceID identifies the event-sourced owner of the record
	PersistenceID string
	// SequenceNumber orders the record within its persistence id, starting at 1
	SequenceNumber uint64
	// EventType names the concrete event encoded in the payload
	EventType string
	// Payload is the encoded event
	Payload []byte
	// Timestamp is the unix time the record was written
	Timestamp int64
}

// Snapshot is a point-in-time capture of an owner's state. Replay resumes
// from the journal following the snapshot's sequence number.
type Snapshot struct {
	// PersistenceID identifies the event-sourced owner of the snapshot
	PersistenceID string
	// SequenceNumber is the sequence number of the last journal folded into the snapshot
	SequenceNumber uint64
	// StateType names the concrete state encoded in the payload
	StateType string
	// Payload is the encoded state
	Payload []byte
	// Timestamp is the unix time the snapshot was saved
	Timestamp int64
}

// JournalStore represents the persistence store.
// This helps implement any persistence storage whether it is an RDBMS,
// a No-SQL database or an embedded key/value store.
type JournalStore interface {
	// Connect connects to the journal store
	Connect(ctx context.Context) error
	// Disconnect disconnect the journal store
	Disconnect(ctx context.Context) error
	// WriteJournals persists journals in batches for a given persistenceID.
	// Journals become visible to replay in sequence order once the call returns.
	WriteJournals(ctx context.Context, journals []*Journal) error
	// ReplayJournals fetches journals for a given persistence ID from a given
	// sequence number (inclusive) to a given sequence number (inclusive)
	ReplayJournals(ctx context.Context, persistenceID string, fromSequenceNumber, toSequenceNumber uint64) ([]*Journal, error)
	// LatestJournal fetches the latest journal for the given persistence ID.
	// A nil journal with a nil error means nothing has been recorded yet.
	LatestJournal(ctx context.Context, persistenceID string) (*Journal, error)
	// SaveSnapshot persists a snapshot, replacing any prior snapshot held
	// for the same persistence ID
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
	// LatestSnapshot fetches the latest snapshot for the given persistence ID.
	// A nil snapshot with a nil error means no snapshot has been saved yet.
	LatestSnapshot(ctx context.Context, persistenceID string) (*Snapshot, error)
}
