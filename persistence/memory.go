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

package persistence

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps every journal and snapshot in memory. It is mainly
// used in tests and single-process deployments where durability across
// process restarts is not required.
type MemoryStore struct {
	mu        sync.Mutex
	journals  map[string][]*Journal
	snapshots map[string]*Snapshot
}

// enforce compilation error
var _ JournalStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new instance of MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		journals:  map[string][]*Journal{},
		snapshots: map[string]*Snapshot{},
	}
}

// Connect connects to the journal store
func (s *MemoryStore) Connect(context.Context) error {
	return nil
}

// Disconnect disconnects the journal store. The recorded journals are kept
// so a reconnecting owner can still replay them.
func (s *MemoryStore) Disconnect(context.Context) error {
	return nil
}

// Reset drops every journal and snapshot
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	s.journals = map[string][]*Journal{}
	s.snapshots = map[string]*Snapshot{}
	s.mu.Unlock()
}

// WriteJournals persists journals in batches for a given persistenceID
func (s *MemoryStore) WriteJournals(_ context.Context, journals []*Journal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, journal := range journals {
		items := append(s.journals[journal.PersistenceID], journal)
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].SequenceNumber < items[j].SequenceNumber
		})
		s.journals[journal.PersistenceID] = items
	}
	return nil
}

// ReplayJournals fetches journals for a given persistence ID between the two
// sequence numbers, both inclusive
func (s *MemoryStore) ReplayJournals(_ context.Context, persistenceID string, fromSequenceNumber, toSequenceNumber uint64) ([]*Journal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Journal
	for _, journal := range s.journals[persistenceID] {
		if journal.SequenceNumber >= fromSequenceNumber && journal.SequenceNumber <= toSequenceNumber {
			out = append(out, journal)
		}
	}
	return out, nil
}

// LatestJournal fetches the latest journal
func (s *MemoryStore) LatestJournal(_ context.Context, persistenceID string) (*Journal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.journals[persistenceID]
	if len(items) == 0 {
		return nil, nil
	}
	return items[len(items)-1], nil
}

// SaveSnapshot persists a snapshot, replacing any prior one
func (s *MemoryStore) SaveSnapshot(_ context.Context, snapshot *Snapshot) error {
	s.mu.Lock()
	s.snapshots[snapshot.PersistenceID] = snapshot
	s.mu.Unlock()
	return nil
}

// LatestSnapshot fetches the latest snapshot
func (s *MemoryStore) LatestSnapshot(_ context.Context, persistenceID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots[persistenceID], nil
}
