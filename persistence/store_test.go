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
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func journalFixture(persistenceID string, sequenceNumber uint64) *Journal {
	return &Journal{
		PersistenceID:  persistenceID,
		SequenceNumber: sequenceNumber,
		EventType:      "test-event",
		Payload:        []byte(fmt.Sprintf("payload-%d", sequenceNumber)),
		Timestamp:      time.Now().Unix(),
	}
}

// runStoreSuite exercises the JournalStore contract against any
// implementation.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) JournalStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("replay honors both inclusive bounds", func(t *testing.T) {
		store := newStore(t)
		for sequence := uint64(1); sequence <= 5; sequence++ {
			require.NoError(t, store.WriteJournals(ctx, []*Journal{journalFixture("owner-1", sequence)}))
		}

		journals, err := store.ReplayJournals(ctx, "owner-1", 2, 4)
		require.NoError(t, err)
		require.Len(t, journals, 3)
		assert.EqualValues(t, 2, journals[0].SequenceNumber)
		assert.EqualValues(t, 4, journals[2].SequenceNumber)

		all, err := store.ReplayJournals(ctx, "owner-1", 1, MaxSequenceNumber)
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("replay keeps sequence order regardless of write order", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.WriteJournals(ctx, []*Journal{
			journalFixture("owner-1", 3),
			journalFixture("owner-1", 1),
			journalFixture("owner-1", 2),
		}))

		journals, err := store.ReplayJournals(ctx, "owner-1", 1, MaxSequenceNumber)
		require.NoError(t, err)
		require.Len(t, journals, 3)
		for i, journal := range journals {
			assert.EqualValues(t, i+1, journal.SequenceNumber)
		}
	})

	t.Run("persistence ids are isolated", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.WriteJournals(ctx, []*Journal{
			journalFixture("owner-1", 1),
			journalFixture("owner-2", 1),
			journalFixture("owner-2", 2),
		}))

		journals, err := store.ReplayJournals(ctx, "owner-2", 1, MaxSequenceNumber)
		require.NoError(t, err)
		assert.Len(t, journals, 2)

		journals, err = store.ReplayJournals(ctx, "owner-3", 1, MaxSequenceNumber)
		require.NoError(t, err)
		assert.Empty(t, journals)
	})

	t.Run("latest journal", func(t *testing.T) {
		store := newStore(t)

		latest, err := store.LatestJournal(ctx, "owner-1")
		require.NoError(t, err)
		assert.Nil(t, latest)

		require.NoError(t, store.WriteJournals(ctx, []*Journal{
			journalFixture("owner-1", 1),
			journalFixture("owner-1", 2),
		}))
		latest, err = store.LatestJournal(ctx, "owner-1")
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.EqualValues(t, 2, latest.SequenceNumber)
	})

	t.Run("snapshots replace prior snapshots", func(t *testing.T) {
		store := newStore(t)

		snapshot, err := store.LatestSnapshot(ctx, "owner-1")
		require.NoError(t, err)
		assert.Nil(t, snapshot)

		require.NoError(t, store.SaveSnapshot(ctx, &Snapshot{
			PersistenceID:  "owner-1",
			SequenceNumber: 10,
			StateType:      "test-state",
			Payload:        []byte("old"),
			Timestamp:      time.Now().Unix(),
		}))
		require.NoError(t, store.SaveSnapshot(ctx, &Snapshot{
			PersistenceID:  "owner-1",
			SequenceNumber: 20,
			StateType:      "test-state",
			Payload:        []byte("new"),
			Timestamp:      time.Now().Unix(),
		}))

		snapshot, err = store.LatestSnapshot(ctx, "owner-1")
		require.NoError(t, err)
		require.NotNil(t, snapshot)
		assert.EqualValues(t, 20, snapshot.SequenceNumber)
		assert.Equal(t, []byte("new"), snapshot.Payload)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) JournalStore {
		store := NewMemoryStore()
		require.NoError(t, store.Connect(context.Background()))
		return store
	})
}

func TestMemoryStoreReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.WriteJournals(ctx, []*Journal{journalFixture("owner-1", 1)}))
	require.NoError(t, store.SaveSnapshot(ctx, &Snapshot{PersistenceID: "owner-1", SequenceNumber: 1}))

	store.Reset()

	journals, err := store.ReplayJournals(ctx, "owner-1", 1, MaxSequenceNumber)
	require.NoError(t, err)
	assert.Empty(t, journals)
	snapshot, err := store.LatestSnapshot(ctx, "owner-1")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestBoltStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) JournalStore {
		store := NewBoltStore(filepath.Join(t.TempDir(), "journal.db"))
		require.NoError(t, store.Connect(context.Background()))
		t.Cleanup(func() { _ = store.Disconnect(context.Background()) })
		return store
	})
}

func TestBoltStoreSurvivesReconnect(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	store := NewBoltStore(path)
	require.NoError(t, store.Connect(ctx))
	require.NoError(t, store.WriteJournals(ctx, []*Journal{
		journalFixture("owner-1", 1),
		journalFixture("owner-1", 2),
	}))
	require.NoError(t, store.SaveSnapshot(ctx, &Snapshot{
		PersistenceID:  "owner-1",
		SequenceNumber: 2,
		StateType:      "test-state",
		Payload:        []byte("state"),
	}))
	require.NoError(t, store.Disconnect(ctx))

	reopened := NewBoltStore(path)
	require.NoError(t, reopened.Connect(ctx))
	defer func() { _ = reopened.Disconnect(ctx) }()

	journals, err := reopened.ReplayJournals(ctx, "owner-1", 1, MaxSequenceNumber)
	require.NoError(t, err)
	assert.Len(t, journals, 2)
	snapshot, err := reopened.LatestSnapshot(ctx, "owner-1")
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.EqualValues(t, 2, snapshot.SequenceNumber)
}

func TestBoltStoreRejectsUseWhenClosed(t *testing.T) {
	ctx := context.Background()
	store := NewBoltStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, store.Connect(ctx))
	require.NoError(t, store.Disconnect(ctx))

	err := store.WriteJournals(ctx, []*Journal{journalFixture("owner-1", 1)})
	require.ErrorIs(t, err, errBoltStoreClosed)
	_, err = store.ReplayJournals(ctx, "owner-1", 1, MaxSequenceNumber)
	require.ErrorIs(t, err, errBoltStoreClosed)
	_, err = store.LatestSnapshot(ctx, "owner-1")
	require.ErrorIs(t, err, errBoltStoreClosed)
}
