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
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/vmihailenco/msgpack/v5"
	bbolt "go.etcd.io/bbolt"
)

const boltFileMode os.FileMode = 0o600

var (
	journalsBucket  = []byte("journals")
	snapshotsBucket = []byte("snapshots")

	boltTimeout        = 5 * time.Second
	defaultBoltOptions = &bbolt.Options{Timeout: boltTimeout, NoGrowSync: true}
	errBoltStoreClosed = errors.New("persistence: boltdb store is closed")
)

// BoltStore implements JournalStore using go.etcd.io/bbolt for durable
// persistence. Journals and snapshots are msgpack-encoded and packed into
// dedicated buckets; journal keys are ordered by persistence id then
// sequence number so replay is a simple range scan.
//
// bbolt provides single-writer/multi-reader semantics. We only guard the
// close state to prevent operations once the store is shut down.
type BoltStore struct {
	db     *bbolt.DB
	path   string
	closed atomic.Bool
}

// enforce compilation error
var _ JournalStore = (*BoltStore)(nil)

// NewBoltStore creates a BoltDB-backed JournalStore rooted at the given
// file path. The database file is opened on Connect.
func NewBoltStore(path string) *BoltStore {
	return &BoltStore{path: path}
}

// Connect opens the database file and initializes the buckets. Opening is
// retried a few times because a previous owner of the file lock may still
// be releasing it during a rolling restart.
func (s *BoltStore) Connect(ctx context.Context) error {
	retrier := retry.NewRetrier(3, 100*time.Millisecond, time.Second)
	return retrier.RunContext(ctx, func(context.Context) error {
		optionsCopy := *defaultBoltOptions
		db, err := bbolt.Open(s.path, boltFileMode, &optionsCopy)
		if err != nil {
			return fmt.Errorf("persistence: opening boltdb: %w", err)
		}
		if err := db.Update(func(tx *bbolt.Tx) error {
			if _, err := tx.CreateBucketIfNotExists(journalsBucket); err != nil {
				return err
			}
			_, err := tx.CreateBucketIfNotExists(snapshotsBucket)
			return err
		}); err != nil {
			_ = db.Close()
			return fmt.Errorf("persistence: initializing boltdb buckets: %w", err)
		}
		s.db = db
		s.closed.Store(false)
		return nil
	})
}

// Disconnect releases the underlying BoltDB handle
func (s *BoltStore) Disconnect(context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WriteJournals persists journals in batches for a given persistenceID
func (s *BoltStore) WriteJournals(ctx context.Context, journals []*Journal) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := contextErr(ctx); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(journalsBucket)
		if bucket == nil {
			return fmt.Errorf("persistence: bucket %q missing", journalsBucket)
		}
		for _, journal := range journals {
			data, err := msgpack.Marshal(journal)
			if err != nil {
				return fmt.Errorf("persistence: encoding journal: %w", err)
			}
			if err := bucket.Put(journalKey(journal.PersistenceID, journal.SequenceNumber), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplayJournals fetches journals for a given persistence ID between the two
// sequence numbers, both inclusive
func (s *BoltStore) ReplayJournals(ctx context.Context, persistenceID string, fromSequenceNumber, toSequenceNumber uint64) ([]*Journal, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if err := contextErr(ctx); err != nil {
		return nil, err
	}

	var out []*Journal
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(journalsBucket)
		if bucket == nil {
			return fmt.Errorf("persistence: bucket %q missing", journalsBucket)
		}
		cursor := bucket.Cursor()
		start := journalKey(persistenceID, fromSequenceNumber)
		end := journalKey(persistenceID, toSequenceNumber)
		for key, value := cursor.Seek(start); key != nil && bytes.Compare(key, end) <= 0; key, value = cursor.Next() {
			journal := new(Journal)
			if err := msgpack.Unmarshal(value, journal); err != nil {
				return fmt.Errorf("persistence: decoding journal: %w", err)
			}
			out = append(out, journal)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LatestJournal fetches the latest journal
func (s *BoltStore) LatestJournal(ctx context.Context, persistenceID string) (*Journal, error) {
	journals, err := s.ReplayJournals(ctx, persistenceID, 0, MaxSequenceNumber)
	if err != nil {
		return nil, err
	}
	if len(journals) == 0 {
		return nil, nil
	}
	return journals[len(journals)-1], nil
}

// SaveSnapshot persists a snapshot, replacing any prior one
func (s *BoltStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := contextErr(ctx); err != nil {
		return err
	}

	data, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("persistence: encoding snapshot: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(snapshotsBucket)
		if bucket == nil {
			return fmt.Errorf("persistence: bucket %q missing", snapshotsBucket)
		}
		return bucket.Put([]byte(snapshot.PersistenceID), data)
	})
}

// LatestSnapshot fetches the latest snapshot
func (s *BoltStore) LatestSnapshot(ctx context.Context, persistenceID string) (*Snapshot, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if err := contextErr(ctx); err != nil {
		return nil, err
	}

	var snapshot *Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(snapshotsBucket)
		if bucket == nil {
			return fmt.Errorf("persistence: bucket %q missing", snapshotsBucket)
		}
		raw := bucket.Get([]byte(persistenceID))
		if raw == nil {
			return nil
		}
		decoded := new(Snapshot)
		if err := msgpack.Unmarshal(raw, decoded); err != nil {
			return fmt.Errorf("persistence: decoding snapshot: %w", err)
		}
		snapshot = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *BoltStore) ensureOpen() error {
	if s.db == nil || s.closed.Load() {
		return errBoltStoreClosed
	}
	return nil
}

// journalKey orders journal records by persistence id then sequence number.
// The separator byte cannot appear in the big-endian suffix, keeping range
// scans within a single persistence id.
func journalKey(persistenceID string, sequenceNumber uint64) []byte {
	key := make([]byte, 0, len(persistenceID)+9)
	key = append(key, persistenceID...)
	key = append(key, 0x00)
	key = binary.BigEndian.AppendUint64(key, sequenceNumber)
	return key
}

func contextErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
