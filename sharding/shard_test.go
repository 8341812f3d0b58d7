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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/goshard/persistence"
)

func startTestShard(t *testing.T, store persistence.JournalStore, config *Config, factory EntityFactory) *shard {
	t.Helper()
	subject := newShard("accounts", "7", factory, store, config)
	require.NoError(t, subject.start(context.Background()))
	t.Cleanup(func() { subject.cell.Stop() })
	return subject
}

func TestShardStartsEntityOnDemandAndKeepsOrder(t *testing.T) {
	recorder := newEntityRecorder()
	subject := startTestShard(t, persistence.NewMemoryStore(), testConfig(t), recorder.factory())

	sender := newProbe("sender")
	defer sender.stop()
	subject.cell.Tell(shardEnvelope{entityID: "alice", payload: "one", sender: sender.ref()})
	subject.cell.Tell(shardEnvelope{entityID: "alice", payload: "two", sender: sender.ref()})

	assert.Equal(t, "alice:one", expectMsgOfType[string](t, sender, time.Second))
	assert.Equal(t, "alice:two", expectMsgOfType[string](t, sender, time.Second))

	// both messages went to a single incarnation
	awaitSignals(t, recorder.preStarts, 1, time.Second)
	assert.Equal(t, 0, drainSignals(recorder.preStarts))
}

func TestShardPassivationStopsIdleEntity(t *testing.T) {
	recorder := newEntityRecorder()
	subject := startTestShard(t, persistence.NewMemoryStore(), testConfig(t), recorder.factory())

	sender := newProbe("sender")
	defer sender.stop()
	subject.cell.Tell(shardEnvelope{entityID: "alice", payload: "one", sender: sender.ref()})
	expectMsgOfType[string](t, sender, time.Second)

	subject.cell.Tell(passivate{entityID: "alice", stopMessage: stopNow{}})
	awaitSignals(t, recorder.postStops, 1, time.Second)

	// the next delivery starts a fresh incarnation
	subject.cell.Tell(shardEnvelope{entityID: "alice", payload: "two", sender: sender.ref()})
	assert.Equal(t, "alice:two", expectMsgOfType[string](t, sender, time.Second))
	awaitSignals(t, recorder.preStarts, 2, time.Second)
}

func TestShardParksDeliveriesRacingAPassivation(t *testing.T) {
	recorder := newEntityRecorder()
	subject := startTestShard(t, persistence.NewMemoryStore(), testConfig(t), recorder.factory())

	sender := newProbe("sender")
	defer sender.stop()
	subject.cell.Tell(shardEnvelope{entityID: "alice", payload: "one", sender: sender.ref()})
	assert.Equal(t, "alice:one", expectMsgOfType[string](t, sender, time.Second))

	// the deliveries race the stop; they must survive it
	subject.cell.Tell(passivate{entityID: "alice", stopMessage: stopNow{}})
	subject.cell.Tell(shardEnvelope{entityID: "alice", payload: "two", sender: sender.ref()})
	subject.cell.Tell(shardEnvelope{entityID: "alice", payload: "three", sender: sender.ref()})

	assert.Equal(t, "alice:two", expectMsgOfType[string](t, sender, time.Second))
	assert.Equal(t, "alice:three", expectMsgOfType[string](t, sender, time.Second))
	awaitSignals(t, recorder.preStarts, 2, time.Second)
}

func TestShardRemembersEntitiesAcrossRestarts(t *testing.T) {
	store := persistence.NewMemoryStore()
	config := testConfig(t, WithRememberEntities(true))

	first := newShard("accounts", "7", newEntityRecorder().factory(), store, config)
	require.NoError(t, first.start(context.Background()))

	sender := newProbe("sender")
	defer sender.stop()
	first.cell.Tell(shardEnvelope{entityID: "alice", payload: "one", sender: sender.ref()})
	first.cell.Tell(shardEnvelope{entityID: "bob", payload: "two", sender: sender.ref()})
	expectMsgOfType[string](t, sender, time.Second)
	expectMsgOfType[string](t, sender, time.Second)

	first.cell.Stop()
	<-first.cell.Done()

	// the successor restarts alice and bob before serving traffic
	recorder := newEntityRecorder()
	second := startTestShard(t, store, config, recorder.factory())
	awaitSignals(t, recorder.preStarts, 2, time.Second)

	second.cell.Tell(shardEnvelope{entityID: "alice", payload: "three", sender: sender.ref()})
	assert.Equal(t, "alice:three", expectMsgOfType[string](t, sender, time.Second))
}

func TestShardDoesNotRememberPassivatedEntities(t *testing.T) {
	store := persistence.NewMemoryStore()
	config := testConfig(t, WithRememberEntities(true))

	recorder := newEntityRecorder()
	first := newShard("accounts", "7", recorder.factory(), store, config)
	require.NoError(t, first.start(context.Background()))

	sender := newProbe("sender")
	defer sender.stop()
	first.cell.Tell(shardEnvelope{entityID: "alice", payload: "one", sender: sender.ref()})
	first.cell.Tell(shardEnvelope{entityID: "bob", payload: "two", sender: sender.ref()})
	expectMsgOfType[string](t, sender, time.Second)
	expectMsgOfType[string](t, sender, time.Second)

	first.cell.Tell(passivate{entityID: "alice", stopMessage: stopNow{}})
	awaitSignals(t, recorder.postStops, 1, time.Second)
	// give the shard time to record the stop before it goes down
	time.Sleep(100 * time.Millisecond)
	first.cell.Stop()
	<-first.cell.Done()

	successor := newEntityRecorder()
	startTestShard(t, store, config, successor.factory())
	awaitSignals(t, successor.preStarts, 1, time.Second)
	assert.Equal(t, 0, drainSignals(successor.preStarts))
}

func TestShardRestartsRememberedEntityAfterCrash(t *testing.T) {
	recorder := newEntityRecorder()
	config := testConfig(t, WithRememberEntities(true))
	subject := startTestShard(t, persistence.NewMemoryStore(), config, recorder.factory())

	sender := newProbe("sender")
	defer sender.stop()
	subject.cell.Tell(shardEnvelope{entityID: "alice", payload: "one", sender: sender.ref()})
	expectMsgOfType[string](t, sender, time.Second)

	// the entity stops without a passivation: this counts as a crash
	subject.cell.Tell(shardEnvelope{entityID: "alice", payload: stopNow{}, sender: sender.ref()})
	awaitSignals(t, recorder.postStops, 1, time.Second)

	// the backoff restart brings it back without any traffic
	awaitSignals(t, recorder.preStarts, 2, 2*time.Second)
	subject.cell.Tell(shardEnvelope{entityID: "alice", payload: "two", sender: sender.ref()})
	assert.Equal(t, "alice:two", expectMsgOfType[string](t, sender, time.Second))
}

func TestShardHandOffDrainsEntitiesAndConfirms(t *testing.T) {
	recorder := newEntityRecorder()
	config := testConfig(t, WithStopMessage(stopNow{}))
	subject := startTestShard(t, persistence.NewMemoryStore(), config, recorder.factory())

	sender := newProbe("sender")
	defer sender.stop()
	subject.cell.Tell(shardEnvelope{entityID: "alice", payload: "one", sender: sender.ref()})
	subject.cell.Tell(shardEnvelope{entityID: "bob", payload: "two", sender: sender.ref()})
	expectMsgOfType[string](t, sender, time.Second)
	expectMsgOfType[string](t, sender, time.Second)

	owner := newProbe("owner")
	defer owner.stop()
	subject.cell.Tell(handOffShard{shard: "7", replyTo: owner.ref()})

	stopped := expectMsgOfType[shardStopped](t, owner, 2*time.Second)
	assert.Equal(t, "7", stopped.shard)
	awaitSignals(t, recorder.postStops, 2, time.Second)

	select {
	case <-subject.cell.Done():
	case <-time.After(time.Second):
		t.Fatal("shard cell still running after handoff")
	}
}

func TestShardHandOffWithoutEntitiesConfirmsImmediately(t *testing.T) {
	subject := startTestShard(t, persistence.NewMemoryStore(), testConfig(t), echoFactory)

	owner := newProbe("owner")
	defer owner.stop()
	subject.cell.Tell(handOffShard{shard: "7", replyTo: owner.ref()})

	stopped := expectMsgOfType[shardStopped](t, owner, time.Second)
	assert.Equal(t, "7", stopped.shard)
}
