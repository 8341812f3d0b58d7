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
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tochemey/goshard/log"
	"github.com/tochemey/goshard/persistence"
)

// entityRuntime pairs a live entity with its cell.
type entityRuntime struct {
	cell   *cell
	entity Entity
}

// shard owns the entity actors of one shard id on the hosting node. It
// creates entities on demand, replays remembered entities on start, parks
// deliveries racing a passivation and drains everything during a handoff.
type shard struct {
	cell     *cell
	typeName string
	shardID  string
	config   *Config
	factory  EntityFactory
	store    persistence.JournalStore
	logger   log.Logger

	state          *shardState
	entities       map[string]*entityRuntime
	entityIDByCell map[string]string
	passivating    mapset.Set[string]
	// buffer parks deliveries per entity while a passivation or a
	// remember-entities persist is pending.
	buffer         *messageBuffer
	handOffReplyTo Ref
	restartTimers  map[string]*time.Timer

	persistenceID       string
	sequenceNumber      uint64
	eventsSinceSnapshot int

	ctx    context.Context
	cancel context.CancelFunc
}

func newShard(typeName, shardID string, factory EntityFactory, store persistence.JournalStore, config *Config) *shard {
	ctx, cancel := context.WithCancel(context.Background())
	return &shard{
		cell:           newCell(fmt.Sprintf("shard/%s/%s", typeName, shardID)),
		typeName:       typeName,
		shardID:        shardID,
		config:         config,
		factory:        factory,
		store:          store,
		logger:         config.logger,
		state:          newShardState(),
		entities:       map[string]*entityRuntime{},
		entityIDByCell: map[string]string{},
		passivating:    mapset.NewSet[string](),
		buffer:         newMessageBuffer(config.bufferSize),
		restartTimers:  map[string]*time.Timer{},
		persistenceID:  fmt.Sprintf("sharding/%s/shard/%s", typeName, shardID),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// start recovers the remembered entity set when enabled and restarts those
// entities before any new delivery is processed.
func (x *shard) start(ctx context.Context) error {
	if x.config.rememberEntities {
		if err := x.recover(ctx); err != nil {
			x.cancel()
			return fmt.Errorf("shard %s/%s: recovering state: %w", x.typeName, x.shardID, err)
		}
		for _, entityID := range x.state.entities.ToSlice() {
			x.startEntity(entityID)
		}
	}
	x.cell.run(x.receive, x.postStop)
	return nil
}

func (x *shard) postStop() {
	x.cancel()
	for _, timer := range x.restartTimers {
		timer.Stop()
	}
	for _, runtime := range x.entities {
		runtime.cell.Stop()
	}
}

func (x *shard) recover(ctx context.Context) error {
	snapshot, err := x.store.LatestSnapshot(ctx, x.persistenceID)
	if err != nil {
		return err
	}

	fromSequence := uint64(1)
	if snapshot != nil {
		var snap shardSnapshot
		if err := decodeSnapshot(snapshot, stateTypeShard, &snap); err != nil {
			return err
		}
		x.state.restore(&snap)
		x.sequenceNumber = snapshot.SequenceNumber
		fromSequence = snapshot.SequenceNumber + 1
	}

	journals, err := x.store.ReplayJournals(ctx, x.persistenceID, fromSequence, persistence.MaxSequenceNumber)
	if err != nil {
		return err
	}
	for _, journal := range journals {
		event, err := decodeEvent(journal.EventType, journal.Payload)
		if err != nil {
			x.logger.Warnf("shard %s/%s: skipping journal %d: %v", x.typeName, x.shardID, journal.SequenceNumber, err)
			x.sequenceNumber = journal.SequenceNumber
			continue
		}
		if err := x.state.apply(event); err != nil {
			x.logger.Warnf("shard %s/%s: skipping inconsistent journal %d: %v", x.typeName, x.shardID, journal.SequenceNumber, err)
		}
		x.sequenceNumber = journal.SequenceNumber
	}
	return nil
}

func (x *shard) receive(message any) {
	switch msg := message.(type) {
	case shardEnvelope:
		x.handleDelivery(msg)
	case passivate:
		x.handlePassivate(msg.entityID, msg.stopMessage)
	case terminated:
		x.handleEntityTerminated(msg.ref)
	case restartEntity:
		x.handleRestartEntity(msg.entityID)
	case handOffShard:
		x.handleHandOff(msg.shard, msg.replyTo)
	case handOffComplete:
		x.finishHandOff()
	default:
		x.logger.Warnf("shard %s/%s: unhandled message %T", x.typeName, x.shardID, message)
	}
}

func (x *shard) handleDelivery(msg shardEnvelope) {
	// a draining shard takes no new work; senders deal with the loss
	if x.handOffReplyTo != nil {
		return
	}
	if msg.entityID == "" {
		x.logger.Warnf("shard %s/%s: dropping delivery without an entity id", x.typeName, x.shardID)
		return
	}

	if x.buffer.contains(msg.entityID) {
		if !x.buffer.append(msg.entityID, msg.payload, msg.sender) {
			x.logger.Warnf("shard %s/%s: buffer full (%d), dropping delivery for entity %s",
				x.typeName, x.shardID, x.buffer.size(), msg.entityID)
		}
		return
	}

	if runtime, running := x.entities[msg.entityID]; running {
		runtime.cell.Tell(envelope{message: msg.payload, sender: msg.sender})
		return
	}

	if x.config.rememberEntities && !x.state.entities.Contains(msg.entityID) {
		// the entity must be durable before it runs, or a crash between
		// the two would forget a started entity
		x.buffer.open(msg.entityID)
		x.buffer.append(msg.entityID, msg.payload, msg.sender)
		if !x.persist(&entityStartedEvent{EntityID: msg.entityID}) {
			x.buffer.drop(msg.entityID)
			return
		}
		if x.startEntity(msg.entityID) {
			x.flushEntity(msg.entityID)
		}
		return
	}

	if x.startEntity(msg.entityID) {
		x.entities[msg.entityID].cell.Tell(envelope{message: msg.payload, sender: msg.sender})
	}
}

func (x *shard) handlePassivate(entityID string, stopMessage any) {
	if x.handOffReplyTo != nil {
		return
	}
	runtime, running := x.entities[entityID]
	if !running || x.passivating.Contains(entityID) || x.buffer.contains(entityID) {
		return
	}

	x.passivating.Add(entityID)
	// deliveries arriving before the stop completes are parked and replayed
	// to a fresh incarnation
	x.buffer.open(entityID)

	if stopMessage == nil {
		stopMessage = x.config.stopMessage
	}
	if stopMessage == nil {
		runtime.cell.Stop()
		return
	}
	runtime.cell.Tell(envelope{message: stopMessage})
}

func (x *shard) handleEntityTerminated(ref Ref) {
	entityID, known := x.entityIDByCell[ref.ID()]
	if !known {
		return
	}
	delete(x.entityIDByCell, ref.ID())
	delete(x.entities, entityID)

	wasPassivating := x.passivating.Contains(entityID)
	x.passivating.Remove(entityID)

	if x.handOffReplyTo != nil {
		x.buffer.drop(entityID)
		return
	}

	if parked := x.buffer.take(entityID); len(parked) > 0 {
		// the passivation raced new deliveries: the entity is not stopped,
		// it restarts and the parked messages are replayed in order
		if x.startEntity(entityID) {
			runtime := x.entities[entityID]
			for _, delivery := range parked {
				runtime.cell.Tell(envelope{message: delivery.message, sender: delivery.sender})
			}
		}
		return
	}

	if wasPassivating {
		if x.config.rememberEntities {
			x.persist(&entityStoppedEvent{EntityID: entityID})
		}
		return
	}

	// crash, not passivation: remembered entities self-heal after a backoff
	if x.config.rememberEntities && x.state.entities.Contains(entityID) {
		x.logger.Warnf("shard %s/%s: entity %s terminated unexpectedly, restarting in %v",
			x.typeName, x.shardID, entityID, x.config.entityRestartBackoff)
		cell := x.cell
		x.restartTimers[entityID] = time.AfterFunc(x.config.entityRestartBackoff, func() {
			cell.Tell(restartEntity{entityID: entityID})
		})
	}
}

func (x *shard) handleRestartEntity(entityID string) {
	if timer, ok := x.restartTimers[entityID]; ok {
		timer.Stop()
		delete(x.restartTimers, entityID)
	}
	if x.handOffReplyTo != nil {
		return
	}
	if _, running := x.entities[entityID]; running {
		return
	}
	if !x.config.rememberEntities || !x.state.entities.Contains(entityID) {
		return
	}
	if x.startEntity(entityID) {
		x.flushEntity(entityID)
	}
}

func (x *shard) handleHandOff(shardID string, replyTo Ref) {
	if shardID != x.shardID || x.handOffReplyTo != nil {
		return
	}
	x.handOffReplyTo = replyTo
	if len(x.entities) == 0 {
		x.finishHandOff()
		return
	}

	// the stopper tracks entity terminations off the shard's mailbox so a
	// slow entity cannot wedge the shard behind its own drain
	stopper := newCell(fmt.Sprintf("handoff-stopper/%s/%s", x.typeName, x.shardID))
	remaining := mapset.NewSet[string]()
	for _, runtime := range x.entities {
		remaining.Add(runtime.cell.ID())
	}
	owner := x.cell
	stopper.run(func(message any) {
		if notice, ok := message.(terminated); ok {
			remaining.Remove(notice.ref.ID())
			if remaining.IsEmpty() {
				owner.Tell(handOffComplete{})
				stopper.Stop()
			}
		}
	}, nil)

	for _, runtime := range x.entities {
		runtime.cell.watch(stopper)
		if x.config.stopMessage != nil {
			runtime.cell.Tell(envelope{message: x.config.stopMessage})
			continue
		}
		runtime.cell.Stop()
	}
}

func (x *shard) finishHandOff() {
	if x.handOffReplyTo != nil {
		x.handOffReplyTo.Tell(shardStopped{shard: x.shardID})
	}
	x.cell.Stop()
}

// startEntity creates and runs an entity actor. It reports false when the
// entity's PreStart failed, in which case pending deliveries are dropped.
func (x *shard) startEntity(entityID string) bool {
	if timer, ok := x.restartTimers[entityID]; ok {
		timer.Stop()
		delete(x.restartTimers, entityID)
	}

	entity := x.factory()
	if err := entity.PreStart(x.ctx); err != nil {
		x.logger.Errorf("shard %s/%s: starting entity %s: %v", x.typeName, x.shardID, entityID, err)
		x.buffer.drop(entityID)
		return false
	}

	entityCell := newCell(fmt.Sprintf("entity/%s/%s/%s", x.typeName, x.shardID, entityID))
	runtime := &entityRuntime{cell: entityCell, entity: entity}
	x.entities[entityID] = runtime
	x.entityIDByCell[entityCell.ID()] = entityID
	entityCell.watch(x.cell)

	entityContext := x.ctx
	owner := x.cell
	entityCell.run(func(message any) {
		delivery, ok := message.(envelope)
		if !ok {
			return
		}
		entity.Receive(&EntityContext{
			ctx:      entityContext,
			entityID: entityID,
			message:  delivery.message,
			sender:   delivery.sender,
			self:     entityCell,
			owner:    owner,
		})
	}, func() {
		_ = entity.PostStop(entityContext)
	})
	return true
}

func (x *shard) flushEntity(entityID string) {
	runtime, running := x.entities[entityID]
	if !running {
		return
	}
	for _, delivery := range x.buffer.take(entityID) {
		runtime.cell.Tell(envelope{message: delivery.message, sender: delivery.sender})
	}
}

// persist appends the event and folds it into the remembered entity set.
// A write failure stops the shard; the owning region restarts it after a
// backoff and recovery resynchronizes with the journal.
func (x *shard) persist(event any) bool {
	x.saveSnapshotWhenNeeded()

	eventType, payload, err := encodeEvent(event)
	if err != nil {
		x.logger.Errorf("shard %s/%s: %v", x.typeName, x.shardID, err)
		return false
	}

	journal := &persistence.Journal{
		PersistenceID:  x.persistenceID,
		SequenceNumber: x.sequenceNumber + 1,
		EventType:      eventType,
		Payload:        payload,
		Timestamp:      time.Now().Unix(),
	}
	if err := x.store.WriteJournals(x.ctx, []*persistence.Journal{journal}); err != nil {
		x.logger.Errorf("shard %s/%s: journal append failed, stopping: %v", x.typeName, x.shardID, err)
		x.cell.Stop()
		return false
	}
	x.sequenceNumber++
	x.eventsSinceSnapshot++

	if err := x.state.apply(event); err != nil {
		x.logger.Errorf("shard %s/%s: applying %s: %v", x.typeName, x.shardID, eventType, err)
		return false
	}
	return true
}

func (x *shard) saveSnapshotWhenNeeded() {
	if x.eventsSinceSnapshot < x.config.snapshotAfter {
		return
	}
	x.eventsSinceSnapshot = 0

	snapshot, err := encodeSnapshot(x.persistenceID, x.sequenceNumber, stateTypeShard, x.state.snapshot())
	if err != nil {
		x.logger.Warnf("shard %s/%s: %v", x.typeName, x.shardID, err)
		return
	}
	if err := x.store.SaveSnapshot(x.ctx, snapshot); err != nil {
		x.logger.Warnf("shard %s/%s: saving snapshot: %v", x.typeName, x.shardID, err)
	}
}
