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

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/tochemey/goshard/log"
)

// rebalanceWorker drives the relocation of one shard: every region first
// forgets the shard's location, only then is the owner told to drain it.
// That order guarantees no region routes into a shard that is shutting
// down. Either phase timing out aborts the attempt; a later tick retries.
type rebalanceWorker struct {
	cell        *cell
	shard       string
	source      Ref
	coordinator Ref
	timeout     time.Duration
	logger      log.Logger

	pendingAcks mapset.Set[string]
	draining    bool
	timer       *time.Timer
}

func newRebalanceWorker(shard string, source, coordinator Ref, timeout time.Duration, logger log.Logger) *rebalanceWorker {
	return &rebalanceWorker{
		cell:        newCell(fmt.Sprintf("rebalance/%s", shard)),
		shard:       shard,
		source:      source,
		coordinator: coordinator,
		timeout:     timeout,
		logger:      logger,
		pendingAcks: mapset.NewSet[string](),
	}
}

// start begins phase one, asking every participant to forget the shard.
func (x *rebalanceWorker) start(participants []Ref) {
	x.cell.run(x.receive, x.postStop)

	for _, participant := range participants {
		x.pendingAcks.Add(participant.ID())
		participant.Tell(beginHandOff{shard: x.shard, replyTo: x.cell})
	}

	cell := x.cell
	x.timer = time.AfterFunc(x.timeout, func() {
		cell.Tell(workerTimeout{})
	})

	if x.pendingAcks.IsEmpty() {
		x.cell.Tell(beginHandOffAck{shard: x.shard})
	}
}

func (x *rebalanceWorker) receive(message any) {
	switch msg := message.(type) {
	case beginHandOffAck:
		if msg.shard != x.shard || x.draining {
			return
		}
		if msg.from != nil {
			x.pendingAcks.Remove(msg.from.ID())
		}
		if x.pendingAcks.IsEmpty() {
			x.draining = true
			x.source.Tell(handOff{shard: x.shard, replyTo: x.cell})
		}
	case shardStopped:
		if msg.shard != x.shard || !x.draining {
			return
		}
		x.done(true)
	case workerTimeout:
		x.logger.Warnf("rebalance of shard %s timed out after %v", x.shard, x.timeout)
		x.done(false)
	}
}

func (x *rebalanceWorker) done(ok bool) {
	x.coordinator.Tell(rebalanceDone{shard: x.shard, ok: ok})
	x.cell.Stop()
}

func (x *rebalanceWorker) postStop() {
	if x.timer != nil {
		x.timer.Stop()
	}
}
