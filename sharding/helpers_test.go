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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tochemey/goshard/log"
)

// probe is a test participant collecting every message it is told.
type probe struct {
	cell     *cell
	messages chan any
}

func newProbe(name string) *probe {
	p := &probe{
		cell:     newCell(name),
		messages: make(chan any, 256),
	}
	p.cell.run(func(message any) {
		p.messages <- message
	}, nil)
	return p
}

func (p *probe) ref() Ref {
	return p.cell
}

func (p *probe) stop() {
	p.cell.Stop()
}

// expectMsg waits for the next message or fails the test.
func (p *probe) expectMsg(t *testing.T, timeout time.Duration) any {
	t.Helper()
	select {
	case message := <-p.messages:
		return message
	case <-time.After(timeout):
		t.Fatalf("probe %s: no message within %v", p.cell.Name(), timeout)
		return nil
	}
}

// expectNoMsg asserts silence for the given duration.
func (p *probe) expectNoMsg(t *testing.T, during time.Duration) {
	t.Helper()
	select {
	case message := <-p.messages:
		t.Fatalf("probe %s: unexpected message %T %v", p.cell.Name(), message, message)
	case <-time.After(during):
	}
}

// expectMsgOfType waits until a message of type M arrives, skipping
// other messages.
func expectMsgOfType[M any](t *testing.T, p *probe, timeout time.Duration) M {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case message := <-p.messages:
			if typed, ok := message.(M); ok {
				return typed
			}
		case <-deadline:
			var zero M
			t.Fatalf("probe %s: no %T within %v", p.cell.Name(), zero, timeout)
			return zero
		}
	}
}

// entityRecorder counts entity incarnations across a factory's output.
type entityRecorder struct {
	preStarts chan struct{}
	postStops chan struct{}
}

func newEntityRecorder() *entityRecorder {
	return &entityRecorder{
		preStarts: make(chan struct{}, 256),
		postStops: make(chan struct{}, 256),
	}
}

func (r *entityRecorder) factory() EntityFactory {
	return func() Entity {
		return &echoEntity{recorder: r}
	}
}

// drain empties the recorded signals and returns how many there were.
func drainSignals(signals chan struct{}) int {
	count := 0
	for {
		select {
		case <-signals:
			count++
		default:
			return count
		}
	}
}

func awaitSignals(t *testing.T, signals chan struct{}, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for seen := 0; seen < want; {
		select {
		case <-signals:
			seen++
		case <-deadline:
			t.Fatalf("saw %d signals, want %d within %v", seen, want, timeout)
		}
	}
}

// stopNow is the stop message used by tests: entities shut down on it.
type stopNow struct{}

// echoEntity replies "<entityID>:<message>" to every string it receives.
type echoEntity struct {
	recorder *entityRecorder
}

func echoFactory() Entity {
	return &echoEntity{}
}

func (e *echoEntity) PreStart(context.Context) error {
	if e.recorder != nil {
		select {
		case e.recorder.preStarts <- struct{}{}:
		default:
		}
	}
	return nil
}

func (e *echoEntity) Receive(ctx *EntityContext) {
	switch message := ctx.Message().(type) {
	case string:
		ctx.Respond(fmt.Sprintf("%s:%s", ctx.EntityID(), message))
	case stopNow:
		ctx.Shutdown()
	}
}

func (e *echoEntity) PostStop(context.Context) error {
	if e.recorder != nil {
		select {
		case e.recorder.postStops <- struct{}{}:
		default:
		}
	}
	return nil
}

// staticExtractor routes every message to a fixed entity and shard; the
// delivered payload is the message itself.
type staticExtractor struct {
	entityID string
	shardID  string
}

func (x staticExtractor) ExtractEntity(message any) (string, any, bool) {
	return x.entityID, message, true
}

func (x staticExtractor) ExtractShard(any) string {
	return x.shardID
}

func testConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()
	base := []Option{
		WithLogger(log.DiscardLogger),
		WithRetryInterval(50 * time.Millisecond),
		WithShardStartTimeout(500 * time.Millisecond),
		WithRebalanceInterval(100 * time.Millisecond),
		WithHandOffTimeout(2 * time.Second),
		WithEntityRestartBackoff(100 * time.Millisecond),
	}
	config := NewConfig(append(base, opts...)...)
	require.NoError(t, config.Validate())
	return config
}
