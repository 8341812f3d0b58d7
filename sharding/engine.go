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
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/tochemey/goshard/log"
	"github.com/tochemey/goshard/membership"
	"github.com/tochemey/goshard/persistence"
)

// Engine is the per-process entry point to sharding. One engine runs per
// cluster member; entity types are started on it and used through the
// returned handles. Engines of one logical cluster must share a Directory
// and consume membership feeds agreeing on the member set.
type Engine struct {
	address   string
	feed      membership.Feed
	store     persistence.JournalStore
	directory *Directory
	logger    log.Logger

	started *atomic.Bool
	group   singleflight.Group
	mu      sync.Mutex
	handles map[string]*Handle
}

// EngineOption configures an Engine.
type EngineOption interface {
	// Apply sets the option value on the engine.
	Apply(engine *Engine)
}

// enforce compilation error
var _ EngineOption = EngineOptionFunc(nil)

// EngineOptionFunc implements the EngineOption interface.
type EngineOptionFunc func(engine *Engine)

// Apply applies the option to the engine.
func (f EngineOptionFunc) Apply(engine *Engine) {
	f(engine)
}

// WithDirectory shares a coordinator directory between engines. All
// engines of one cluster must use the same directory.
func WithDirectory(directory *Directory) EngineOption {
	return EngineOptionFunc(func(engine *Engine) {
		engine.directory = directory
	})
}

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger log.Logger) EngineOption {
	return EngineOptionFunc(func(engine *Engine) {
		engine.logger = logger
	})
}

// NewEngine creates an engine for the member at the given address. The
// address must match the one the membership feed advertises for this
// member, it is how the engine recognizes itself as the oldest member.
func NewEngine(address string, feed membership.Feed, store persistence.JournalStore, opts ...EngineOption) *Engine {
	engine := &Engine{
		address:   address,
		feed:      feed,
		store:     store,
		directory: NewDirectory(),
		logger:    log.DefaultLogger,
		started:   atomic.NewBool(false),
		handles:   map[string]*Handle{},
	}
	for _, opt := range opts {
		opt.Apply(engine)
	}
	return engine
}

// Address returns the member address the engine runs on.
func (x *Engine) Address() string {
	return x.address
}

// Start connects the journal store and makes the engine usable.
func (x *Engine) Start(ctx context.Context) error {
	if !x.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := x.store.Connect(ctx); err != nil {
		x.started.Store(false)
		return err
	}
	x.logger.Infof("sharding engine started on %s", x.address)
	return nil
}

// Stop stops every started entity type and disconnects the store. The
// membership feed is owned by the caller and left running.
func (x *Engine) Stop(ctx context.Context) error {
	if !x.started.CompareAndSwap(true, false) {
		return nil
	}

	x.mu.Lock()
	handles := make([]*Handle, 0, len(x.handles))
	for _, handle := range x.handles {
		handles = append(handles, handle)
	}
	x.handles = map[string]*Handle{}
	x.mu.Unlock()

	for _, handle := range handles {
		handle.stop(ctx)
	}
	err := x.store.Disconnect(ctx)
	x.logger.Infof("sharding engine on %s stopped", x.address)
	return err
}

// StartSharding starts hosting an entity type on this member and returns
// the handle used to message its entities. Starting the same type again
// returns the existing handle.
func (x *Engine) StartSharding(ctx context.Context, typeName string, factory EntityFactory, extractor Extractor, config *Config) (*Handle, error) {
	if factory == nil {
		return nil, ErrEntityFactoryRequired
	}
	return x.startType(ctx, typeName, factory, extractor, config, false)
}

// StartShardingProxy starts the entity type in proxy mode: this member
// routes to entities hosted elsewhere but never hosts shards itself.
func (x *Engine) StartShardingProxy(ctx context.Context, typeName string, extractor Extractor, config *Config) (*Handle, error) {
	return x.startType(ctx, typeName, nil, extractor, config, true)
}

func (x *Engine) startType(ctx context.Context, typeName string, factory EntityFactory, extractor Extractor, config *Config, proxy bool) (*Handle, error) {
	if !x.started.Load() {
		return nil, ErrEngineNotStarted
	}
	if typeName == "" {
		return nil, ErrTypeNameRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if config == nil {
		config = NewConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// concurrent starts of one type collapse into a single handle
	value, err, _ := x.group.Do(typeName, func() (any, error) {
		x.mu.Lock()
		existing, ok := x.handles[typeName]
		x.mu.Unlock()
		if ok {
			if existing.proxy != proxy {
				return nil, ErrProxyStarted
			}
			return existing, nil
		}
		return x.newHandle(ctx, typeName, factory, extractor, config, proxy)
	})
	if err != nil {
		return nil, err
	}
	return value.(*Handle), nil
}

func (x *Engine) newHandle(ctx context.Context, typeName string, factory EntityFactory, extractor Extractor, config *Config, proxy bool) (*Handle, error) {
	subscription, err := x.feed.Subscribe()
	if err != nil {
		return nil, err
	}

	resolver := func(oldest membership.Member) Ref {
		return x.directory.resolve(typeName, oldest.Address)
	}

	handle := &Handle{
		typeName:     typeName,
		proxy:        proxy,
		engine:       x,
		config:       config,
		region:       newRegion(typeName, x.address, proxy, factory, extractor, x.store, resolver, config),
		subscription: subscription,
		stopped:      atomic.NewBool(false),
	}
	// proxies route only; they never host the coordinator either
	if !proxy {
		handle.singleton = newSingletonManager(typeName, x.address, x.store, x.directory, config)
	}

	if err := handle.region.start(ctx); err != nil {
		subscription.Cancel()
		return nil, err
	}
	go handle.pumpMembership()

	x.mu.Lock()
	x.handles[typeName] = handle
	x.mu.Unlock()

	x.logger.Infof("entity type %s started on %s (proxy=%t)", typeName, x.address, proxy)
	return handle, nil
}

// Handle is the per-process access point to one entity type.
type Handle struct {
	typeName     string
	proxy        bool
	engine       *Engine
	config       *Config
	region       *region
	singleton    *singletonManager
	subscription *membership.Subscription
	stopped      *atomic.Bool
}

// TypeName returns the entity type this handle serves.
func (x *Handle) TypeName() string {
	return x.typeName
}

// Tell routes a message to its entity, wherever the entity lives. Delivery
// is best-effort, at most once.
func (x *Handle) Tell(message any) error {
	return x.TellWithSender(message, nil)
}

// TellWithSender routes a message and names the ref entity replies go to.
func (x *Handle) TellWithSender(message any, sender Ref) error {
	if x.stopped.Load() {
		return ErrHandleStopped
	}
	x.region.ref().Tell(envelope{message: message, sender: sender})
	return nil
}

// Drain hands this member's shards over to the rest of the cluster and
// stops the local region, blocking until the drain completed or the
// context expired. The handle is unusable afterwards.
func (x *Handle) Drain(ctx context.Context) error {
	if !x.stopped.CompareAndSwap(false, true) {
		return ErrHandleStopped
	}
	x.region.ref().Tell(gracefulShutdown{})
	select {
	case <-x.region.cell.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	x.teardown(ctx)
	return nil
}

// CurrentRegions returns the names of the regions currently known to the
// coordinator. It is a diagnostics call answered by the coordinator; an
// empty result means the coordinator is not reachable yet.
func (x *Handle) CurrentRegions(ctx context.Context) ([]string, error) {
	if x.stopped.Load() {
		return nil, ErrHandleStopped
	}

	probe := newCell("probe/current-regions")
	answer := make(chan []string, 1)
	probe.run(func(message any) {
		if response, ok := message.(currentRegionsResponse); ok {
			answer <- response.regions
			probe.Stop()
		}
	}, nil)

	x.region.ref().Tell(currentRegionsRequest{replyTo: probe})
	select {
	case regions := <-answer:
		return regions, nil
	case <-ctx.Done():
		probe.Stop()
		return nil, ctx.Err()
	}
}

// DroppedMessages returns how many deliveries this member's region has
// dropped due to buffer overflow.
func (x *Handle) DroppedMessages() int64 {
	return x.region.buffer.droppedCount()
}

func (x *Handle) stop(ctx context.Context) {
	if !x.stopped.CompareAndSwap(false, true) {
		return
	}
	x.region.stop(ctx)
	x.teardown(ctx)
}

func (x *Handle) teardown(ctx context.Context) {
	x.subscription.Cancel()
	if x.singleton != nil {
		x.singleton.shutdown(ctx)
	}
	x.engine.mu.Lock()
	if x.engine.handles[x.typeName] == x {
		delete(x.engine.handles, x.typeName)
	}
	x.engine.mu.Unlock()
}

// pumpMembership feeds membership into the region and the singleton
// manager: the snapshot first, as member-up events, then every change in
// feed order. It exits when the subscription is cancelled.
func (x *Handle) pumpMembership() {
	for _, member := range x.subscription.Members() {
		x.dispatchMembership(membership.Event{Type: membership.MemberUp, Member: member})
	}
	for event := range x.subscription.Events() {
		x.dispatchMembership(event)
	}
}

func (x *Handle) dispatchMembership(event membership.Event) {
	// the singleton sees the event first so the coordinator is published
	// by the time the region tries to resolve it
	if x.singleton != nil {
		x.singleton.onMembershipChange(event)
	}
	x.region.ref().Tell(membershipChange{event: event})
}
