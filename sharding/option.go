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
	"time"

	"github.com/tochemey/goshard/log"
)

// Option is the interface that applies a configuration option.
type Option interface {
	// Apply sets the Option value of a config.
	Apply(config *Config)
}

// enforce compilation error
var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(config *Config)

// Apply applies the options to Config
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithRole restricts the entity type to cluster members carrying the role.
// Members without the role neither host shards nor the coordinator.
func WithRole(role string) Option {
	return OptionFunc(func(config *Config) {
		config.role = role
	})
}

// WithBufferSize bounds how many deliveries a region or shard parks while
// a destination is unresolved. The bound is shared across all pending
// shards or entities of the owner.
func WithBufferSize(size int) Option {
	return OptionFunc(func(config *Config) {
		config.bufferSize = size
	})
}

// WithRetryInterval sets how often a region retries registration, pending
// shard location requests and graceful shutdown progress.
func WithRetryInterval(interval time.Duration) Option {
	return OptionFunc(func(config *Config) {
		config.retryInterval = interval
	})
}

// WithHandOffTimeout bounds how long a rebalance waits for regions to
// acknowledge and for the owner to drain a shard before giving up.
func WithHandOffTimeout(timeout time.Duration) Option {
	return OptionFunc(func(config *Config) {
		config.handOffTimeout = timeout
	})
}

// WithShardStartTimeout sets the interval at which the coordinator resends
// an unacknowledged order to host a shard.
func WithShardStartTimeout(timeout time.Duration) Option {
	return OptionFunc(func(config *Config) {
		config.shardStartTimeout = timeout
	})
}

// WithRebalanceInterval sets how often the coordinator consults the
// allocation strategy for shards to relocate.
func WithRebalanceInterval(interval time.Duration) Option {
	return OptionFunc(func(config *Config) {
		config.rebalanceInterval = interval
	})
}

// WithRemovalMargin delays acting on a terminated region, giving a
// transiently unreachable node time to come back before its shards are
// reallocated. Zero reallocates immediately.
func WithRemovalMargin(margin time.Duration) Option {
	return OptionFunc(func(config *Config) {
		config.removalMargin = margin
	})
}

// WithRememberEntities persists which entities are running per shard, so
// they restart automatically after a crash or relocation.
func WithRememberEntities(remember bool) Option {
	return OptionFunc(func(config *Config) {
		config.rememberEntities = remember
	})
}

// WithEntityRestartBackoff sets the delay before a remembered entity that
// terminated unexpectedly is restarted.
func WithEntityRestartBackoff(backoff time.Duration) Option {
	return OptionFunc(func(config *Config) {
		config.entityRestartBackoff = backoff
	})
}

// WithSnapshotAfter sets how many journal events are written between
// snapshots of the coordinator or shard state.
func WithSnapshotAfter(events int) Option {
	return OptionFunc(func(config *Config) {
		config.snapshotAfter = events
	})
}

// WithAllocationStrategy replaces the shard allocation strategy.
func WithAllocationStrategy(strategy AllocationStrategy) Option {
	return OptionFunc(func(config *Config) {
		config.strategy = strategy
	})
}

// WithStopMessage sets the message delivered to entities when they are
// asked to stop during passivation or handoff. Entities receiving it must
// call Shutdown on their context once done. When nil, entities are stopped
// without a final message.
func WithStopMessage(message any) Option {
	return OptionFunc(func(config *Config) {
		config.stopMessage = message
	})
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(config *Config) {
		config.logger = logger
	})
}
