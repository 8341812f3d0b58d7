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

	"github.com/tochemey/goshard/log"
)

// Config tunes one entity type. The zero value is not usable; build
// configs with NewConfig.
type Config struct {
	role                 string
	bufferSize           int
	retryInterval        time.Duration
	handOffTimeout       time.Duration
	shardStartTimeout    time.Duration
	rebalanceInterval    time.Duration
	removalMargin        time.Duration
	entityRestartBackoff time.Duration
	rememberEntities     bool
	snapshotAfter        int
	strategy             AllocationStrategy
	stopMessage          any
	logger               log.Logger
}

// NewConfig creates a config with production defaults, overridden by the
// given options.
func NewConfig(opts ...Option) *Config {
	config := &Config{
		role:                 "",
		bufferSize:           100_000,
		retryInterval:        2 * time.Second,
		handOffTimeout:       time.Minute,
		shardStartTimeout:    10 * time.Second,
		rebalanceInterval:    10 * time.Second,
		removalMargin:        0,
		entityRestartBackoff: 10 * time.Second,
		rememberEntities:     false,
		snapshotAfter:        1000,
		strategy:             NewLeastShardAllocationStrategy(10, 3),
		stopMessage:          nil,
		logger:               log.DefaultLogger,
	}
	for _, opt := range opts {
		opt.Apply(config)
	}
	return config
}

// Validate reports the first invalid setting.
func (x *Config) Validate() error {
	switch {
	case x.bufferSize <= 0:
		return fmt.Errorf("%w: buffer size must be positive", ErrInvalidConfig)
	case x.retryInterval <= 0:
		return fmt.Errorf("%w: retry interval must be positive", ErrInvalidConfig)
	case x.handOffTimeout <= 0:
		return fmt.Errorf("%w: handoff timeout must be positive", ErrInvalidConfig)
	case x.shardStartTimeout <= 0:
		return fmt.Errorf("%w: shard start timeout must be positive", ErrInvalidConfig)
	case x.rebalanceInterval <= 0:
		return fmt.Errorf("%w: rebalance interval must be positive", ErrInvalidConfig)
	case x.removalMargin < 0:
		return fmt.Errorf("%w: removal margin cannot be negative", ErrInvalidConfig)
	case x.entityRestartBackoff <= 0:
		return fmt.Errorf("%w: entity restart backoff must be positive", ErrInvalidConfig)
	case x.snapshotAfter <= 0:
		return fmt.Errorf("%w: snapshot interval must be positive", ErrInvalidConfig)
	case x.strategy == nil:
		return fmt.Errorf("%w: allocation strategy is required", ErrInvalidConfig)
	case x.logger == nil:
		return fmt.Errorf("%w: logger is required", ErrInvalidConfig)
	}
	return nil
}
