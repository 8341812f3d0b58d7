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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tochemey/goshard/log"
)

func TestConfigDefaultsAreValid(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
}

func TestConfigOptions(t *testing.T) {
	strategy := NewLeastShardAllocationStrategy(5, 2)
	config := NewConfig(
		WithRole("workers"),
		WithBufferSize(42),
		WithRetryInterval(time.Second),
		WithHandOffTimeout(30*time.Second),
		WithShardStartTimeout(5*time.Second),
		WithRebalanceInterval(20*time.Second),
		WithRemovalMargin(15*time.Second),
		WithRememberEntities(true),
		WithEntityRestartBackoff(3*time.Second),
		WithSnapshotAfter(250),
		WithAllocationStrategy(strategy),
		WithStopMessage(stopNow{}),
		WithLogger(log.DiscardLogger),
	)

	assert.Equal(t, "workers", config.role)
	assert.Equal(t, 42, config.bufferSize)
	assert.Equal(t, time.Second, config.retryInterval)
	assert.Equal(t, 30*time.Second, config.handOffTimeout)
	assert.Equal(t, 5*time.Second, config.shardStartTimeout)
	assert.Equal(t, 20*time.Second, config.rebalanceInterval)
	assert.Equal(t, 15*time.Second, config.removalMargin)
	assert.True(t, config.rememberEntities)
	assert.Equal(t, 3*time.Second, config.entityRestartBackoff)
	assert.Equal(t, 250, config.snapshotAfter)
	assert.Same(t, strategy, config.strategy)
	assert.Equal(t, stopNow{}, config.stopMessage)
	assert.Equal(t, log.DiscardLogger, config.logger)
	require.NoError(t, config.Validate())
}

func TestConfigValidateRejectsBadSettings(t *testing.T) {
	cases := []struct {
		name string
		opts []Option
	}{
		{name: "zero buffer size", opts: []Option{WithBufferSize(0)}},
		{name: "negative retry interval", opts: []Option{WithRetryInterval(-time.Second)}},
		{name: "zero handoff timeout", opts: []Option{WithHandOffTimeout(0)}},
		{name: "zero shard start timeout", opts: []Option{WithShardStartTimeout(0)}},
		{name: "zero rebalance interval", opts: []Option{WithRebalanceInterval(0)}},
		{name: "negative removal margin", opts: []Option{WithRemovalMargin(-time.Second)}},
		{name: "zero restart backoff", opts: []Option{WithEntityRestartBackoff(0)}},
		{name: "zero snapshot interval", opts: []Option{WithSnapshotAfter(0)}},
		{name: "nil strategy", opts: []Option{WithAllocationStrategy(nil)}},
		{name: "nil logger", opts: []Option{WithLogger(nil)}},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			err := NewConfig(testCase.opts...).Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
