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

package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func nextEvent(t *testing.T, subscription *Subscription) Event {
	t.Helper()
	select {
	case event, ok := <-subscription.Events():
		require.True(t, ok, "subscription closed")
		return event
	case <-time.After(time.Second):
		t.Fatal("no membership event within a second")
		return Event{}
	}
}

func TestManualFeedDeliversJoinsAndLeavesInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	feed := NewManualFeed()
	defer func() { _ = feed.Stop() }()

	subscription, err := feed.Subscribe()
	require.NoError(t, err)
	assert.Empty(t, subscription.Members())

	feed.Join("node1:1", "workers")
	feed.Join("node2:1")
	feed.Leave("node1:1")

	event := nextEvent(t, subscription)
	assert.Equal(t, MemberUp, event.Type)
	assert.Equal(t, "node1:1", event.Member.Address)
	assert.Equal(t, []string{"workers"}, event.Member.Roles)

	event = nextEvent(t, subscription)
	assert.Equal(t, MemberUp, event.Type)
	assert.Equal(t, "node2:1", event.Member.Address)

	event = nextEvent(t, subscription)
	assert.Equal(t, MemberRemoved, event.Type)
	assert.Equal(t, "node1:1", event.Member.Address)
}

func TestManualFeedSnapshotReflectsSubscribeTime(t *testing.T) {
	feed := NewManualFeed()
	defer func() { _ = feed.Stop() }()

	feed.Join("node1:1")
	feed.Join("node2:1")

	subscription, err := feed.Subscribe()
	require.NoError(t, err)

	addresses := make([]string, 0, len(subscription.Members()))
	for _, member := range subscription.Members() {
		addresses = append(addresses, member.Address)
	}
	assert.ElementsMatch(t, []string{"node1:1", "node2:1"}, addresses)

	// changes before subscribing are not replayed as events
	feed.Join("node3:1")
	event := nextEvent(t, subscription)
	assert.Equal(t, "node3:1", event.Member.Address)
}

func TestManualFeedAgesOrderMembersByJoinTime(t *testing.T) {
	feed := NewManualFeed()
	defer func() { _ = feed.Stop() }()

	first := feed.Join("node1:1")
	second := feed.Join("node2:1")
	assert.True(t, first.OlderThan(second))
	assert.False(t, second.OlderThan(first))

	// rejoining an up member is a no-op and keeps its age
	again := feed.Join("node1:1")
	assert.Equal(t, first.Age, again.Age)

	// a member that left and rejoins is a new, younger incarnation
	feed.Leave("node1:1")
	rejoined := feed.Join("node1:1")
	assert.True(t, second.OlderThan(rejoined))
}

func TestManualFeedStopCancelsSubscriptions(t *testing.T) {
	feed := NewManualFeed()
	subscription, err := feed.Subscribe()
	require.NoError(t, err)

	require.NoError(t, feed.Stop())

	_, ok := <-subscription.Events()
	assert.False(t, ok)

	_, err = feed.Subscribe()
	require.ErrorIs(t, err, ErrFeedStopped)
}

func TestSubscriptionCancelClosesEvents(t *testing.T) {
	feed := NewManualFeed()
	defer func() { _ = feed.Stop() }()

	subscription, err := feed.Subscribe()
	require.NoError(t, err)
	subscription.Cancel()

	_, ok := <-subscription.Events()
	assert.False(t, ok)

	// cancelling twice is harmless
	subscription.Cancel()
}

func TestMemberHasRole(t *testing.T) {
	member := Member{Address: "node1:1", Roles: []string{"workers"}}
	assert.True(t, member.HasRole(""))
	assert.True(t, member.HasRole("workers"))
	assert.False(t, member.HasRole("frontend"))
}
