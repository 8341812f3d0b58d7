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
)

func TestCellProcessesMessagesInOrder(t *testing.T) {
	received := make(chan int, 100)
	subject := newCell("test")
	subject.run(func(message any) {
		received <- message.(int)
	}, nil)

	for i := 0; i < 50; i++ {
		subject.Tell(i)
	}

	for i := 0; i < 50; i++ {
		select {
		case got := <-received:
			require.Equal(t, i, got)
		case <-time.After(time.Second):
			t.Fatalf("message %d never arrived", i)
		}
	}
	subject.Stop()
}

func TestCellStopProcessesEarlierMessagesFirst(t *testing.T) {
	received := make(chan int, 100)
	subject := newCell("test")
	subject.run(func(message any) {
		received <- message.(int)
	}, nil)

	subject.Tell(1)
	subject.Tell(2)
	subject.Stop()
	subject.Tell(3)

	<-subject.Done()
	close(received)
	var got []int
	for value := range received {
		got = append(got, value)
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestCellRunsPostStopBeforeDone(t *testing.T) {
	stopped := false
	subject := newCell("test")
	subject.run(func(any) {}, func() {
		stopped = true
	})

	subject.Stop()
	select {
	case <-subject.Done():
	case <-time.After(time.Second):
		t.Fatal("cell never stopped")
	}
	assert.True(t, stopped)
}

func TestCellNotifiesWatchersOnTermination(t *testing.T) {
	watcher := newProbe("watcher")
	defer watcher.stop()

	subject := newCell("watched")
	subject.run(func(any) {}, nil)
	subject.watch(watcher.ref())
	subject.Stop()

	notice := expectMsgOfType[terminated](t, watcher, time.Second)
	assert.Equal(t, subject.ID(), notice.ref.ID())
}

func TestCellNotifiesLateWatcherImmediately(t *testing.T) {
	subject := newCell("watched")
	subject.run(func(any) {}, nil)
	subject.Stop()
	<-subject.Done()

	watcher := newProbe("watcher")
	defer watcher.stop()
	subject.watch(watcher.ref())

	notice := expectMsgOfType[terminated](t, watcher, time.Second)
	assert.Equal(t, subject.ID(), notice.ref.ID())
}

func TestCellUnwatchCancelsNotification(t *testing.T) {
	watcher := newProbe("watcher")
	defer watcher.stop()

	subject := newCell("watched")
	subject.run(func(any) {}, nil)
	subject.watch(watcher.ref())
	subject.unwatch(watcher.ref())
	subject.Stop()
	<-subject.Done()

	watcher.expectNoMsg(t, 100*time.Millisecond)
}

func TestCellIdentity(t *testing.T) {
	left := newCell("same-name")
	right := newCell("same-name")
	assert.NotEqual(t, left.ID(), right.ID())
	assert.Equal(t, left.Name(), right.Name())
}
