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

package ticker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickerDeliversTicks(t *testing.T) {
	subject := New(10 * time.Millisecond)
	subject.Start()
	defer subject.Stop()

	assert.True(t, subject.Ticking())
	for i := 0; i < 3; i++ {
		select {
		case <-subject.Ticks:
		case <-time.After(time.Second):
			t.Fatal("no tick within a second")
		}
	}
}

func TestTickerStopEndsDelivery(t *testing.T) {
	subject := New(10 * time.Millisecond)
	subject.Start()

	select {
	case <-subject.Ticks:
	case <-time.After(time.Second):
		t.Fatal("no tick within a second")
	}

	subject.Stop()
	assert.False(t, subject.Ticking())

	select {
	case <-subject.Ticks:
		t.Fatal("tick delivered after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTickerStartAndStopAreIdempotent(t *testing.T) {
	subject := New(10 * time.Millisecond)
	subject.Start()
	subject.Start()
	assert.True(t, subject.Ticking())

	subject.Stop()
	subject.Stop()
	assert.False(t, subject.Ticking())
}

func TestTickerRequiresPositiveInterval(t *testing.T) {
	assert.Panics(t, func() { New(0) })
}
