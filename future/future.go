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

package future

import (
	"context"
	"sync"
)

// Future represents a value which may or may not currently be available,
// but will be available at some point in the future, or an error if that
// value could not be made available. It provides a way to handle
// asynchronous computations and their results.
type Future[T any] struct {
	acceptOnce   sync.Once
	completeOnce sync.Once
	done         chan result[T]
	value        T
	err          error
}

type result[T any] struct {
	value T
	err   error
}

// New creates a new Future that executes the given long-running task in a
// separate goroutine. The Future is completed with the value returned by
// the task or failed with its error.
func New[T any](task func() (T, error)) *Future[T] {
	fut := &Future[T]{
		done: make(chan result[T], 1),
	}
	go func() {
		value, err := task()
		fut.complete(value, err)
	}()
	return fut
}

// Await blocks until the Future is completed or context is canceled and
// returns either a result or an error.
func (x *Future[T]) Await(ctx context.Context) (T, error) {
	x.acceptOnce.Do(func() {
		select {
		case res := <-x.done:
			x.value, x.err = res.value, res.err
		case <-ctx.Done():
			x.err = ctx.Err()
		}
	})
	return x.value, x.err
}

// AndThen registers a completion callback invoked with the outcome of the
// Future once it is available or once the context is canceled. The callback
// runs in its own goroutine; callers that own serial state should have the
// callback enqueue a message instead of mutating state directly.
func (x *Future[T]) AndThen(ctx context.Context, callback func(T, error)) {
	go func() {
		value, err := x.Await(ctx)
		callback(value, err)
	}()
}

// complete completes the Future with either a value or an error.
func (x *Future[T]) complete(value T, err error) {
	x.completeOnce.Do(func() {
		x.done <- result[T]{value: value, err: err}
	})
}
