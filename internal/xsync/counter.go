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

package xsync

import (
	"context"
	"sync"

	"github.com/tochemey/bavarde/errors"
)

// Counter is an active count paired with a broadcastable "reached zero" gate.
//
// The gate is a channel that is closed whenever the count is zero and replaced
// by a fresh one as soon as the count leaves zero. Any number of goroutines may
// wait on it, and the counter can cycle through zero any number of times.
// The count and the gate are only ever mutated together under the same mutex,
// so an observer that sees the gate closed knows the count was zero at that
// instant.
//
// The zero value is not ready for use; always construct via NewCounter.
type Counter struct {
	mu    sync.Mutex
	count int64
	zero  chan struct{}
}

// NewCounter creates a Counter starting at zero.
func NewCounter() *Counter {
	return newCounter(0)
}

// NewCounterFrom creates a Counter starting at n. Negative values are clamped to zero.
func NewCounterFrom(n int64) *Counter {
	if n < 0 {
		n = 0
	}
	return newCounter(n)
}

func newCounter(n int64) *Counter {
	zero := make(chan struct{})
	if n == 0 {
		close(zero)
	}
	return &Counter{count: n, zero: zero}
}

// Increment adds one to the count and returns the new value.
// Leaving zero re-arms the gate.
func (c *Counter) Increment() int64 {
	c.mu.Lock()
	if c.count == 0 {
		c.zero = make(chan struct{})
	}
	c.count++
	n := c.count
	c.mu.Unlock()
	return n
}

// Decrement removes one from the count and returns the new value. Reaching zero
// releases every current waiter. Decrementing a counter that is already zero is
// a programming error and panics with ErrCounterUnderflow.
func (c *Counter) Decrement() int64 {
	n, ok := c.TryDecrement()
	if !ok {
		panic(errors.ErrCounterUnderflow)
	}
	return n
}

// TryDecrement is Decrement without the panic: it reports false and leaves the
// counter untouched when the count is already zero.
func (c *Counter) TryDecrement() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count == 0 {
		return 0, false
	}
	c.count--
	if c.count == 0 {
		close(c.zero)
	}
	return c.count, true
}

// Count returns a snapshot of the current count.
func (c *Counter) Count() int64 {
	c.mu.Lock()
	n := c.count
	c.mu.Unlock()
	return n
}

// Zero returns a channel that is closed once the count is zero.
// The channel belongs to the current cycle: a later Increment does not reopen it.
func (c *Counter) Zero() <-chan struct{} {
	c.mu.Lock()
	ch := c.zero
	c.mu.Unlock()
	return ch
}

// Wait blocks until the count is, or becomes, zero.
func (c *Counter) Wait() {
	<-c.Zero()
}

// WaitContext blocks until the count reaches zero or the context is done,
// in which case the context error is returned.
func (c *Counter) WaitContext(ctx context.Context) error {
	zero := c.Zero()
	select {
	case <-zero:
		return nil
	default:
	}

	select {
	case <-zero:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
