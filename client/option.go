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

package client

import (
	"time"

	"github.com/tochemey/bavarde/log"
)

// Option is the interface that applies a client option.
type Option interface {
	// Apply sets the Option value of a Client.
	Apply(*Client)
}

var _ Option = OptionFunc(nil)

// OptionFunc implements the Option interface.
type OptionFunc func(*Client)

// Apply applies the client option
func (f OptionFunc) Apply(c *Client) {
	f(c)
}

// WithLogger sets the client logger
func WithLogger(logger log.Logger) Option {
	return OptionFunc(func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	})
}

// WithDialTimeout bounds each dial attempt and the backoff between attempts
func WithDialTimeout(timeout time.Duration) Option {
	return OptionFunc(func(c *Client) {
		c.dialTimeout = timeout
	})
}

// WithDialRetries sets how many times a failed dial is retried and the
// initial delay between attempts
func WithDialRetries(maxRetries int, delay time.Duration) Option {
	return OptionFunc(func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	})
}
