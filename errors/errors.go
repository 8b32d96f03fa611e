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

package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrCounterUnderflow is raised when a counter is decremented while already at zero.
	// It signals a broken caller contract and is reported through a panic.
	ErrCounterUnderflow = errors.New("counter decremented below zero")

	// ErrRefCountUnderflow is raised when a mailbox reference is released more times than it was taken.
	ErrRefCountUnderflow = errors.New("mailbox reference count decremented below zero")

	// ErrMailboxFinalized is raised when a mailbox is used after its shutdown completed.
	ErrMailboxFinalized = errors.New("mailbox used after shutdown")

	// ErrPayloadTooLarge is returned when a packet announces a payload above the allowed size.
	ErrPayloadTooLarge = errors.New("packet payload too large")

	// ErrInvalidPacket is returned when a nil header is handed to the protocol layer.
	ErrInvalidPacket = errors.New("invalid packet")

	// ErrNoListener is returned when the TCP server is served before it listens.
	ErrNoListener = errors.New("server is not listening")

	// ErrInvalidListener is returned when the listener is not a TCP listener.
	ErrInvalidListener = errors.New("invalid listener")

	// ErrServerNotStarted is returned when the chat server is stopped before being started.
	ErrServerNotStarted = errors.New("server has not started")

	// ErrServerStarted is returned when the chat server is started twice.
	ErrServerStarted = errors.New("server already started")

	// ErrShutdownTimeout is returned when service goroutines fail to drain in time.
	ErrShutdownTimeout = errors.New("timed out waiting for client sessions to terminate")

	// ErrNotLoggedIn is returned by the client when an operation requires a login.
	ErrNotLoggedIn = errors.New("client is not logged in")

	// ErrRejected is returned by the client when the server answers with a NACK.
	ErrRejected = errors.New("request rejected by server")

	// ErrUnexpectedPacket is returned by the client when the server answers with an unexpected packet.
	ErrUnexpectedPacket = errors.New("unexpected packet")

	// ErrInvalidLogLevel is returned when a configured log level cannot be parsed.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// ProtocolError wraps an I/O failure raised while sending or receiving a packet
type ProtocolError struct {
	err error
}

// enforce compilation error
var _ error = (*ProtocolError)(nil)

// NewProtocolError returns an instance of ProtocolError
func NewProtocolError(op string, err error) *ProtocolError {
	return &ProtocolError{
		err: fmt.Errorf("%s: %w", op, err),
	}
}

// Error implements the standard error interface
func (e *ProtocolError) Error() string {
	return e.err.Error()
}

func (e *ProtocolError) Unwrap() error {
	return e.err
}
