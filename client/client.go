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
	"context"
	stdErrors "errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	goset "github.com/deckarep/golang-set/v2"
	"github.com/flowchartsman/retry"

	"github.com/tochemey/bavarde/errors"
	"github.com/tochemey/bavarde/log"
	"github.com/tochemey/bavarde/protocol"
)

// Client speaks the chat protocol to a bavarde server.
//
// Replies to requests and packets pushed by the server share the same
// connection: packets read while waiting for a reply are kept in order and
// handed out by Receive. A Client must be used from a single goroutine,
// except for Close which may interrupt a blocked call.
type Client struct {
	conn        net.Conn
	logger      log.Logger
	dialTimeout time.Duration
	maxRetries  int
	retryDelay  time.Duration

	mu      sync.Mutex
	handle  string
	inbox   []*protocol.Packet
	pending goset.Set[uint32]
}

// Dial connects to the server at addr. Failed attempts are retried with
// an exponential backoff.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	client := &Client{
		logger:      log.DiscardLogger,
		dialTimeout: 5 * time.Second,
		maxRetries:  5,
		retryDelay:  100 * time.Millisecond,
		pending:     goset.NewSet[uint32](),
	}

	for _, opt := range opts {
		opt.Apply(client)
	}

	dialer := &net.Dialer{Timeout: client.dialTimeout}
	retrier := retry.NewRetrier(client.maxRetries, client.retryDelay, client.dialTimeout)
	err := retrier.Run(func() error {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			client.logger.Debugf("failed to dial %s: %v", addr, err)
			return err
		}
		client.conn = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	return client, nil
}

// Handle returns the handle the client is logged in with
func (c *Client) Handle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Login registers handle with the server
func (c *Client) Login(ctx context.Context, handle string) error {
	if _, err := c.request(ctx, protocol.Login, []byte(handle)); err != nil {
		return fmt.Errorf("login as %q: %w", handle, err)
	}

	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()
	return nil
}

// Logout ends the session. The server closes its side afterwards.
func (c *Client) Logout(ctx context.Context) error {
	if c.Handle() == "" {
		return errors.ErrNotLoggedIn
	}

	if _, err := c.request(ctx, protocol.Logout, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	c.mu.Lock()
	c.handle = ""
	c.mu.Unlock()
	return nil
}

// Users returns the handles currently logged in
func (c *Client) Users(ctx context.Context) ([]string, error) {
	reply, err := c.request(ctx, protocol.Users, nil)
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	return protocol.ParseList(reply.Payload), nil
}

// Send delivers body to the client logged in as to and returns the msgid
// the server accepted the message under. The msgid stays pending until a
// RCVD or BOUNCE notice about it is received.
func (c *Client) Send(ctx context.Context, to string, body []byte) (uint32, error) {
	if c.Handle() == "" {
		return 0, errors.ErrNotLoggedIn
	}

	reply, err := c.request(ctx, protocol.Send, protocol.JoinLines([]byte(to), body))
	if err != nil {
		return 0, fmt.Errorf("send to %q: %w", to, err)
	}

	msgid := reply.Header.MsgID
	if !c.settled(msgid) {
		c.pending.Add(msgid)
	}
	return msgid, nil
}

// settled reports whether a notice about msgid was queued while waiting for
// the ACK. The recipient may be served before the server writes that ACK.
func (c *Client) settled(msgid uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, packet := range c.inbox {
		switch packet.Header.Type {
		case protocol.Rcvd, protocol.Bounce:
			if packet.Header.MsgID == msgid {
				return true
			}
		}
	}
	return false
}

// Pending returns the msgids sent but not yet acknowledged by a notice
func (c *Client) Pending() []uint32 {
	return c.pending.ToSlice()
}

// Receive returns the next packet pushed by the server: MESSAGE, RCVD or
// BOUNCE. It blocks until one arrives or ctx is done.
func (c *Client) Receive(ctx context.Context) (*protocol.Packet, error) {
	c.mu.Lock()
	if len(c.inbox) > 0 {
		packet := c.inbox[0]
		c.inbox = c.inbox[1:]
		c.mu.Unlock()
		return packet, nil
	}
	c.mu.Unlock()

	packet, err := c.read(ctx)
	if err != nil {
		return nil, err
	}
	c.track(packet)
	return packet, nil
}

// Close closes the connection to the server
func (c *Client) Close() error {
	return c.conn.Close()
}

// request sends a packet and waits for its ACK or NACK. Pushed packets
// received in between are queued for Receive.
func (c *Client) request(ctx context.Context, packetType protocol.PacketType, payload []byte) (*protocol.Packet, error) {
	hdr := &protocol.Header{Type: packetType}
	if err := protocol.SendPacket(c.conn, hdr, payload); err != nil {
		return nil, err
	}

	for {
		packet, err := c.read(ctx)
		if err != nil {
			return nil, err
		}

		switch packet.Header.Type {
		case protocol.Ack:
			return packet, nil
		case protocol.Nack:
			return nil, errors.ErrRejected
		case protocol.Message, protocol.Rcvd, protocol.Bounce:
			c.track(packet)
			c.mu.Lock()
			c.inbox = append(c.inbox, packet)
			c.mu.Unlock()
		default:
			return nil, fmt.Errorf("%w: %s", errors.ErrUnexpectedPacket, packet.Header.Type)
		}
	}
}

// read reads one packet, honoring the deadline of ctx
func (c *Client) read(ctx context.Context) (*protocol.Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	packet, err := protocol.RecvPacket(c.conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// the read deadline can fire slightly ahead of the context timer
		if ok && stdErrors.Is(err, os.ErrDeadlineExceeded) {
			return nil, context.DeadlineExceeded
		}
		return nil, err
	}
	return packet, nil
}

// track settles the pending msgid a notice refers to
func (c *Client) track(packet *protocol.Packet) {
	switch packet.Header.Type {
	case protocol.Rcvd, protocol.Bounce:
		c.pending.Remove(packet.Header.MsgID)
	}
}
