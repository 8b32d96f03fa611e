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

package server

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tochemey/bavarde/directory"
	"github.com/tochemey/bavarde/internal/metric"
	"github.com/tochemey/bavarde/internal/validation"
	"github.com/tochemey/bavarde/log"
	"github.com/tochemey/bavarde/mailbox"
	"github.com/tochemey/bavarde/protocol"
)

// session services one client connection.
//
// The request loop reads packets off the connection and answers each one.
// Once the client has logged in, a second goroutine drains the client
// mailbox and writes what it finds to the connection. Writes from both
// goroutines are serialized by writeMu.
type session struct {
	id        uuid.UUID
	conn      net.Conn
	directory *directory.Directory
	metrics   *metric.ServerMetric
	logger    log.Logger

	writeMu sync.Mutex
	handle  string
	mailbox *mailbox.Mailbox
	workers errgroup.Group
}

func newSession(conn net.Conn, dir *directory.Directory, metrics *metric.ServerMetric, logger log.Logger) *session {
	id := uuid.New()
	return &session{
		id:        id,
		conn:      conn,
		directory: dir,
		metrics:   metrics,
		logger:    logger.With("session", id.String(), "remote", conn.RemoteAddr().String()),
	}
}

// run serves the connection until the client logs out or the connection
// fails, then unregisters the client and waits for the delivery goroutine.
func (s *session) run() {
	s.logger.Debug("session started")
	defer s.logger.Debug("session ended")

	for {
		packet, err := protocol.RecvPacket(s.conn)
		if err != nil {
			s.logger.Debugf("connection closed: %v", err)
			break
		}

		if done := s.dispatch(packet); done {
			break
		}
	}

	s.logout()
}

// dispatch answers one packet and reports whether the session is over
func (s *session) dispatch(packet *protocol.Packet) bool {
	switch packet.Header.Type {
	case protocol.Login:
		s.login(packet)
	case protocol.Users:
		s.users(packet)
	case protocol.Send:
		s.send(packet)
	case protocol.Logout:
		s.reply(protocol.Ack, packet.Header.MsgID, nil)
		return true
	default:
		s.logger.Warnf("unexpected %s packet", packet.Header.Type)
		s.reply(protocol.Nack, packet.Header.MsgID, nil)
	}
	return false
}

func (s *session) login(packet *protocol.Packet) {
	msgid := packet.Header.MsgID
	if s.mailbox != nil {
		s.logger.Warnf("%s is already logged in", s.handle)
		s.reply(protocol.Nack, msgid, nil)
		return
	}

	handle := string(packet.Payload)
	if err := validation.NewHandleValidator(handle).Validate(); err != nil {
		s.logger.Warnf("login rejected: %v", err)
		s.reply(protocol.Nack, msgid, nil)
		return
	}

	mb, ok := s.directory.Register(handle, s.conn)
	if !ok {
		s.logger.Infof("login of %s rejected", handle)
		s.reply(protocol.Nack, msgid, nil)
		return
	}

	mb.SetDiscardHook(s.bounce)
	s.handle = handle
	s.mailbox = mb
	s.logger = s.logger.With("handle", handle)

	// the ACK must reach the client before anything the delivery goroutine writes
	s.reply(protocol.Ack, msgid, nil)

	mb.Ref()
	s.workers.Go(func() error {
		defer mb.Unref()
		s.deliverAll(mb)
		return nil
	})
	s.logger.Info("logged in")
}

func (s *session) users(packet *protocol.Packet) {
	handles := s.directory.AllHandles()
	s.reply(protocol.Ack, packet.Header.MsgID, protocol.List(handles...))
}

func (s *session) send(packet *protocol.Packet) {
	msgid := packet.Header.MsgID
	if s.mailbox == nil {
		s.reply(protocol.Nack, msgid, nil)
		return
	}

	to, body := packet.Parts()
	recipient, ok := s.directory.Lookup(string(to))
	if !ok {
		s.logger.Debugf("unknown recipient %q", to)
		s.reply(protocol.Nack, msgid, nil)
		return
	}

	// the entry takes ownership of this reference
	s.mailbox.Ref()
	msgid = recipient.AddMessage(msgid, s.mailbox, body)
	recipient.Unref()

	s.metrics.MessagesSent().Add(context.Background(), 1)
	s.reply(protocol.Ack, msgid, nil)
}

// logout releases the session reference and unregisters the client. It
// returns once the delivery goroutine has drained the mailbox.
func (s *session) logout() {
	if s.mailbox == nil {
		return
	}

	s.mailbox.Unref()
	s.directory.Unregister(s.handle)
	_ = s.workers.Wait()
	s.mailbox = nil
	s.logger.Info("logged out")
}

// deliverAll writes every entry of mb to the client until mb is shut down
// and drained
func (s *session) deliverAll(mb *mailbox.Mailbox) {
	for entry := mb.NextEntry(); entry != nil; entry = mb.NextEntry() {
		s.deliver(entry)
	}
}

func (s *session) deliver(entry *mailbox.Entry) {
	defer entry.Release()

	if entry.IsNotice() {
		packetType := protocol.Rcvd
		if entry.Notice == mailbox.Bounced {
			packetType = protocol.Bounce
		}
		s.reply(packetType, entry.MsgID, entry.Body)
		return
	}

	payload := protocol.JoinLines([]byte(entry.From.Handle()), entry.Body)
	if err := s.write(protocol.Message, entry.MsgID, payload); err != nil {
		s.logger.Debugf("message %d could not be delivered: %v", entry.MsgID, err)
		s.bounce(entry)
		return
	}

	entry.From.AddNotice(mailbox.Delivered, entry.MsgID, nil)
	s.metrics.MessagesDelivered().Add(context.Background(), 1)
}

// bounce tells the sender of an undelivered message that it was dropped
func (s *session) bounce(entry *mailbox.Entry) {
	if !entry.IsMessage() || entry.From == nil {
		return
	}

	entry.From.AddNotice(mailbox.Bounced, entry.MsgID, nil)
	s.metrics.MessagesBounced().Add(context.Background(), 1)
}

// reply writes a packet and only logs a failure: the request loop notices
// the broken connection on its next read
func (s *session) reply(packetType protocol.PacketType, msgid uint32, payload []byte) {
	if err := s.write(packetType, msgid, payload); err != nil {
		s.logger.Debugf("failed to write %s: %v", packetType, err)
	}
}

func (s *session) write(packetType protocol.PacketType, msgid uint32, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.SendPacket(s.conn, &protocol.Header{Type: packetType, MsgID: msgid}, payload)
}
