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
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/tochemey/bavarde/directory"
	"github.com/tochemey/bavarde/internal/metric"
	"github.com/tochemey/bavarde/log"
	"github.com/tochemey/bavarde/mailbox"
	"github.com/tochemey/bavarde/protocol"
)

func newTestSession(t *testing.T, conn net.Conn) *session {
	t.Helper()
	metrics, err := metric.NewServerMetric(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return newSession(conn, directory.New(), metrics, log.DiscardLogger)
}

func TestSessionDelivery(t *testing.T) {
	t.Run("With message written to the client", func(t *testing.T) {
		local, remote := net.Pipe()
		defer local.Close()
		defer remote.Close()

		sess := newTestSession(t, local)
		alice := mailbox.New("alice")
		bob := mailbox.New("bob")

		alice.Ref()
		bob.AddMessage(7, alice, []byte("hi bob"))

		received := make(chan *protocol.Packet, 1)
		go func() {
			packet, _ := protocol.RecvPacket(remote)
			received <- packet
		}()

		sess.deliver(bob.NextEntry())

		packet := <-received
		require.NotNil(t, packet)
		assert.Equal(t, protocol.Message, packet.Header.Type)
		assert.EqualValues(t, 7, packet.Header.MsgID)
		from, body := packet.Parts()
		assert.Equal(t, "alice", string(from))
		assert.Equal(t, "hi bob", string(body))

		notice := alice.NextEntry()
		require.True(t, notice.IsNotice())
		assert.Equal(t, mailbox.Delivered, notice.Notice)
		assert.EqualValues(t, 7, notice.MsgID)
		assert.EqualValues(t, 1, alice.RefCount())
	})

	t.Run("With failed write bouncing the message", func(t *testing.T) {
		local, remote := net.Pipe()
		require.NoError(t, remote.Close())
		defer local.Close()

		sess := newTestSession(t, local)
		alice := mailbox.New("alice")
		bob := mailbox.New("bob")

		alice.Ref()
		bob.AddMessage(8, alice, []byte("lost"))
		sess.deliver(bob.NextEntry())

		notice := alice.NextEntry()
		require.True(t, notice.IsNotice())
		assert.Equal(t, mailbox.Bounced, notice.Notice)
		assert.EqualValues(t, 8, notice.MsgID)
		assert.EqualValues(t, 1, alice.RefCount())
	})

	t.Run("With defunct recipient bouncing the message", func(t *testing.T) {
		local, remote := net.Pipe()
		defer local.Close()
		defer remote.Close()

		sess := newTestSession(t, local)
		alice := mailbox.New("alice")
		bob := mailbox.New("bob")
		bob.SetDiscardHook(sess.bounce)
		bob.Purge()

		alice.Ref()
		bob.AddMessage(9, alice, []byte("too late"))

		notice := alice.NextEntry()
		require.True(t, notice.IsNotice())
		assert.Equal(t, mailbox.Bounced, notice.Notice)
		assert.EqualValues(t, 9, notice.MsgID)
		assert.EqualValues(t, 1, alice.RefCount())
	})
}
