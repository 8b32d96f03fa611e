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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/goleak"

	"github.com/tochemey/bavarde/client"
	"github.com/tochemey/bavarde/config"
	"github.com/tochemey/bavarde/errors"
	"github.com/tochemey/bavarde/log"
	"github.com/tochemey/bavarde/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startTestServer(t *testing.T) *Server {
	t.Helper()
	cfg, err := config.New(
		config.WithHost("127.0.0.1"),
		config.WithPort(dynaport.Get(1)[0]),
		config.WithAcceptLoops(1),
		config.WithShutdownTimeout(5*time.Second),
		config.WithLogger(log.DiscardLogger))
	require.NoError(t, err)

	srv, err := New(cfg, WithMeterProvider(noop.NewMeterProvider()))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	return srv
}

func stopTestServer(t *testing.T, srv *Server) {
	t.Helper()
	require.NoError(t, srv.Stop(context.Background()))
}

func dial(t *testing.T, srv *Server) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func login(t *testing.T, srv *Server, handle string) *client.Client {
	t.Helper()
	c := dial(t, srv)
	require.NoError(t, c.Login(testContext(t), handle))
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestServerLifecycle(t *testing.T) {
	t.Run("With start and stop", func(t *testing.T) {
		srv := startTestServer(t)
		require.NotNil(t, srv.Addr())
		assert.ErrorIs(t, srv.Start(context.Background()), errors.ErrServerStarted)

		stopTestServer(t, srv)
		// idempotent
		require.NoError(t, srv.Stop(context.Background()))
	})

	t.Run("With stop before start", func(t *testing.T) {
		cfg, err := config.New(config.WithHost("127.0.0.1"), config.WithPort(0), config.WithLogger(log.DiscardLogger))
		require.NoError(t, err)
		srv, err := New(cfg, WithMeterProvider(noop.NewMeterProvider()))
		require.NoError(t, err)
		assert.Nil(t, srv.Addr())
		assert.ErrorIs(t, srv.Stop(context.Background()), errors.ErrServerNotStarted)
	})

	t.Run("With missing configuration", func(t *testing.T) {
		_, err := New(nil)
		require.Error(t, err)
	})
}

func TestChat(t *testing.T) {
	t.Run("With message delivery and receipt", func(t *testing.T) {
		srv := startTestServer(t)
		ctx := testContext(t)

		alice := login(t, srv, "alice")
		bob := login(t, srv, "bob")

		users, err := alice.Users(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "bob"}, users)

		msgid, err := alice.Send(ctx, "bob", []byte("hello bob"))
		require.NoError(t, err)
		require.NotZero(t, msgid)

		packet, err := bob.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, protocol.Message, packet.Header.Type)
		assert.Equal(t, msgid, packet.Header.MsgID)
		from, body := packet.Parts()
		assert.Equal(t, "alice", string(from))
		assert.Equal(t, "hello bob", string(body))

		receipt, err := alice.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, protocol.Rcvd, receipt.Header.Type)
		assert.Equal(t, msgid, receipt.Header.MsgID)
		assert.Empty(t, alice.Pending())

		require.NoError(t, bob.Logout(ctx))
		require.Eventually(t, func() bool { return srv.Directory().Len() == 1 }, 5*time.Second, 10*time.Millisecond)

		users, err = alice.Users(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, users)

		stopTestServer(t, srv)
		assert.Zero(t, srv.Directory().Len())
		assert.Zero(t, srv.ActiveSessions())
	})

	t.Run("With message to self", func(t *testing.T) {
		srv := startTestServer(t)
		ctx := testContext(t)
		alice := login(t, srv, "alice")

		msgid, err := alice.Send(ctx, "alice", []byte("note to self"))
		require.NoError(t, err)

		packet, err := alice.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, protocol.Message, packet.Header.Type)
		assert.Equal(t, msgid, packet.Header.MsgID)

		receipt, err := alice.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, protocol.Rcvd, receipt.Header.Type)

		stopTestServer(t, srv)
	})

	t.Run("With rejected requests", func(t *testing.T) {
		srv := startTestServer(t)
		ctx := testContext(t)

		alice := login(t, srv, "alice")
		require.ErrorIs(t, alice.Login(ctx, "alice2"), errors.ErrRejected)

		imposter := dial(t, srv)
		require.ErrorIs(t, imposter.Login(ctx, "alice"), errors.ErrRejected)
		require.ErrorIs(t, imposter.Login(ctx, "bad\r\nhandle"), errors.ErrRejected)
		_, err := imposter.Send(ctx, "alice", []byte("hi"))
		require.ErrorIs(t, err, errors.ErrNotLoggedIn)

		_, err = alice.Send(ctx, "nobody", []byte("hi"))
		require.ErrorIs(t, err, errors.ErrRejected)

		stopTestServer(t, srv)
	})

	t.Run("With send before login", func(t *testing.T) {
		srv := startTestServer(t)
		conn, err := net.Dial("tcp", srv.Addr().String())
		require.NoError(t, err)
		defer conn.Close()

		payload := protocol.JoinLines([]byte("alice"), []byte("hi"))
		require.NoError(t, protocol.SendPacket(conn, &protocol.Header{Type: protocol.Send}, payload))
		reply, err := protocol.RecvPacket(conn)
		require.NoError(t, err)
		assert.Equal(t, protocol.Nack, reply.Header.Type)

		require.NoError(t, protocol.SendPacket(conn, &protocol.Header{Type: protocol.Bounce}, nil))
		reply, err = protocol.RecvPacket(conn)
		require.NoError(t, err)
		assert.Equal(t, protocol.Nack, reply.Header.Type)

		stopTestServer(t, srv)
	})

	t.Run("With orderly shutdown", func(t *testing.T) {
		srv := startTestServer(t)
		ctx := testContext(t)

		alice := login(t, srv, "alice")
		bob := login(t, srv, "bob")
		// connected but never logged in
		idle := dial(t, srv)

		require.Eventually(t, func() bool { return srv.ActiveSessions() == 3 }, 5*time.Second, 10*time.Millisecond)
		require.Equal(t, 2, srv.Directory().Len())

		stopTestServer(t, srv)
		assert.Zero(t, srv.ActiveSessions())
		assert.Zero(t, srv.Directory().Len())
		assert.True(t, srv.Directory().IsDefunct())

		for _, c := range []*client.Client{alice, bob, idle} {
			_, err := c.Receive(ctx)
			require.Error(t, err)
		}
	})
}
