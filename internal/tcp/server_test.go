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

package tcp

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travisjeffery/go-dynaport"
	"go.uber.org/goleak"

	"github.com/tochemey/bavarde/errors"
	"github.com/tochemey/bavarde/internal/xsync"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func freeAddr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(dynaport.Get(1)[0]))
}

// startServer listens and serves in the background and returns a function
// that shuts the server down and waits for Serve to return
func startServer(t *testing.T, srv *Server) func() {
	t.Helper()
	require.NoError(t, srv.Listen(context.Background()))

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	return func() {
		require.NoError(t, srv.Shutdown())
		select {
		case err := <-served:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not return")
		}
	}
}

func echoHandler(conn net.Conn) {
	_, _ = io.Copy(conn, conn)
}

func TestNewServer(t *testing.T) {
	t.Run("valid address with defaults", func(t *testing.T) {
		srv, err := NewServer("127.0.0.1:0")
		require.NoError(t, err)
		require.NotNil(t, srv)
		assert.Equal(t, 4, srv.Loops())
		require.NotNil(t, srv.ListenConfig())
		assert.True(t, srv.ListenConfig().SocketReusePort)
		assert.Nil(t, srv.ListenAddr())
		assert.NotNil(t, srv.Connections())
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := NewServer("invalid:::address")
		require.Error(t, err)
	})
}

func TestServerOptions(t *testing.T) {
	t.Run("WithLoops", func(t *testing.T) {
		srv, err := NewServer("127.0.0.1:0", WithLoops(2))
		require.NoError(t, err)
		assert.Equal(t, 2, srv.Loops())
	})

	t.Run("WithLoops clamped to 1", func(t *testing.T) {
		srv, err := NewServer("127.0.0.1:0", WithLoops(-5))
		require.NoError(t, err)
		assert.Equal(t, 1, srv.Loops())
	})

	t.Run("WithMaxAcceptConnections", func(t *testing.T) {
		srv, err := NewServer("127.0.0.1:0", WithMaxAcceptConnections(100))
		require.NoError(t, err)
		assert.Equal(t, int32(100), srv.maxAcceptConns.Load())
	})

	t.Run("WithConnectionCounter", func(t *testing.T) {
		counter := xsync.NewCounter()
		srv, err := NewServer("127.0.0.1:0", WithConnectionCounter(counter))
		require.NoError(t, err)
		assert.Same(t, counter, srv.Connections())
	})

	t.Run("WithListenConfig", func(t *testing.T) {
		config := &ListenConfig{SocketDeferAccept: true}
		srv, err := NewServer("127.0.0.1:0", WithListenConfig(config))
		require.NoError(t, err)
		assert.Same(t, config, srv.ListenConfig())
	})
}

func TestServer(t *testing.T) {
	t.Run("serve without listening", func(t *testing.T) {
		srv, err := NewServer("127.0.0.1:0")
		require.NoError(t, err)
		assert.ErrorIs(t, srv.Serve(), errors.ErrNoListener)
		assert.NoError(t, srv.Shutdown())
	})

	t.Run("listen on dynamic port", func(t *testing.T) {
		addr := freeAddr()
		srv, err := NewServer(addr)
		require.NoError(t, err)
		require.NoError(t, srv.Listen(context.Background()))
		assert.Equal(t, addr, srv.ListenAddr().String())
		require.NoError(t, srv.Shutdown())
		// idempotent
		require.NoError(t, srv.Shutdown())
		assert.True(t, srv.IsShutdown())
	})

	t.Run("echo round trip", func(t *testing.T) {
		srv, err := NewServer(freeAddr(), WithRequestHandler(echoHandler), WithLoops(2))
		require.NoError(t, err)
		stop := startServer(t, srv)

		conn, err := net.Dial("tcp", srv.ListenAddr().String())
		require.NoError(t, err)

		_, err = conn.Write([]byte("ping"))
		require.NoError(t, err)

		reply := make([]byte, 4)
		_, err = io.ReadFull(conn, reply)
		require.NoError(t, err)
		assert.Equal(t, "ping", string(reply))

		require.NoError(t, conn.Close())
		stop()

		require.NoError(t, srv.Connections().WaitContext(context.Background()))
		assert.EqualValues(t, 1, srv.AcceptedConnections())
		assert.Zero(t, srv.ActiveConnections())
	})

	t.Run("connection goroutines tracked on the counter", func(t *testing.T) {
		counter := xsync.NewCounter()
		release := make(chan struct{})
		var handled sync.WaitGroup
		handled.Add(3)

		srv, err := NewServer(freeAddr(),
			WithConnectionCounter(counter),
			WithRequestHandler(func(net.Conn) {
				handled.Done()
				<-release
			}))
		require.NoError(t, err)
		stop := startServer(t, srv)

		conns := make([]net.Conn, 0, 3)
		for range 3 {
			conn, err := net.Dial("tcp", srv.ListenAddr().String())
			require.NoError(t, err)
			conns = append(conns, conn)
		}

		handled.Wait()
		assert.EqualValues(t, 3, counter.Count())
		assert.EqualValues(t, 3, srv.ActiveConnections())

		// shutting the listener down leaves in-flight connections alone
		stop()
		assert.EqualValues(t, 3, counter.Count())

		close(release)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, counter.WaitContext(ctx))

		for _, conn := range conns {
			_ = conn.Close()
		}
	})

	t.Run("accept limit", func(t *testing.T) {
		srv, err := NewServer(freeAddr(),
			WithMaxAcceptConnections(1),
			WithLoops(1),
			WithRequestHandler(echoHandler))
		require.NoError(t, err)
		require.NoError(t, srv.Listen(context.Background()))

		served := make(chan error, 1)
		go func() { served <- srv.Serve() }()

		first, err := net.Dial("tcp", srv.ListenAddr().String())
		require.NoError(t, err)
		require.Eventually(t, func() bool { return srv.AcceptedConnections() == 1 }, time.Second, 10*time.Millisecond)

		second, err := net.Dial("tcp", srv.ListenAddr().String())
		require.NoError(t, err)

		select {
		case err := <-served:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop accepting")
		}

		assert.True(t, srv.IsShutdown())
		assert.EqualValues(t, 1, srv.AcceptedConnections())

		_ = first.Close()
		_ = second.Close()
		require.NoError(t, srv.Connections().WaitContext(context.Background()))
	})
}
