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
	"fmt"
	"net"
	"time"

	"go.uber.org/atomic"

	"github.com/tochemey/bavarde/errors"
	"github.com/tochemey/bavarde/internal/xsync"
	"github.com/tochemey/bavarde/log"
)

// RequestHandlerFunc services one accepted connection. It runs on its own
// goroutine and owns the connection until it returns, after which the
// connection is closed.
type RequestHandlerFunc func(conn net.Conn)

// ServerOption configures a Server before it is started.
type ServerOption func(*Server)

// Server is a multi-loop TCP server. It listens on a single address and
// hands every accepted connection to the request handler on a dedicated
// goroutine.
//
// Each connection goroutine is tracked by a counter which is incremented
// before the goroutine is spawned and decremented once the handler returns.
// Owners wait on that counter to know when every connection has been served.
type Server struct {
	listenAddr        *net.TCPAddr
	listener          *net.TCPListener
	requestHandler    RequestHandlerFunc
	listenConfig      *ListenConfig
	connections       *xsync.Counter
	logger            log.Logger
	activeConnections atomic.Int32
	acceptedConns     atomic.Int32
	maxAcceptConns    atomic.Int32
	shutdown          atomic.Bool
	loops             int
}

// NewServer creates a Server bound to the given address (host:port).
//
// Defaults: 4 accept loops, SO_REUSEPORT enabled, no connection limit.
func NewServer(listenAddr string, opts ...ServerOption) (*Server, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving address %q: %w", listenAddr, err)
	}

	s := &Server{
		listenAddr:   tcpAddr,
		listenConfig: &ListenConfig{SocketReusePort: true},
		connections:  xsync.NewCounter(),
		logger:       log.DiscardLogger,
		loops:        4,
		requestHandler: func(net.Conn) {
		},
	}

	for _, o := range opts {
		o(s)
	}

	return s, nil
}

// WithListenConfig overrides the default ListenConfig used to create
// the listening socket.
func WithListenConfig(config *ListenConfig) ServerOption {
	return func(s *Server) {
		if config != nil {
			s.listenConfig = config
		}
	}
}

// WithRequestHandler sets the callback invoked for every accepted connection.
func WithRequestHandler(f RequestHandlerFunc) ServerOption {
	return func(s *Server) {
		if f != nil {
			s.requestHandler = f
		}
	}
}

// WithConnectionCounter makes the server track its connection goroutines on
// the given counter instead of a private one.
func WithConnectionCounter(counter *xsync.Counter) ServerOption {
	return func(s *Server) {
		if counter != nil {
			s.connections = counter
		}
	}
}

// WithLogger sets the server logger
func WithLogger(logger log.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLoops sets the number of concurrent accept loops. The default is 4.
// Values less than 1 are clamped to 1.
func WithLoops(loops int) ServerOption {
	return func(s *Server) {
		if loops < 1 {
			loops = 1
		}
		s.loops = loops
	}
}

// WithMaxAcceptConnections sets the maximum number of connections the
// server will accept in total. Zero (the default) means unlimited.
// Once the limit is reached the server stops accepting.
func WithMaxAcceptConnections(limit int32) ServerOption {
	return func(s *Server) { s.maxAcceptConns.Store(limit) }
}

// ListenConfig returns the ListenConfig used to create the listening socket.
func (s *Server) ListenConfig() *ListenConfig {
	return s.listenConfig
}

// Loops returns the number of accept loops configured for this server.
func (s *Server) Loops() int {
	return s.loops
}

// Connections returns the counter tracking connection goroutines
func (s *Server) Connections() *xsync.Counter {
	return s.connections
}

// ActiveConnections returns the number of connections currently being served.
func (s *Server) ActiveConnections() int32 {
	return s.activeConnections.Load()
}

// AcceptedConnections returns the total number of connections accepted
// since the server started.
func (s *Server) AcceptedConnections() int32 {
	return s.acceptedConns.Load()
}

// ListenAddr returns the actual address the server is listening on, which
// is useful when the server was started on port 0. Returns nil if the server
// has not started listening.
func (s *Server) ListenAddr() *net.TCPAddr {
	if s.listener == nil {
		return nil
	}
	addr, _ := s.listener.Addr().(*net.TCPAddr)
	return addr
}

// Listen creates the TCP listener. Call Serve afterwards to start accepting
// connections.
func (s *Server) Listen(ctx context.Context) error {
	network := "tcp4"
	if IsIPv6Addr(s.listenAddr) {
		network = "tcp6"
	}

	lc := net.ListenConfig{Control: applyListenSocketOptions(s.listenConfig)}
	listener, err := lc.Listen(ctx, network, s.listenAddr.String())
	if err != nil {
		return err
	}

	tcpListener, ok := listener.(*net.TCPListener)
	if !ok {
		_ = listener.Close()
		return errors.ErrInvalidListener
	}

	s.listener = tcpListener
	s.logger.Infof("listening on %s", tcpListener.Addr().String())
	return nil
}

// Serve starts the accept loops and blocks until every loop has exited,
// which happens once Shutdown is called. It does not wait for the
// connection goroutines; use Connections for that.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.ErrNoListener
	}

	loops := s.Loops()
	errChan := make(chan error, loops)
	for range loops {
		go func() {
			errChan <- s.acceptLoop()
		}()
	}

	var firstErr error
	for range loops {
		if err := <-errChan; err != nil && firstErr == nil {
			firstErr = err
			// stop the sibling loops
			_ = s.Shutdown()
		}
	}
	return firstErr
}

// Shutdown stops accepting connections by closing the listener. Connections
// already accepted keep being served. Shutdown is idempotent.
func (s *Server) Shutdown() error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// IsShutdown reports whether Shutdown has been called
func (s *Server) IsShutdown() bool {
	return s.shutdown.Load()
}

func (s *Server) acceptLoop() error {
	for {
		if s.shutdown.Load() {
			return nil
		}

		tcpConn, err := s.listener.AcceptTCP()
		if err != nil {
			// Shutdown may have closed the listener.
			if s.shutdown.Load() {
				return nil
			}

			// Retry on deadline/timeout errors; surface everything else.
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}

			return err
		}

		newCount := s.acceptedConns.Add(1)
		limit := s.maxAcceptConns.Load()

		// Check limit after incrementing to avoid race.
		if limit > 0 && newCount > limit {
			s.acceptedConns.Add(-1)
			_ = tcpConn.Close()
			if newCount == limit+1 {
				s.logger.Warnf("accepted connection limit %d reached, no longer accepting", limit)
				_ = s.Shutdown()
			}
			continue
		}

		s.connections.Increment()
		go s.serveConn(tcpConn)
	}
}

func (s *Server) serveConn(conn *net.TCPConn) {
	s.activeConnections.Inc()
	defer func() {
		s.activeConnections.Dec()
		s.connections.Decrement()
	}()

	start := time.Now()
	s.requestHandler(conn)
	_ = conn.Close()
	s.logger.Debugf("connection from %s served in %s", conn.RemoteAddr(), time.Since(start))
}

// IsIPv6Addr reports whether addr is an IPv6 address.
func IsIPv6Addr(addr *net.TCPAddr) bool {
	return addr.IP.To4() == nil && len(addr.IP) == net.IPv6len
}
