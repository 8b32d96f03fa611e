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
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/tochemey/bavarde/config"
	"github.com/tochemey/bavarde/directory"
	"github.com/tochemey/bavarde/errors"
	"github.com/tochemey/bavarde/internal/metric"
	"github.com/tochemey/bavarde/internal/tcp"
	"github.com/tochemey/bavarde/internal/xsync"
	"github.com/tochemey/bavarde/log"
)

// Server is the chat server. It accepts client connections, runs one
// session per connection and tears everything down in order on Stop.
type Server struct {
	config    *config.Config
	logger    log.Logger
	directory *directory.Directory
	// sessions counts the goroutines servicing a connection
	sessions      *xsync.Counter
	listener      *tcp.Server
	metrics       *metric.ServerMetric
	meter         otelmetric.Meter
	registration  otelmetric.Registration
	meterProvider otelmetric.MeterProvider

	mu       sync.Mutex
	conns    map[uuid.UUID]net.Conn
	draining bool

	started  atomic.Bool
	stopped  atomic.Bool
	serveErr chan error
}

// Option configures a Server
type Option func(*Server)

// WithMeterProvider records the server metrics on the given provider
// instead of the global one
func WithMeterProvider(provider otelmetric.MeterProvider) Option {
	return func(s *Server) {
		s.meterProvider = provider
	}
}

// New creates a Server from a validated configuration
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server configuration is required")
	}

	if err := cfg.Sanitize(); err != nil {
		return nil, err
	}

	s := &Server{
		config:   cfg,
		logger:   cfg.Logger,
		sessions: xsync.NewCounter(),
		conns:    make(map[uuid.UUID]net.Conn),
		serveErr: make(chan error, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.directory = directory.New(directory.WithLogger(s.logger))
	s.meter = metric.NewProvider(metric.WithMeterProvider(s.meterProvider)).Meter()

	metrics, err := metric.NewServerMetric(s.meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create server metrics: %w", err)
	}
	s.metrics = metrics

	listener, err := tcp.NewServer(cfg.Address(),
		tcp.WithLoops(cfg.AcceptLoops),
		tcp.WithMaxAcceptConnections(cfg.MaxConnections),
		tcp.WithConnectionCounter(s.sessions),
		tcp.WithRequestHandler(s.serve),
		tcp.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.listener = listener
	return s, nil
}

// Start binds the listening socket and starts accepting clients
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.ErrServerStarted
	}

	if err := s.listener.Listen(ctx); err != nil {
		s.started.Store(false)
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address(), err)
	}

	registration, err := s.meter.RegisterCallback(func(_ context.Context, observer otelmetric.Observer) error {
		observer.ObserveInt64(s.metrics.ClientsCount(), int64(s.directory.Len()))
		observer.ObserveInt64(s.metrics.SessionsActive(), s.sessions.Count())
		return nil
	}, s.metrics.ClientsCount(), s.metrics.SessionsActive())
	if err != nil {
		_ = s.listener.Shutdown()
		s.started.Store(false)
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	s.registration = registration

	go func() {
		s.serveErr <- s.listener.Serve()
	}()

	if advertised, err := tcp.AdvertisedAddr(s.listener.ListenAddr()); err == nil {
		s.logger.Infof("bavarde server started, reachable at %s", advertised)
	} else {
		s.logger.Infof("bavarde server started on %s", s.Addr())
	}
	return nil
}

// Stop shuts the server down: the directory is shut down, which closes
// every client connection, the listener stops accepting, the server waits
// for every session to end and finally releases every mailbox.
//
// Waiting for the sessions is bounded by the configured shutdown timeout
// and by ctx. When it expires the directory is left as is and
// ErrShutdownTimeout is returned. Stop is idempotent.
func (s *Server) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return errors.ErrServerNotStarted
	}

	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	s.logger.Info("shutting down bavarde server...")

	s.directory.Shutdown()

	var err error
	err = multierr.Append(err, s.listener.Shutdown())
	err = multierr.Append(err, <-s.serveErr)
	s.closeConnections()

	waitCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Debugf("waiting for %d session(s) to terminate...", s.sessions.Count())
	if waitErr := s.sessions.WaitContext(waitCtx); waitErr != nil {
		s.logger.Errorf("%d session(s) still running: %v", s.sessions.Count(), waitErr)
		err = multierr.Append(err, fmt.Errorf("%w: %w", errors.ErrShutdownTimeout, waitErr))
		return multierr.Append(err, s.logger.Flush())
	}
	s.logger.Debug("all sessions terminated")

	s.directory.Finalize()

	if s.registration != nil {
		err = multierr.Append(err, s.registration.Unregister())
	}

	s.logger.Info("bavarde server stopped")
	return multierr.Append(err, s.logger.Flush())
}

// Addr returns the address the server listens on, or nil before Start
func (s *Server) Addr() net.Addr {
	addr := s.listener.ListenAddr()
	if addr == nil {
		return nil
	}
	return addr
}

// Directory returns the registry of logged in clients
func (s *Server) Directory() *directory.Directory {
	return s.directory
}

// ActiveSessions returns the number of connections being served
func (s *Server) ActiveSessions() int64 {
	return s.sessions.Count()
}

// serve runs on the goroutine the listener spawned for conn
func (s *Server) serve(conn net.Conn) {
	sess := newSession(conn, s.directory, s.metrics, s.logger)
	if !s.track(sess) {
		return
	}
	defer s.untrack(sess)
	sess.run()
}

// track records the session connection so that Stop can close it even
// when the client never logged in. It fails once Stop has started.
func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.conns[sess.id] = sess.conn
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.conns, sess.id)
	s.mu.Unlock()
}

// closeConnections closes the connections of the sessions that are not
// known to the directory
func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draining = true
	for id, conn := range s.conns {
		if err := conn.Close(); err != nil {
			s.logger.Debugf("closing connection of session %s: %v", id, err)
		}
	}
}
