package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/eternalApril/moonkv/internal/config"
	"github.com/eternalApril/moonkv/internal/metrics"
	"github.com/eternalApril/moonkv/internal/resp"
	"go.uber.org/zap"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	acceptRetryDelay       = 10 * time.Millisecond
)

// Server accepts client connections and serves each one on its own goroutine.
// All connections share the engine and its storage
type Server struct {
	cfg     config.ServerConfig
	engine  *Engine
	metrics *metrics.Metrics
	logger  *zap.Logger

	wg    sync.WaitGroup
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer creates a server for the given engine
func NewServer(cfg config.ServerConfig, engine *Engine, logger *zap.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	return &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
}

// SetMetrics enables connection metrics
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// ListenAndServe listens on the configured address and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is done. On return the
// listener is closed, every client connection is closed and handlers have
// exited or the shutdown timeout has passed
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("listening on", zap.String("address", listener.Addr().String()))

	stop := context.AfterFunc(ctx, func() {
		listener.Close() //nolint:errcheck
	})
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept error", zap.Error(err))
			time.Sleep(acceptRetryDelay)
			continue
		}

		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}

	s.logger.Info("shutting down server")
	s.closeConnections()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all connections closed gracefully")
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn("shutdown timed out", zap.Duration("timeout", s.cfg.ShutdownTimeout))
	}

	return nil
}

// handleConnection handles a connection for a single client
func (s *Server) handleConnection(conn net.Conn) {
	peer := NewPeer(conn, s.cfg.MaxBulkLen, s.cfg.IdleTimeout)
	log := s.logger.With(zap.String("addr", peer.RemoteAddr()))

	s.metrics.ConnectionOpened()
	if log.Core().Enabled(zap.DebugLevel) {
		log.Debug("client connected")
	}

	defer func() {
		peer.Close() //nolint:errcheck
		s.metrics.ConnectionClosed()
		if log.Core().Enabled(zap.DebugLevel) {
			log.Debug("client disconnected")
		}
	}()

	for {
		request, err := peer.ReadCommand()
		if err != nil {
			s.readFailed(peer, log, err)
			return
		}

		reply := s.engine.Dispatch(request)

		if err = peer.Send(reply); err != nil {
			log.Warn("write reply failed", zap.Error(err))
			return
		}

		// pipelined requests are answered in one write
		if peer.InputBuffered() == 0 {
			if err := peer.Flush(); err != nil {
				if log.Core().Enabled(zap.DebugLevel) {
					log.Debug("flush failed", zap.Error(err))
				}
				return
			}
		}
	}
}

// readFailed delivers replies still buffered for earlier requests and logs why
// the connection ends. A malformed frame is answered with a protocol error
func (s *Server) readFailed(peer *Peer, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, resp.ErrFrame):
		s.metrics.ProtocolError()
		log.Warn("malformed request, closing connection", zap.Error(err))
		peer.Send(resp.MakeError("ERR " + err.Error())) //nolint:errcheck

	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		// client went away or server is shutting down

	case errors.Is(err, os.ErrDeadlineExceeded):
		log.Info("closing idle connection", zap.Duration("idle_timeout", s.cfg.IdleTimeout))

	default:
		log.Warn("read command failed", zap.Error(err))
	}

	peer.Flush() //nolint:errcheck
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// closeConnections unblocks every handler waiting on a read
func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		conn.Close() //nolint:errcheck
	}
}
