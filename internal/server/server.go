// Package server accepts client connections and answers one placement request per connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/tunnelmesh/metacoord/internal/coord"
	"github.com/tunnelmesh/metacoord/internal/metrics"
	"github.com/tunnelmesh/metacoord/pkg/proto"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultListen     = ":9000"
	DefaultMaxWorkers = 10
)

// Dispatcher answers a decoded request. *coord.Coordinator implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *proto.Request) []proto.ChunkPlacement
}

// Config configures the listener and worker pool.
type Config struct {
	Listen     string
	MaxWorkers int

	// Zero disables the corresponding deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxChunks caps the chunk count of an upload request; larger requests are closed
	// without a response. Zero uses proto.DefaultMaxChunks.
	MaxChunks int

	Metrics *metrics.CoordMetrics
}

// Server is a TCP server handling one request per connection with at most MaxWorkers
// connections in flight. Further clients wait in the listen backlog until a worker frees up.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	logger     zerolog.Logger

	sem      *semaphore.Weighted
	listener net.Listener
	workers  sync.WaitGroup
	loopDone chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a server. Call Start to begin accepting connections.
func NewServer(cfg Config, dispatcher Dispatcher, logger zerolog.Logger) *Server {
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "server").Logger(),
		sem:        semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		loopDone:   make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening and accepting connections in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.started {
		return errors.New("server already started")
	}

	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Listen, err)
	}
	s.listener = listener
	s.started = true

	s.logger.Info().
		Str("addr", listener.Addr().String()).
		Int("max_workers", s.cfg.MaxWorkers).
		Msg("coordinator listening")

	go s.acceptLoop()
	return nil
}

// Serve starts the server and blocks until ctx is cancelled, then stops it.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and waits for in-flight connections to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if !started {
		return nil
	}

	_ = s.listener.Close()
	<-s.loopDone
	s.workers.Wait()

	s.logger.Info().Msg("coordinator stopped")
	return nil
}

func (s *Server) acceptLoop() {
	defer close(s.loopDone)

	for {
		// Take a worker slot before accepting so excess clients queue in the backlog.
		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			return
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.sem.Release(1)
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error().Err(err).Msg("accept error")
			continue
		}

		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			defer s.sem.Release(1)
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	requestID := uuid.NewString()
	logger := s.logger.With().
		Str("request_id", requestID).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	// Panics stay local to the connection.
	command := metrics.CommandNone
	defer func() {
		if r := recover(); r != nil {
			s.recordFailure(command, metrics.ResultInternalError)
			logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("request handler panicked, closing connection")
		}
	}()

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ActiveWorkers.Inc()
		defer s.cfg.Metrics.ActiveWorkers.Dec()
	}

	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}

	// Stop releases connections still waiting for their request.
	stopRead := context.AfterFunc(s.ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	req, err := proto.ReadRequest(conn, s.cfg.MaxChunks)
	stopRead()
	if err != nil {
		s.recordFailure(metrics.CommandNone, readFailureResult(err))
		if errors.Is(err, os.ErrDeadlineExceeded) {
			logger.Debug().Err(err).Msg("read timed out, closing connection")
		} else {
			logger.Warn().Err(err).Msg("malformed request, closing connection")
		}
		return
	}
	command = metrics.CommandLabel(req.Command)

	ctx := coord.WithRequestID(s.ctx, requestID)
	ctx = logger.WithContext(ctx)
	resp := s.dispatcher.Dispatch(ctx, req)

	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := proto.WriteResponse(conn, resp); err != nil {
		s.recordFailure(command, metrics.ResultIOError)
		logger.Warn().Err(err).Msg("failed to send response")
		return
	}

	logger.Debug().
		Str("command", req.Command).
		Str("filename", req.Filename).
		Int("placements", len(resp)).
		Msg("request served")
}

func (s *Server) recordFailure(command, result string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RequestsTotal.WithLabelValues(command, result).Inc()
	}
}

func readFailureResult(err error) string {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return metrics.ResultIOError
	}
	return metrics.ResultProtocolError
}
