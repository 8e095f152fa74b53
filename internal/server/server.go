package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/mug/internal/config"
	"github.com/vyrodovalexey/mug/internal/observability"
)

// Server defaults used when a timeout is not configured.
const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
)

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("server is already running")

// Server is an HTTP listener with a managed lifecycle.
type Server struct {
	name    string
	addr    string
	handler http.Handler
	logger  observability.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
	running  atomic.Bool
}

// Option is a functional option for configuring a server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithName labels the server in log lines.
func WithName(name string) Option {
	return func(s *Server) {
		s.name = name
	}
}

// WithTimeouts sets the read, write and idle timeouts. Zero values keep
// net/http behavior.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		s.idleTimeout = idle
	}
}

// New creates a server that will listen on addr.
func New(addr string, handler http.Handler, opts ...Option) *Server {
	s := &Server{
		name:    "http",
		addr:    addr,
		handler: handler,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig creates the application server from cfg.
func NewFromConfig(cfg *config.ServerConfig, handler http.Handler, opts ...Option) *Server {
	opts = append([]Option{WithTimeouts(
		cfg.ReadTimeout.Duration(),
		cfg.WriteTimeout.Duration(),
		cfg.IdleTimeout.Duration(),
	)}, opts...)
	return New(cfg.ListenAddress(), handler, opts...)
}

// Start binds the listener and serves in the background. Binding errors
// are returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return fmt.Errorf("%s %s: %w", s.name, s.addr, ErrAlreadyRunning)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.readTimeout,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}
	s.listener = ln
	s.done = make(chan struct{})
	s.running.Store(true)

	s.logger.Info("server started",
		observability.String("name", s.name),
		observability.String("address", ln.Addr().String()),
	)

	go s.serve(s.server, ln, s.done)

	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("server error",
			observability.String("name", s.name),
			observability.Error(err),
		)
	}
	s.running.Store(false)
}

// Stop shuts the server down gracefully, falling back to closing open
// connections when ctx expires first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}

	s.logger.Info("stopping server", observability.String("name", s.name))

	err := s.server.Shutdown(ctx)
	if err != nil {
		if closeErr := s.server.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		err = fmt.Errorf("failed to shutdown %s gracefully: %w", s.name, err)
	}

	<-s.done
	s.server = nil
	s.running.Store(false)

	s.logger.Info("server stopped", observability.String("name", s.name))
	return err
}

// IsRunning reports whether the server is accepting connections.
func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Address returns the bound address once started, or the configured one.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil && s.server != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
