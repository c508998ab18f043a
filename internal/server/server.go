// Package server exposes push-to-talk sessions over WebSocket alongside the
// health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/rbright/voicebridge/internal/metrics"
	"github.com/rbright/voicebridge/internal/protocol"
	"github.com/rbright/voicebridge/internal/session"
)

const defaultWriteTimeout = 5 * time.Second

// SessionFactory creates one session per accepted connection.
type SessionFactory interface {
	NewSession(ctx context.Context, sender session.Sender, logger *slog.Logger) *session.Session
}

// Options configures a Server.
type Options struct {
	Logger   *slog.Logger
	Sessions SessionFactory
	// Metrics enables instrumentation and the /metrics route when non-nil.
	Metrics      *metrics.Metrics
	WriteTimeout time.Duration
}

// ConnStatus is a point-in-time view of one connected client.
type ConnStatus struct {
	ID          string
	Remote      string
	ConnectedAt time.Time
	Session     session.Status
}

// Server owns the HTTP listener and every open client connection.
type Server struct {
	echo         *echo.Echo
	logger       *slog.Logger
	sessions     SessionFactory
	metrics      *metrics.Metrics
	writeTimeout time.Duration
	upgrader     websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conns    map[string]*conn
	draining bool

	handlers sync.WaitGroup
}

// New builds the echo application and its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		echo:         echo.New(),
		logger:       opts.Logger,
		sessions:     opts.Sessions,
		metrics:      opts.Metrics,
		writeTimeout: opts.WriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients are local tools and browser extensions with arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[string]*conn),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Int64("latency_ms", v.Latency.Milliseconds()),
				slog.String("remote", v.RemoteIP),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			s.logger.LogAttrs(context.Background(), slog.LevelDebug, "http request", attrs...)
			return nil
		},
	}))

	s.echo.GET("/", s.handleWebSocket)
	s.echo.GET("/ws", s.handleWebSocket)
	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	return s
}

// Handler exposes the routes for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve accepts connections on listener until Shutdown. It returns nil after
// a graceful shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.echo.Listener = listener
	s.logger.Info("listening", "addr", listener.Addr().String())
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, closes every open session, and waits
// for connection handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	open := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	err := s.echo.Shutdown(ctx)

	s.cancel()
	for _, c := range open {
		c.closeTransport(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// Connections lists connected clients ordered by connection time.
func (s *Server) Connections() []ConnStatus {
	s.mu.Lock()
	open := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	statuses := make([]ConnStatus, 0, len(open))
	for _, c := range open {
		statuses = append(statuses, ConnStatus{
			ID:          c.id,
			Remote:      c.remote,
			ConnectedAt: c.connectedAt,
			Session:     c.session.Status(),
		})
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].ConnectedAt.Before(statuses[j].ConnectedAt)
	})
	return statuses
}

// CancelAll applies CANCEL to every connected session and returns how many
// sessions received it.
func (s *Server) CancelAll() int {
	s.mu.Lock()
	open := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		c.logger.Info("cancel requested over control socket")
		c.session.Handle(protocol.ActionCancel)
	}
	return len(open)
}

func (s *Server) handleWebSocket(c echo.Context) error {
	if s.sessions == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "sessions unavailable")
	}

	if !s.beginHandler() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "server shutting down")
	}
	defer s.handlers.Done()

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		s.logger.Warn("websocket upgrade failed", "remote", c.RealIP(), "error", err)
		return nil
	}

	cn := newConn(ws, c.RealIP(), s.writeTimeout, s.logger)
	cn.session = s.sessions.NewSession(s.ctx, cn, cn.logger)

	if !s.register(cn) {
		cn.session.Close()
		cn.closeTransport(websocket.CloseGoingAway, "server shutting down")
		return nil
	}
	defer s.unregister(cn)

	cn.logger.Info("client connected")
	cn.readLoop(s.metrics)
	return nil
}

// beginHandler counts a connection handler unless Shutdown has started, so
// handlers.Add never races handlers.Wait.
func (s *Server) beginHandler() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.handlers.Add(1)
	return true
}

func (s *Server) register(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	s.conns[c.id] = c
	if s.metrics != nil {
		s.metrics.Connections.Inc()
	}
	return true
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	if s.metrics != nil {
		s.metrics.Connections.Dec()
	}
	s.mu.Unlock()

	c.session.Close()
	c.closeTransport(websocket.CloseNormalClosure, "")
	c.logger.Info("client disconnected", "turns", c.session.Status().TurnsTotal)
}
