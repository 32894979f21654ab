package muxwire

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Handler is the interface for handling accepted sockets. The usual
// implementation wraps the socket with NewConn and calls Run.
type Handler interface {
	// Handle is called on its own goroutine for each accepted socket.
	Handle(conn net.Conn)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(conn net.Conn)

func (f HandlerFunc) Handle(conn net.Conn) { f(conn) }

// Server accepts stream sockets and hands them to a Handler. It is a
// convenience around net.Listen; the framing core never depends on it.
type Server struct {
	listener net.Listener
	logger   Logger

	mu       sync.Mutex
	shutdown bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server listening on the given network and address.
// Network is anything net.Listen accepts for stream sockets ("tcp",
// "unix", ...).
func NewServer(network, addr string, opts ...ServerOption) (*Server, error) {
	listener, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		listener: listener,
		logger:   defaultLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Serve accepts sockets and dispatches them to the handler, each on its
// own goroutine. It blocks until the context is canceled or the listener
// fails.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Info("server started", "addr", s.listener.Addr())

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		go handler.Handle(conn)
	}
}

// Close stops the server by closing the listener. Any blocked Accept
// call returns with an error.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	return s.listener.Close()
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Dial connects to the given address using net.Dial and returns a Conn
// for the connection. TLS, proxies and custom dialers stay with the
// caller: wrap any connected net.Conn with NewConn instead.
func Dial(network, addr string, opt ...Option) (*Conn, error) {
	c, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	conn, err := NewConn(c, opt...)
	if err != nil {
		c.Close()
		return nil, err
	}
	return conn, nil
}

// DialTimeout is Dial with a connect timeout.
func DialTimeout(network, addr string, timeout time.Duration, opt ...Option) (*Conn, error) {
	c, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return nil, err
	}
	conn, err := NewConn(c, opt...)
	if err != nil {
		c.Close()
		return nil, err
	}
	return conn, nil
}
