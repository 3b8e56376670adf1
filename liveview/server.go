// Package liveview serves a page that streams a browser tab over the DevTools protocol, so a solve
// can be watched while it runs and finished by hand when Buster gives up.
package liveview

import (
	"context"
	"fmt"
	"github.com/chromedp/cdproto/target"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"
	"net"
	"net/url"
	"time"
)

// Server proxies browser websockets to the DevTools endpoint of a local browser
type Server struct {
	cdpAddr string
	app     *fiber.App
	dialer  *gorilla.Dialer
	logger  *zap.Logger
}

// Option is a function that configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDialTimeout bounds how long connecting to the DevTools endpoint may take
func WithDialTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.dialer.HandshakeTimeout = timeout
	}
}

// New creates a server for the browser whose remote debugging endpoint listens on cdpAddr (host:port)
func New(cdpAddr string, opts ...Option) *Server {
	dialer := *gorilla.DefaultDialer
	s := &Server{
		cdpAddr: cdpAddr,
		dialer:  &dialer,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.app = fiber.New(fiber.Config{
		ReduceMemoryUsage:     true,
		DisableStartupMessage: true,
	})
	s.app.Get("/", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.SendString(page)
	})
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/:id", func(c *fiber.Ctx) error {
		if !validTargetID(c.Params("id")) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid target id")
		}
		return c.Next()
	}, websocket.New(s.handle))
	return s
}

// App exposes the fiber application, e.g. for app.Test
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until ctx is done. The address is bound before Listen waits on ctx,
// and the server has stopped serving by the time Listen returns.
func (s *Server) Listen(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()
	s.logger.Info("live view listening", zap.String("addr", ln.Addr().String()))

	select {
	case <-ctx.Done():
		err := s.app.Shutdown()
		// Serve may not have picked the listener up yet, closing it makes it return either way
		_ = ln.Close()
		<-errCh
		return err
	case err := <-errCh:
		_ = ln.Close()
		return err
	}
}

func (s *Server) handle(conn *websocket.Conn) {
	id := conn.Params("id")
	upstream, err := s.dialPage(id)
	if err != nil {
		s.logger.Warn("could not attach live view", zap.String("target", id), zap.Error(err))
		return
	}
	s.logger.Debug("live view attached", zap.String("target", id))

	// the connection must not be written to once this handler returns
	done := make(chan struct{})
	go func() {
		defer close(done)
		pipe(conn, upstream)
		_ = conn.Close()
	}()
	pipe(upstream, conn)
	_ = upstream.Close()
	<-done
}

// URL returns the address at which the target can be watched, base being the server's http://host:port
func URL(base string, id target.ID) string {
	return fmt.Sprintf("%s/?id=%s", base, url.QueryEscape(string(id)))
}

// validTargetID accepts the hex identifiers Chrome assigns to targets
func validTargetID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F', r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
