// Package wsgateway accepts WebSocket clients over HTTP and presents each
// socket as a line-oriented net.Conn, so a line chat server can serve browser
// clients through the same accept loop it uses for TCP.
package wsgateway

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultPath is the HTTP path upgraded to WebSocket.
const DefaultPath = "/ws"

// Option configures a Listener.
type Option func(*Listener)

// WithPath overrides DefaultPath.
func WithPath(path string) Option {
	return func(l *Listener) {
		if path != "" {
			l.path = path
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithCheckOrigin installs an origin policy for upgrade requests. The
// gorilla/websocket default rejects cross-origin requests.
func WithCheckOrigin(check func(*http.Request) bool) Option {
	return func(l *Listener) {
		l.upgrader.CheckOrigin = check
	}
}

// Listener implements net.Listener on top of an HTTP server.
type Listener struct {
	path     string
	logger   *log.Logger
	upgrader websocket.Upgrader

	ln    net.Listener
	srv   *http.Server
	conns chan net.Conn
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Listen binds addr and starts serving upgrade requests in the background.
func Listen(addr string, opts ...Option) (*Listener, error) {
	l := &Listener{
		path:   DefaultPath,
		logger: log.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(chan net.Conn),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wsgateway: listen %q: %w", addr, err)
	}
	l.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc(l.path, l.handleUpgrade)
	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Printf("wsgateway: serve error: %v", err)
		}
	}()

	l.logger.Printf("wsgateway: listening on %s%s", ln.Addr(), l.path)
	return l, nil
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		l.logger.Printf("wsgateway: upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	conn := newConn(ws)
	select {
	case l.conns <- conn:
	case <-l.done:
		_ = conn.Close()
	}
}

// Accept waits for the next upgraded socket. After Close it returns net.ErrClosed.
func (l *Listener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

// Close stops the HTTP server. Sockets already returned by Accept stay open
// and belong to the caller.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		if err := l.srv.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			l.closeErr = fmt.Errorf("wsgateway: close: %w", err)
		}
	})
	return l.closeErr
}

// Addr returns the bound TCP address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}
