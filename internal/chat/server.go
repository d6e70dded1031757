package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// State is a stage of the server lifecycle. Transitions only move forward.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWriteTimeout bounds every socket write. Zero disables the deadline.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout >= 0 {
			s.writeTimeout = timeout
		}
	}
}

// Server accepts line-oriented clients and relays messages to them.
// A Server is single use: once stopped it cannot listen again.
type Server struct {
	logger       *log.Logger
	writeTimeout time.Duration

	mu        sync.Mutex
	state     atomic.Int32
	listeners []net.Listener
	closing   chan struct{}
	stopped   chan struct{}

	clients  *Registry
	events   *notifier
	stats    counters
	sequence atomic.Uint64

	acceptors sync.WaitGroup
	readers   sync.WaitGroup
}

// NewServer constructs an idle server.
func NewServer(opts ...Option) *Server {
	s := &Server{
		logger:  log.Default(),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
		clients: NewRegistry(),
		events:  newNotifier(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start binds a TCP listener on address:port and begins accepting clients in
// the background. A bind failure returns *BindError and leaves the server stopped.
func (s *Server) Start(address string, port int) error {
	s.mu.Lock()
	switch s.State() {
	case StateIdle:
	case StateRunning:
		s.mu.Unlock()
		return ErrAlreadyStarted
	default:
		s.mu.Unlock()
		return ErrServerStopped
	}

	addr := net.JoinHostPort(address, strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.state.Store(int32(StateStopped))
		s.mu.Unlock()
		s.finish()
		return &BindError{Addr: addr, Err: err}
	}

	s.state.Store(int32(StateRunning))
	s.attachLocked(listener)
	s.mu.Unlock()

	s.logger.Printf("chat: listening on %s", listener.Addr())
	s.publish(Event{Kind: EventServerMessage, Text: fmt.Sprintf("Server started on %s", listener.Addr())})
	return nil
}

// Attach adds a listener to the server, starting it if idle. Every attached
// listener is closed by Stop.
func (s *Server) Attach(listener net.Listener) error {
	if listener == nil {
		return errors.New("chat: listener required")
	}

	s.mu.Lock()
	started := false
	switch s.State() {
	case StateIdle:
		s.state.Store(int32(StateRunning))
		started = true
	case StateRunning:
	default:
		s.mu.Unlock()
		return ErrServerStopped
	}
	s.attachLocked(listener)
	s.mu.Unlock()

	s.logger.Printf("chat: accepting on %s", listener.Addr())
	if started {
		s.publish(Event{Kind: EventServerMessage, Text: fmt.Sprintf("Server started on %s", listener.Addr())})
	}
	return nil
}

func (s *Server) attachLocked(listener net.Listener) {
	s.listeners = append(s.listeners, listener)
	s.acceptors.Add(1)
	go s.acceptLoop(listener)
}

// Addr returns the address of the first listener, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listeners) == 0 {
		return nil
	}
	return s.listeners[0].Addr()
}

// State reports the current lifecycle stage.
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) isRunning() bool {
	return s.State() == StateRunning
}

// Subscribe registers a new event subscriber scoped to this server.
func (s *Server) Subscribe() *Subscription {
	return s.events.subscribe()
}

// Stats returns a copy of the server counters.
func (s *Server) Stats() Stats {
	st := s.stats.snapshot()
	st.DroppedEvents = s.events.dropped.Load()
	return st
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.clients.Len()
}

// ListClients returns the connected clients in accept order.
func (s *Server) ListClients() []ClientInfo {
	snapshot := s.clients.Snapshot()
	out := make([]ClientInfo, 0, len(snapshot))
	for _, c := range snapshot {
		out = append(out, c.Info())
	}
	return out
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.acceptors.Done()

	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !s.isRunning() {
				return
			}

			backoff = nextBackoff(backoff)
			s.logger.Printf("chat: accept error: %v; retrying in %v", err, backoff)
			s.publish(Event{Kind: EventServerError, Err: fmt.Errorf("chat: accept: %w", err)})

			select {
			case <-time.After(backoff):
			case <-s.closing:
				return
			}
			continue
		}

		backoff = 0
		s.admit(conn)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return minAcceptBackoff
	}
	if current *= 2; current > maxAcceptBackoff {
		return maxAcceptBackoff
	}
	return current
}

// admit registers the connection and hands it to its own read loop.
func (s *Server) admit(conn net.Conn) {
	client := newClient(s.sequence.Add(1), conn)

	s.mu.Lock()
	if !s.isRunning() {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	// Count before Insert; the client can be torn down once it is visible.
	s.stats.addConnection()
	if err := s.clients.Insert(client); err != nil {
		s.stats.removeConnection()
		s.mu.Unlock()
		s.logger.Printf("chat: register %s: %v", client.RemoteAddr, err)
		_ = conn.Close()
		return
	}
	s.readers.Add(1)
	s.mu.Unlock()

	s.logger.Printf("chat: client %s connected from %s", client.ID, client.RemoteAddr)
	s.publish(Event{Kind: EventConnected, ClientID: client.ID, RemoteAddr: client.RemoteAddr})

	go s.readLoop(client)
}

func (s *Server) readLoop(c *Client) {
	defer s.readers.Done()
	defer s.disconnect(c)

	reader := bufio.NewReader(c.conn)
	for s.isRunning() {
		line, err := reader.ReadString('\n')
		if err == nil {
			s.receive(c, trimLine(line))
			continue
		}

		if errors.Is(err, io.EOF) {
			if line != "" {
				s.receive(c, trimLine(line))
			}
			return
		}

		// A read failing because teardown closed the socket is not a client error.
		if _, registered := s.clients.Lookup(c.ID); registered && s.isRunning() && !errors.Is(err, net.ErrClosed) {
			cerr := &ClientError{Op: "read", ClientID: c.ID, Err: err}
			s.logger.Printf("%v", cerr)
			s.publish(Event{Kind: EventServerError, ClientID: c.ID, RemoteAddr: c.RemoteAddr, Err: cerr})
		}
		return
	}
}

func (s *Server) receive(c *Client, text string) {
	s.stats.received.Add(1)
	s.publish(Event{Kind: EventMessage, ClientID: c.ID, RemoteAddr: c.RemoteAddr, Text: text})
}

func trimLine(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// disconnect tears the client down. Only the caller that removes the client
// from the registry closes the socket and publishes the disconnect.
func (s *Server) disconnect(c *Client) bool {
	if _, ok := s.clients.Remove(c.ID); !ok {
		return false
	}

	if err := c.close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Printf("chat: close client %s: %v", c.ID, err)
	}
	s.stats.removeConnection()
	s.logger.Printf("chat: client %s disconnected", c.ID)
	s.publish(Event{Kind: EventDisconnected, ClientID: c.ID, RemoteAddr: c.RemoteAddr})
	return true
}

// SendToClient writes text to a single client. It reports false when the
// client is unknown or the write fails; a failed write disconnects the client.
func (s *Server) SendToClient(id, text string) bool {
	if !s.isRunning() {
		return false
	}
	c, ok := s.clients.Lookup(id)
	if !ok {
		return false
	}
	return s.deliver(c, text)
}

// BroadcastMessage writes text to every client in a registry snapshot. It
// reports true only when every write succeeded; failures do not stop
// delivery to the remaining clients.
func (s *Server) BroadcastMessage(text string) bool {
	if !s.isRunning() {
		return false
	}

	delivered := true
	for _, c := range s.clients.Snapshot() {
		if !s.deliver(c, text) {
			delivered = false
		}
	}
	return delivered
}

func (s *Server) deliver(c *Client, text string) bool {
	err := c.writeLine(text, s.writeTimeout)
	if err == nil {
		s.stats.delivered.Add(1)
		return true
	}

	s.stats.failed.Add(1)
	if _, registered := s.clients.Lookup(c.ID); registered {
		cerr := &ClientError{Op: "write", ClientID: c.ID, Err: err}
		s.logger.Printf("%v", cerr)
		s.publish(Event{Kind: EventServerError, ClientID: c.ID, RemoteAddr: c.RemoteAddr, Err: cerr})
	}
	s.disconnect(c)
	return false
}

// Stop closes every listener, disconnects every client and waits for all read
// loops to exit. It is safe to call more than once and from any goroutine;
// later calls block until the first one has finished.
func (s *Server) Stop() {
	s.mu.Lock()
	switch s.State() {
	case StateIdle:
		s.state.Store(int32(StateStopped))
		s.mu.Unlock()
		s.finish()
		return
	case StateStopping, StateStopped:
		s.mu.Unlock()
		<-s.stopped
		return
	}
	s.state.Store(int32(StateStopping))
	close(s.closing)
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Printf("chat: listener close error: %v", err)
			s.publish(Event{Kind: EventServerError, Err: fmt.Errorf("chat: close listener: %w", err)})
		}
	}
	s.acceptors.Wait()

	for _, c := range s.clients.Snapshot() {
		s.disconnect(c)
	}
	s.readers.Wait()

	s.state.Store(int32(StateStopped))
	s.logger.Printf("chat: server stopped")
	s.publish(Event{Kind: EventServerMessage, Text: "Server stopped"})
	s.finish()
}

// Done is closed once the server has reached StateStopped.
func (s *Server) Done() <-chan struct{} {
	return s.stopped
}

func (s *Server) finish() {
	s.events.closeAll()
	close(s.stopped)
}

// publish never stalls on a slow subscriber. Disconnects are the exception:
// they wait for buffer space until the server begins stopping.
func (s *Server) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	var wait <-chan struct{}
	if ev.Kind == EventDisconnected {
		wait = s.closing
	}
	s.events.publish(ev, wait)
}
