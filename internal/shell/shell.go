// Package shell implements the operator console of the chat server.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ledzpl/linechat/internal/chat"
)

// Server is the part of chat.Server the shell drives.
type Server interface {
	BroadcastMessage(text string) bool
	SendToClient(id, text string) bool
	ListClients() []chat.ClientInfo
	Stats() chat.Stats
}

const helpText = `Available commands:
  broadcast <message>        - Send message to all clients
  send <clientId> <message>  - Send message to specific client
  list                       - List connected clients
  stats                      - Show server counters
  quit                       - Stop server and quit
  help                       - Show this help`

// Shell reads operator commands and reports server events.
type Shell struct {
	server Server
	in     io.Reader
	out    *syncWriter
}

// New binds a shell to one server handle.
func New(server Server, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		server: server,
		in:     in,
		out:    &syncWriter{w: out},
	}
}

// Run executes commands until quit, end of input or cancellation.
func (s *Shell) Run(ctx context.Context) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	s.out.println(helpText)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("shell: read input: %w", err)
			}
			return nil
		case line := <-lines:
			if s.Execute(line) {
				return nil
			}
		}
	}
}

// Execute runs a single command line and reports whether the operator asked to quit.
func (s *Shell) Execute(line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch cmd := strings.ToLower(fields[0]); cmd {
	case "broadcast":
		if len(fields) < 2 {
			s.out.println("Usage: broadcast <message>")
			return false
		}
		if s.server.BroadcastMessage(strings.Join(fields[1:], " ")) {
			s.out.println("Message broadcasted")
		} else {
			s.out.println("Failed to broadcast message")
		}
	case "send":
		if len(fields) < 3 {
			s.out.println("Usage: send <clientId> <message>")
			return false
		}
		if s.server.SendToClient(fields[1], strings.Join(fields[2:], " ")) {
			s.out.println("Message sent")
		} else {
			s.out.println("Failed to send message")
		}
	case "list":
		clients := s.server.ListClients()
		s.out.printf("Connected clients: %d\n", len(clients))
		for _, c := range clients {
			s.out.printf("  %s  %s\n", c.ID, c.RemoteAddr)
		}
	case "stats":
		st := s.server.Stats()
		s.out.printf("accepted=%d active=%d received=%d delivered=%d failed=%d dropped=%d\n",
			st.Accepted, st.Active, st.MessagesReceived, st.Delivered, st.FailedDeliveries, st.DroppedEvents)
	case "quit", "exit":
		return true
	case "help":
		s.out.println(helpText)
	default:
		s.out.printf("Unknown command: %s. Type 'help' for available commands.\n", cmd)
	}
	return false
}

// Watch prints events until the subscription is closed.
func (s *Shell) Watch(sub *chat.Subscription) {
	for ev := range sub.C() {
		if text := FormatEvent(ev); text != "" {
			s.out.println(text)
		}
	}
}

// FormatEvent renders an event as a console line.
func FormatEvent(ev chat.Event) string {
	switch ev.Kind {
	case chat.EventServerMessage:
		return "[SERVER] " + ev.Text
	case chat.EventMessage:
		return fmt.Sprintf("[%s] %s", ev.ClientID, ev.Text)
	case chat.EventConnected:
		return fmt.Sprintf("[CONNECT] Client %s connected from %s", ev.ClientID, ev.RemoteAddr)
	case chat.EventDisconnected:
		return fmt.Sprintf("[DISCONNECT] Client %s disconnected", ev.ClientID)
	case chat.EventServerError:
		return fmt.Sprintf("[ERROR] %v", ev.Err)
	default:
		return ""
	}
}

// syncWriter serializes output from the command loop and the event printer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) println(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = io.WriteString(w.w, s+"\n")
}

func (w *syncWriter) printf(format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = fmt.Fprintf(w.w, format, args...)
}
