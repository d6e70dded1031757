package chat

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client represents a connected participant accepted by the server.
type Client struct {
	ID         string
	RemoteAddr string

	seq  uint64
	conn net.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// ClientInfo is the display view of a client returned by ListClients.
type ClientInfo struct {
	ID         string
	RemoteAddr string
}

func newClient(seq uint64, conn net.Conn) *Client {
	remote := "unknown"
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Client{
		ID:         uuid.NewString(),
		RemoteAddr: remote,
		seq:        seq,
		conn:       conn,
	}
}

// Info returns the immutable identity of the client.
func (c *Client) Info() ClientInfo {
	return ClientInfo{ID: c.ID, RemoteAddr: c.RemoteAddr}
}

// writeLine writes text followed by a single newline. Concurrent callers are
// serialized so lines never interleave on the wire.
func (c *Client) writeLine(text string, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.conn, text+"\n")
	return err
}

// close releases the socket. Only the first call reaches the connection.
func (c *Client) close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
