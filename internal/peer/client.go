// Package peer dials a chat server and exchanges newline-delimited messages
// over a single connection.
package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

// ErrEmptyMessage is returned by Send for an empty message.
var ErrEmptyMessage = errors.New("peer: empty message")

// Client is one outbound connection to a chat server.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to address ("host:port").
func Dial(ctx context.Context, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("peer: dial %q: %w", address, err)
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// LocalAddr returns the local end of the connection.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Send writes text followed by a newline.
func (c *Client) Send(text string) error {
	if text == "" {
		return ErrEmptyMessage
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := io.WriteString(c.conn, text+"\n"); err != nil {
		return fmt.Errorf("peer: send: %w", err)
	}
	return nil
}

// ReadLine blocks for the next line and returns it without its terminator.
// Text left before end of stream is returned together with io.EOF.
func (c *Client) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	return line, err
}

// Listen calls handle for every received line until the server closes the
// stream (nil), the context is cancelled (ctx.Err()) or a read fails.
func (c *Client) Listen(ctx context.Context, handle func(string)) error {
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-stop:
		}
	}()

	for {
		line, err := c.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if line != "" {
					handle(line)
				}
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("peer: read: %w", err)
		}
		handle(line)
	}
}

// Close shuts the connection down. Repeated calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
