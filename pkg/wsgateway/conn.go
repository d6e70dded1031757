package wsgateway

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// ErrBinaryMessage is returned by Read when the peer sends a non-text frame.
// The peer is sent an unsupported-data close frame first.
var ErrBinaryMessage = errors.New("wsgateway: binary message not supported")

// Conn adapts a WebSocket to a newline-delimited byte stream. Every inbound
// message reads as one line; every outbound line is sent as one text message.
type Conn struct {
	ws *websocket.Conn

	// read side, single reader
	message        io.Reader
	last           byte
	pendingNewline bool

	writeMu sync.Mutex
	partial []byte
}

var _ net.Conn = (*Conn)(nil)

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for {
		if c.message != nil {
			n, err := c.message.Read(p)
			if n > 0 {
				c.last = p[n-1]
			}
			switch {
			case err == io.EOF:
				c.message = nil
				c.pendingNewline = c.last != '\n'
				if n > 0 {
					return n, nil
				}
			case err != nil:
				return n, err
			case n > 0:
				return n, nil
			}
		}

		if c.pendingNewline {
			c.pendingNewline = false
			c.last = '\n'
			p[0] = '\n'
			return 1, nil
		}

		kind, r, err := c.ws.NextReader()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				return 0, io.EOF
			}
			return 0, err
		}
		if kind != websocket.TextMessage {
			msg := websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "text messages only")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
			return 0, ErrBinaryMessage
		}
		c.message = r
		c.last = 0
	}
}

// Write buffers p and sends each complete line as a text message without its
// terminator. Bytes after the last newline wait for the next Write.
func (c *Conn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.partial = append(c.partial, p...)
	for {
		i := bytes.IndexByte(c.partial, '\n')
		if i < 0 {
			break
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, c.partial[:i]); err != nil {
			c.partial = c.partial[:0]
			return 0, err
		}
		c.partial = c.partial[i+1:]
	}
	c.partial = append([]byte(nil), c.partial...)
	return len(p), nil
}

// Close sends a normal closure frame and closes the socket.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return c.ws.Close()
}

func (c *Conn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
