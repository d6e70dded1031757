package wsgateway

import (
	"bufio"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/ledzpl/linechat/internal/chat"
)

func newTestListener(t *testing.T) *Listener {
	t.Helper()

	l, err := Listen("127.0.0.1:0", WithLogger(log.New(io.Discard, "", 0)))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func dialWS(t *testing.T, l *Listener) *websocket.Conn {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+l.Addr().String()+DefaultPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func acceptWithin(t *testing.T, l *Listener) net.Conn {
	t.Helper()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	select {
	case conn := <-accepted:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
		return nil
	}
}

func TestConnTranslatesMessagesToLines(t *testing.T) {
	l := newTestListener(t)
	ws := dialWS(t, l)
	conn := acceptWithin(t, l)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("")))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("世界\n")))

	reader := bufio.NewReader(conn)
	for _, want := range []string{"hello\n", "\n", "世界\n"} {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, want, line)
	}

	_, err := io.WriteString(conn, "hi\nthere")
	require.NoError(t, err)
	_, err = io.WriteString(conn, " again\n")
	require.NoError(t, err)

	for _, want := range []string{"hi", "there again"} {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		kind, data, err := ws.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.TextMessage, kind)
		require.Equal(t, want, string(data))
	}
}

func TestConnNormalClosureReadsAsEOF(t *testing.T) {
	l := newTestListener(t)
	ws := dialWS(t, l)
	conn := acceptWithin(t, l)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	_, err := bufio.NewReader(conn).ReadString('\n')
	require.ErrorIs(t, err, io.EOF)
}

func TestListenerCloseUnblocksAccept(t *testing.T) {
	l := newTestListener(t)

	done := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		done <- err
	}()

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("accept did not return after close")
	}
}

func TestUpgradeRejectsNonGet(t *testing.T) {
	l := newTestListener(t)

	resp, err := http.Post("http://"+l.Addr().String()+DefaultPath, "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestChatServerOverWebSocket(t *testing.T) {
	server := chat.NewServer(chat.WithLogger(log.New(io.Discard, "", 0)))
	sub := server.Subscribe()
	defer server.Stop()

	l := newTestListener(t)
	require.NoError(t, server.Attach(l))

	ws := dialWS(t, l)

	select {
	case ev := <-sub.C():
		require.Equal(t, chat.EventServerMessage, ev.Kind)
		require.Contains(t, ev.Text, "Server started on "+l.Addr().String())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for start")
	}

	var connected chat.Event
	select {
	case connected = <-sub.C():
		require.Equal(t, chat.EventConnected, connected.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for connect")
	}

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("from the browser")))
	select {
	case ev := <-sub.C():
		require.Equal(t, chat.EventMessage, ev.Kind)
		require.Equal(t, "from the browser", ev.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	require.True(t, server.SendToClient(connected.ClientID, "welcome"))
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "welcome", string(data))

	server.Stop()
	require.Zero(t, server.ClientCount())

	_, _, err = ws.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestConnRejectsBinaryMessages(t *testing.T) {
	l := newTestListener(t)
	ws := dialWS(t, l)
	conn := acceptWithin(t, l)

	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0x00}))

	_, err := bufio.NewReader(conn).ReadString('\n')
	require.ErrorIs(t, err, ErrBinaryMessage)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = ws.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseUnsupportedData), "got %v", err)
}
