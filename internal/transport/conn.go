package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a message-framed connection to the remote pipe endpoint. Each
// WriteMessage carries exactly one UDP datagram and each ReadMessage
// returns exactly one.
//
// WriteMessage and ReadMessage may each be used by one goroutine at a
// time; Ping and Close are safe to call concurrently with both.
type Conn interface {
	// ReadMessage reads and returns one datagram payload.
	ReadMessage() ([]byte, error)

	// WriteMessage writes one datagram payload, applying the configured
	// write deadline.
	WriteMessage(pkt []byte) error

	// Ping sends a keep-alive control frame.
	Ping() error

	// Close closes the underlying conn. It has once semantics.
	Close() error
}

// websocketConn implements [Conn] on top of a websocket connection.
type websocketConn struct {
	// ws is the underlying websocket conn.
	ws *websocket.Conn

	// closeOnce ensures we close just once.
	closeOnce sync.Once

	// writeTimeout bounds each message write and ping.
	writeTimeout time.Duration
}

var _ Conn = &websocketConn{}

// newWebsocketConn creates a [Conn] from a websocket connection.
func newWebsocketConn(ws *websocket.Conn, writeTimeout time.Duration) *websocketConn {
	return &websocketConn{
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

// ReadMessage implements Conn. Non-binary data messages are skipped: only
// binary messages carry datagrams.
func (c *websocketConn) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

// WriteMessage implements Conn.
func (c *websocketConn) WriteMessage(pkt []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, pkt)
}

// Ping implements Conn.
func (c *websocketConn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close implements Conn. We try to say goodbye before closing so that
// well-behaved endpoints do not log an abnormal closure.
func (c *websocketConn) Close() (err error) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(c.writeTimeout)
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		err = c.ws.Close()
	})
	return
}
